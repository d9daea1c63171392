package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func moderationServer(t *testing.T, flagged bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/moderations") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "modr-1",
			"model": "omni-moderation-latest",
			"results": []map[string]any{
				{"flagged": flagged},
			},
		})
	}))
}

func reviewerFor(server *httptest.Server) *Reviewer {
	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	return NewReviewerWithConfig(config, "", nil)
}

func TestReviewRedactsPII(t *testing.T) {
	server := moderationServer(t, false)
	defer server.Close()

	in := "Mention that alex@example.com and +1 (555) 123-4567 appeared on your slide."
	got, err := reviewerFor(server).Review(context.Background(), in)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	if strings.Contains(got, "alex@example.com") {
		t.Errorf("email survived redaction: %q", got)
	}
	if strings.Contains(got, "555") {
		t.Errorf("phone survived redaction: %q", got)
	}
	if !strings.Contains(got, redactedPlaceholder) {
		t.Errorf("expected placeholder in %q", got)
	}
}

func TestReviewFlaggedContentFallsBack(t *testing.T) {
	server := moderationServer(t, true)
	defer server.Close()

	got, err := reviewerFor(server).Review(context.Background(), "some evaluation")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got != flaggedFallback {
		t.Errorf("got %q, want fallback phrasing", got)
	}
}

func TestReviewFailsOpenOnAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	got, err := reviewerFor(server).Review(context.Background(), "pace was solid")
	if err != nil {
		t.Fatalf("Review should fail open, got error: %v", err)
	}
	if got != "pace was solid" {
		t.Errorf("got %q, want pass-through text", got)
	}
}

func TestReviewWithoutAPIKeySkipsModeration(t *testing.T) {
	r := NewReviewer("", "", nil)
	got, err := r.Review(context.Background(), "email me at coach@club.org")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if strings.Contains(got, "coach@club.org") {
		t.Errorf("email survived redaction: %q", got)
	}
}
