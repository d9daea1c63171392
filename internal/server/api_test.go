package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avendahl/podium/internal/storage"
)

type apiStoreStub struct {
	outputs map[string]storage.Output
	order   []string
}

func (s *apiStoreStub) ListOutputs(context.Context) ([]storage.Output, error) {
	var out []storage.Output
	for _, id := range s.order {
		out = append(out, s.outputs[id])
	}
	return out, nil
}

func (s *apiStoreStub) GetOutput(_ context.Context, id string) (storage.Output, error) {
	if out, ok := s.outputs[id]; ok {
		return out, nil
	}
	return storage.Output{}, fmt.Errorf("output %s: %w", id, storage.ErrNotFound)
}

func (s *apiStoreStub) DeleteOutput(_ context.Context, id string) error {
	if _, ok := s.outputs[id]; !ok {
		return fmt.Errorf("output %s: %w", id, storage.ErrNotFound)
	}
	delete(s.outputs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func newAPIStub() *apiStoreStub {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &apiStoreStub{
		outputs: map[string]storage.Output{
			"out-1": {ID: "out-1", SessionID: "sess-1", CreatedAt: created, Evaluation: "Pace was comfortable."},
			"out-2": {ID: "out-2", SessionID: "sess-2", CreatedAt: created.Add(time.Hour), Evaluation: "Fewer fillers this time."},
		},
		order: []string{"out-2", "out-1"},
	}
}

func apiHandler(t *testing.T, store OutputStore, warnings func() []string) http.Handler {
	t.Helper()
	opts := testOptions(t)
	opts.Outputs = store
	opts.Warnings = warnings
	h, err := Handler(testStaticFS(t), opts)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return h
}

func TestAPIOutputsList(t *testing.T) {
	h := apiHandler(t, newAPIStub(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/outputs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("expected application/json content-type, got %q", got)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "out-1") || !strings.Contains(body, "out-2") {
		t.Fatalf("expected both outputs in body, got %s", body)
	}
}

func TestAPIOutputsListEmpty(t *testing.T) {
	h := apiHandler(t, &apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/outputs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Fatalf("expected empty JSON array, got %s", got)
	}
}

func TestAPIOutputDetail(t *testing.T) {
	h := apiHandler(t, newAPIStub(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/outputs/out-1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Pace was comfortable.") {
		t.Fatalf("expected evaluation text in body, got %s", rr.Body.String())
	}
}

func TestAPIOutputDetailNotFound(t *testing.T) {
	h := apiHandler(t, newAPIStub(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/outputs/missing", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAPIOutputDelete(t *testing.T) {
	store := newAPIStub()
	h := apiHandler(t, store, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/outputs/out-1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if _, ok := store.outputs["out-1"]; ok {
		t.Fatal("output should be deleted from the store")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/outputs/out-1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 on second delete, got %d", rr.Code)
	}
}

func TestAPIInvalidOutputIDRejected(t *testing.T) {
	h := apiHandler(t, newAPIStub(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/outputs/out.1.bak", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for malformed id, got %d", rr.Code)
	}
}

func TestAPIOutputsUnavailableWithoutStore(t *testing.T) {
	h := apiHandler(t, nil, nil)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/outputs", nil),
		httptest.NewRequest(http.MethodGet, "/api/outputs/out-1", nil),
		httptest.NewRequest(http.MethodDelete, "/api/outputs/out-1", nil),
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: expected status 503, got %d", req.Method, req.URL.Path, rr.Code)
		}
	}
}

func TestAPIStatusWithWarnings(t *testing.T) {
	h := apiHandler(t, newAPIStub(), func() []string {
		return []string{"Deepgram API key not configured"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"outputs_enabled":true`) {
		t.Fatalf("expected outputs_enabled:true in response, got %s", body)
	}
	if !strings.Contains(body, "Deepgram API key not configured") {
		t.Fatalf("expected warning message in response, got %s", body)
	}
}

func TestAPIStatusNoWarnings(t *testing.T) {
	h := apiHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"warnings":[]`) {
		t.Fatalf("expected empty warnings array in response, got %s", body)
	}
	if !strings.Contains(body, `"outputs_enabled":false`) {
		t.Fatalf("expected outputs_enabled:false in response, got %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := apiHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestServeSPAFallback(t *testing.T) {
	h := apiHandler(t, nil, nil)

	for _, path := range []string{"/", "/console", "/replay/latest"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: expected status 200, got %d", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "podium") {
			t.Fatalf("GET %s: expected index.html body, got %s", path, rr.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown api route, got %d", rr.Code)
	}
}
