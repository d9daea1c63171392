package coach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avendahl/podium/internal/llm"
	"github.com/avendahl/podium/internal/transcribe"
)

type fakeLLM struct {
	replies []string
	errs    []error
	calls   int
	prompts []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, req)

	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func testRequest() Request {
	return Request{
		Transcript: transcribe.Transcript{Words: []transcribe.Word{
			{Text: "Good", Start: 0, End: 0.3},
			{Text: "morning", Start: 0.3, End: 0.7},
			{Text: "everyone.", Start: 0.7, End: 1.2},
		}},
		Metrics:          DeliveryMetrics{WordCount: 3, DurationSeconds: 1.2, WordsPerMinute: 150},
		TimeLimitSeconds: 120,
	}
}

func TestGenerateParsesSections(t *testing.T) {
	client := &fakeLLM{replies: []string{
		"NOTES:\nStrong opening, weak close.\nSCRIPT:\nYou opened strong. Now work on the close.",
	}}
	e := NewEvaluator(client)
	e.sleep = func(time.Duration) {}

	ev, err := e.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ev.Text != "Strong opening, weak close." {
		t.Errorf("Text = %q", ev.Text)
	}
	if ev.Script != "You opened strong. Now work on the close." {
		t.Errorf("Script = %q", ev.Script)
	}
}

func TestGeneratePromptCarriesMetricsAndLimit(t *testing.T) {
	client := &fakeLLM{replies: []string{"NOTES:\nok\nSCRIPT:\nok"}}
	e := NewEvaluator(client)
	e.sleep = func(time.Duration) {}

	if _, err := e.Generate(context.Background(), testRequest()); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(client.prompts) != 1 {
		t.Fatalf("calls = %d, want 1", len(client.prompts))
	}
	req := client.prompts[0]
	if !strings.Contains(req.Prompt, "time limit of 120 seconds") {
		t.Errorf("prompt missing time limit: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "150 wpm") {
		t.Errorf("prompt missing wpm: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "Good morning everyone.") {
		t.Errorf("prompt missing transcript: %q", req.Prompt)
	}
	if req.System == "" {
		t.Error("expected a system prompt")
	}
}

func TestGenerateRetriesWithBackoff(t *testing.T) {
	client := &fakeLLM{
		errs:    []error{errors.New("rate limited"), errors.New("rate limited")},
		replies: []string{"", "", "NOTES:\nfine\nSCRIPT:\nfine"},
	}
	e := NewEvaluator(client)

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	ev, err := e.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ev.Text != "fine" {
		t.Errorf("Text = %q", ev.Text)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
	if len(slept) != 2 || slept[0] != 1*time.Second || slept[1] != 4*time.Second {
		t.Errorf("slept = %v", slept)
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	boom := errors.New("provider down")
	client := &fakeLLM{errs: []error{boom, boom, boom}}
	e := NewEvaluator(client)
	e.sleep = func(time.Duration) {}

	_, err := e.Generate(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped provider error", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestGenerateStopsOnDeadContext(t *testing.T) {
	client := &fakeLLM{errs: []error{context.Canceled, context.Canceled, context.Canceled}}
	e := NewEvaluator(client)

	slept := 0
	e.sleep = func(time.Duration) { slept++ }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Generate(ctx, testRequest()); err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on dead context)", client.calls)
	}
	if slept != 0 {
		t.Errorf("slept %d times, want 0", slept)
	}
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantText   string
		wantScript string
	}{
		{
			name:       "plain sections",
			raw:        "NOTES:\nabc\nSCRIPT:\nxyz",
			wantText:   "abc",
			wantScript: "xyz",
		},
		{
			name:       "markdown headers",
			raw:        "**NOTES:**\nabc\n## SCRIPT:\nxyz",
			wantText:   "abc",
			wantScript: "xyz",
		},
		{
			name:       "inline content after marker",
			raw:        "NOTES: abc\nSCRIPT: xyz",
			wantText:   "abc",
			wantScript: "xyz",
		},
		{
			name:       "missing markers falls back to whole reply",
			raw:        "just some critique",
			wantText:   "just some critique",
			wantScript: "just some critique",
		},
		{
			name:       "missing script reuses notes",
			raw:        "NOTES:\nabc",
			wantText:   "abc",
			wantScript: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := parseEvaluation(tt.raw)
			if ev.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", ev.Text, tt.wantText)
			}
			if ev.Script != tt.wantScript {
				t.Errorf("Script = %q, want %q", ev.Script, tt.wantScript)
			}
		})
	}
}

func TestSampleTranscript(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "w"
	}
	long := strings.Join(words, " ")

	sampled := SampleTranscript(long, 10, 10, 10)
	if !strings.Contains(sampled, "[...]") {
		t.Error("expected elision markers in sampled transcript")
	}
	if got := len(strings.Fields(sampled)); got > 40 {
		t.Errorf("sampled word count = %d, want <= 40", got)
	}

	short := "a b c"
	if SampleTranscript(short, 10, 10, 10) != short {
		t.Error("short transcripts should pass through unchanged")
	}
}

func TestStaticEvaluator(t *testing.T) {
	ev, err := NewStaticEvaluator().Generate(context.Background(), Request{
		Metrics:          DeliveryMetrics{WordCount: 200, DurationSeconds: 60, WordsPerMinute: 200, FillerCount: 12, FillerPerMinute: 12},
		TimeLimitSeconds: 30,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(ev.Text, "fast") {
		t.Errorf("expected pace note, got %q", ev.Text)
	}
	if ev.Script == "" {
		t.Error("expected a non-empty script")
	}

	empty, err := NewStaticEvaluator().Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate empty: %v", err)
	}
	if !strings.Contains(empty.Text, "No speech") {
		t.Errorf("empty take text = %q", empty.Text)
	}
}
