package coach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avendahl/podium/internal/llm"
	"github.com/avendahl/podium/internal/transcribe"
)

// Request carries everything the evaluator needs for one critique.
type Request struct {
	Transcript       transcribe.Transcript
	Metrics          DeliveryMetrics
	TimeLimitSeconds int
}

// Evaluation is the generator's output: a written critique and a
// separate script meant to be spoken back to the presenter.
type Evaluation struct {
	Text   string
	Script string
}

const evaluatorSystem = `You are a direct, supportive speech coach reviewing one practice talk.
Critique delivery first (pace, pauses, filler words, structure), then content.
Reply in exactly two sections:
NOTES:
A written critique in short paragraphs.
SCRIPT:
The feedback rewritten as natural spoken coaching, second person, no lists, under 200 words.`

type Evaluator struct {
	client    llm.Client
	maxTokens int
	sleep     func(time.Duration)
}

func NewEvaluator(client llm.Client) *Evaluator {
	return &Evaluator{
		client:    client,
		maxTokens: 900,
		sleep:     time.Sleep,
	}
}

func (e *Evaluator) Generate(ctx context.Context, req Request) (Evaluation, error) {
	prompt := buildPrompt(req)

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := e.client.Complete(ctx, llm.Request{
			System:    evaluatorSystem,
			Prompt:    prompt,
			MaxTokens: e.maxTokens,
		})
		if err == nil {
			return parseEvaluation(result), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			e.sleep(backoff[attempt])
		}
	}

	return Evaluation{}, fmt.Errorf("evaluation failed after retries: %w", lastErr)
}

func buildPrompt(req Request) string {
	m := req.Metrics

	var b strings.Builder
	fmt.Fprintf(&b, "The speaker set a time limit of %d seconds.\n", req.TimeLimitSeconds)
	fmt.Fprintf(&b, "Measured delivery: %d words in %.0f seconds (%.0f wpm), %d filler words (%.1f per minute), %d pauses over %.1fs, longest pause %.1fs, pace variation %.2f.\n\n",
		m.WordCount, m.DurationSeconds, m.WordsPerMinute,
		m.FillerCount, m.FillerPerMinute,
		m.PauseCount, pauseThresholdSeconds, m.LongestPauseSeconds,
		m.PaceVariation)
	b.WriteString("Transcript:\n")
	b.WriteString(SampleTranscript(req.Transcript.Text(), 400, 200, 200))
	return b.String()
}

// SampleTranscript keeps the opening, middle, and closing of a long
// transcript so prompts stay bounded while preserving the talk's arc.
func SampleTranscript(transcript string, firstN, midN, lastN int) string {
	words := strings.Fields(transcript)
	total := len(words)

	if total <= firstN+midN+lastN {
		return transcript
	}

	first := strings.Join(words[:firstN], " ")
	midStart := (total - midN) / 2
	mid := strings.Join(words[midStart:midStart+midN], " ")
	last := strings.Join(words[total-lastN:], " ")

	return first + "\n\n[...]\n\n" + mid + "\n\n[...]\n\n" + last
}

// parseEvaluation splits a model reply into its NOTES and SCRIPT
// sections. Replies that ignore the format become both at once.
func parseEvaluation(raw string) Evaluation {
	var notes, script strings.Builder
	target := &notes

	for _, line := range strings.Split(raw, "\n") {
		header := strings.ToUpper(strings.Trim(strings.TrimSpace(line), "#* "))
		switch {
		case strings.HasPrefix(header, "NOTES:"):
			target = &notes
			if rest := contentAfterMarker(line, "NOTES:"); rest != "" {
				target.WriteString(rest + "\n")
			}
			continue
		case strings.HasPrefix(header, "SCRIPT:"):
			target = &script
			if rest := contentAfterMarker(line, "SCRIPT:"); rest != "" {
				target.WriteString(rest + "\n")
			}
			continue
		}
		target.WriteString(line + "\n")
	}

	ev := Evaluation{
		Text:   strings.TrimSpace(notes.String()),
		Script: strings.TrimSpace(script.String()),
	}
	if ev.Text == "" {
		ev.Text = strings.TrimSpace(raw)
	}
	if ev.Script == "" {
		ev.Script = ev.Text
	}
	return ev
}

func contentAfterMarker(line, marker string) string {
	idx := strings.Index(strings.ToUpper(line), marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+len(marker):])
}
