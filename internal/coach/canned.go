package coach

import (
	"context"
	"fmt"
	"strings"
)

// StaticEvaluator builds a purely metrics-driven critique for
// deployments without an LLM provider. Deterministic, so it also serves
// local development.
type StaticEvaluator struct{}

func NewStaticEvaluator() *StaticEvaluator {
	return &StaticEvaluator{}
}

func (StaticEvaluator) Generate(_ context.Context, req Request) (Evaluation, error) {
	m := req.Metrics

	if m.WordCount == 0 {
		text := "No speech was captured in this take. Check the microphone and record again."
		return Evaluation{Text: text, Script: text}, nil
	}

	var notes []string
	var spoken []string

	switch {
	case m.WordsPerMinute > 170:
		notes = append(notes, fmt.Sprintf("Pace was fast at %.0f words per minute; aim for 130-150.", m.WordsPerMinute))
		spoken = append(spoken, "You were speaking quite fast. Try slowing down toward a conversational pace.")
	case m.WordsPerMinute > 0 && m.WordsPerMinute < 110:
		notes = append(notes, fmt.Sprintf("Pace was slow at %.0f words per minute; aim for 130-150.", m.WordsPerMinute))
		spoken = append(spoken, "Your pace was on the slow side. A bit more energy will help keep attention.")
	default:
		notes = append(notes, fmt.Sprintf("Pace was comfortable at %.0f words per minute.", m.WordsPerMinute))
		spoken = append(spoken, "Your pace felt comfortable and easy to follow.")
	}

	if m.FillerPerMinute > 4 {
		notes = append(notes, fmt.Sprintf("Filler words were frequent: %d total (%.1f per minute).", m.FillerCount, m.FillerPerMinute))
		spoken = append(spoken, "I heard a lot of filler words. A short pause works better than an um.")
	} else if m.FillerCount > 0 {
		notes = append(notes, fmt.Sprintf("Filler words were under control: %d total.", m.FillerCount))
	}

	if m.LongestPauseSeconds > 3 {
		notes = append(notes, fmt.Sprintf("Longest silence ran %.1f seconds; long gaps read as lost footing.", m.LongestPauseSeconds))
		spoken = append(spoken, "There was one long silence. If you lose the thread, bridge it with a summary sentence.")
	}

	if req.TimeLimitSeconds > 0 && m.DurationSeconds > float64(req.TimeLimitSeconds) {
		over := m.DurationSeconds - float64(req.TimeLimitSeconds)
		notes = append(notes, fmt.Sprintf("The talk ran %.0f seconds over the %d second limit.", over, req.TimeLimitSeconds))
		spoken = append(spoken, "You ran over your time limit, so tighten the middle section.")
	}

	return Evaluation{
		Text:   strings.Join(notes, " "),
		Script: strings.Join(spoken, " "),
	}, nil
}
