package coach

import (
	"math"
	"strings"

	"github.com/avendahl/podium/internal/transcribe"
)

// Gaps between consecutive words longer than this count as pauses.
const pauseThresholdSeconds = 0.8

// DeliveryMetrics summarize how a talk was delivered, independent of
// what was said.
type DeliveryMetrics struct {
	WordCount           int     `json:"word_count"`
	DurationSeconds     float64 `json:"duration_seconds"`
	WordsPerMinute      float64 `json:"words_per_minute"`
	FillerCount         int     `json:"filler_count"`
	FillerPerMinute     float64 `json:"filler_per_minute"`
	PauseCount          int     `json:"pause_count"`
	LongestPauseSeconds float64 `json:"longest_pause_seconds"`
	SpeakingSeconds     float64 `json:"speaking_seconds"`

	// PaceVariation is the coefficient of variation of word durations.
	// Low values read as monotone delivery, high values as erratic.
	PaceVariation float64 `json:"pace_variation"`
}

var fillerSingles = map[string]struct{}{
	"um":        {},
	"uh":        {},
	"erm":       {},
	"ah":        {},
	"like":      {},
	"basically": {},
	"literally": {},
	"actually":  {},
}

var fillerPairs = map[string]struct{}{
	"you know": {},
	"sort of":  {},
	"kind of":  {},
	"i mean":   {},
}

// Extractor computes DeliveryMetrics from a finalized transcript.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (Extractor) Extract(t transcribe.Transcript) DeliveryMetrics {
	m := DeliveryMetrics{
		WordCount:       t.WordCount(),
		DurationSeconds: t.Duration(),
	}
	if m.WordCount == 0 {
		return m
	}

	words := t.Words
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = normalizeToken(w.Text)
	}

	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			if _, ok := fillerPairs[tokens[i]+" "+tokens[i+1]]; ok {
				m.FillerCount++
				i++
				continue
			}
		}
		if _, ok := fillerSingles[tokens[i]]; ok {
			m.FillerCount++
		}
	}

	for i, w := range words {
		m.SpeakingSeconds += w.End - w.Start
		if i == 0 {
			continue
		}
		gap := w.Start - words[i-1].End
		if gap > pauseThresholdSeconds {
			m.PauseCount++
			if gap > m.LongestPauseSeconds {
				m.LongestPauseSeconds = gap
			}
		}
	}

	if mean := m.SpeakingSeconds / float64(len(words)); mean > 0 {
		var sq float64
		for _, w := range words {
			d := (w.End - w.Start) - mean
			sq += d * d
		}
		m.PaceVariation = math.Sqrt(sq/float64(len(words))) / mean
	}

	if m.DurationSeconds > 0 {
		minutes := m.DurationSeconds / 60
		m.WordsPerMinute = float64(m.WordCount) / minutes
		m.FillerPerMinute = float64(m.FillerCount) / minutes
	}

	return m
}

func normalizeToken(word string) string {
	return strings.Trim(strings.ToLower(word), ".,!?;:'\"()-")
}
