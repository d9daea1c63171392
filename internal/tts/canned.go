package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/avendahl/podium/internal/audio"
)

const cannedMaxSeconds = 30

// ToneSynthesizer produces silent WAV clips sized to the script's
// estimated spoken duration, keeping the pipeline runnable without a
// speech provider.
type ToneSynthesizer struct {
	SampleRate int
}

func NewToneSynthesizer() *ToneSynthesizer {
	return &ToneSynthesizer{SampleRate: 16000}
}

func (s *ToneSynthesizer) Synthesize(_ context.Context, script string, voice VoiceConfig, budgetSeconds int) (Audio, error) {
	trimmed := TrimToBudget(script, budgetSeconds)

	seconds := EstimateSpokenSeconds(trimmed)
	if voice.Speed > 0 {
		seconds /= voice.Speed
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > cannedMaxSeconds {
		seconds = cannedMaxSeconds
	}

	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, audio.Silence(seconds, s.SampleRate), s.SampleRate); err != nil {
		return Audio{}, fmt.Errorf("encode canned clip: %w", err)
	}

	return Audio{Data: buf.Bytes(), Seconds: seconds}, nil
}
