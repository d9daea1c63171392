package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/avendahl/podium/internal/audio"
)

// OpenAI synthesizes feedback scripts through the speech endpoint.
// Output is WAV so clip duration can be read from the container.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIWithConfig(config openai.ClientConfig, model string) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAI{client: openai.NewClientWithConfig(config), model: model}
}

func (s *OpenAI) Synthesize(ctx context.Context, script string, voice VoiceConfig, budgetSeconds int) (Audio, error) {
	trimmed := TrimToBudget(script, budgetSeconds)
	if trimmed == "" {
		return Audio{}, errors.New("empty script")
	}

	if voice.Name == "" {
		voice.Name = DefaultVoice().Name
	}
	if voice.Speed <= 0 {
		voice.Speed = 1.0
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          trimmed,
		Voice:          openai.SpeechVoice(voice.Name),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          voice.Speed,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("openai speech: %w", err)
	}
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Audio{}, fmt.Errorf("read speech payload: %w", err)
	}

	seconds, err := audio.Duration(data)
	if err != nil {
		seconds = EstimateSpokenSeconds(trimmed) / voice.Speed
	}

	return Audio{Data: data, Seconds: seconds}, nil
}
