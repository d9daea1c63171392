package tts

// VoiceConfig selects how feedback is spoken back to the presenter.
type VoiceConfig struct {
	Name  string  `json:"name"`
	Speed float64 `json:"speed"`
}

func DefaultVoice() VoiceConfig {
	return VoiceConfig{Name: "alloy", Speed: 1.0}
}

// Audio is one synthesized speech clip.
type Audio struct {
	Data    []byte
	Seconds float64
}
