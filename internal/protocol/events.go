package protocol

import "time"

const EventVersion = 1

// Event is the header embedded in every server-to-client JSON message.
type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Pipeline progress stages, in emission order for a successful run.
const (
	StageProcessingSpeech     = "processing_speech"
	StageGeneratingEvaluation = "generating_evaluation"
	StageSynthesizingAudio    = "synthesizing_audio"
	StageReady                = "ready"
	StageFailed               = "failed"
	StageInvalidated          = "invalidated"
)

type SessionReadyEvent struct {
	Event
	SessionID        string  `json:"session_id"`
	State            string  `json:"state"`
	TimeLimitSeconds int     `json:"time_limit_seconds"`
	Voice            string  `json:"voice"`
	VoiceSpeed       float64 `json:"voice_speed"`
}

type StateChangeEvent struct {
	Event
	State string `json:"state"`
}

type PipelineProgressEvent struct {
	Event
	Stage   string `json:"stage"`
	RunID   int64  `json:"run_id"`
	Message string `json:"message,omitempty"`
}

type EvaluationReadyEvent struct {
	Event
	Evaluation string `json:"evaluation"`
	Script     string `json:"script"`
}

type TTSCompleteEvent struct {
	Event
}

type ErrorEvent struct {
	Event
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type DurationEstimateEvent struct {
	Event
	EstimatedSeconds float64 `json:"estimated_seconds"`
	TimeLimitSeconds int     `json:"time_limit_seconds"`
}

type DataPurgedEvent struct {
	Event
	Reason string `json:"reason"`
}

type OutputSavedEvent struct {
	Event
	OutputID string `json:"output_id"`
}

// NewEvent builds the common header. A zero now stamps the current time.
func NewEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
