package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/avendahl/podium/internal/coach"
	"github.com/avendahl/podium/internal/storage"
	"github.com/avendahl/podium/internal/transcribe"
	"github.com/avendahl/podium/internal/tts"
)

// TranscriberFactory opens one live transcription stream per
// recording run.
type TranscriberFactory interface {
	NewStream(ctx context.Context) (transcribe.Stream, error)
}

// Analyzer derives delivery metrics from a finished transcript.
type Analyzer interface {
	Extract(t transcribe.Transcript) coach.DeliveryMetrics
}

// Evaluator turns a transcript and its metrics into a critique plus a
// spoken-form script.
type Evaluator interface {
	Generate(ctx context.Context, req coach.Request) (coach.Evaluation, error)
}

// Reviewer prepares a critique for client display. The returned text
// is the only form the client ever sees.
type Reviewer interface {
	Review(ctx context.Context, evaluation string) (string, error)
}

// Synthesizer renders a script as spoken audio within a time budget.
type Synthesizer interface {
	Synthesize(ctx context.Context, script string, voice tts.VoiceConfig, budgetSeconds int) (tts.Audio, error)
}

// OutputStore persists evaluations the user has asked to keep.
type OutputStore interface {
	SaveOutput(ctx context.Context, out storage.Output) error
}

// Sender carries ordered events and binary audio back to the client.
// Implementations must preserve call order and never block the caller
// indefinitely.
type Sender interface {
	SendEvent(v any)
	SendBinary(data []byte)
}

// Instruments records counters for session outcomes.
type Instruments interface {
	Delivery(path string)
	DeliveryFailure(stage string)
	EagerOutcome(outcome string)
	Invalidation(reason string)
	Purge(reason string)
	FrameDropped(reason string)
}

// NopInstruments discards every measurement.
type NopInstruments struct{}

func (NopInstruments) Delivery(string)        {}
func (NopInstruments) DeliveryFailure(string) {}
func (NopInstruments) EagerOutcome(string)    {}
func (NopInstruments) Invalidation(string)    {}
func (NopInstruments) Purge(string)           {}
func (NopInstruments) FrameDropped(string)    {}

// Collaborators bundles the external pipeline a session drives. All
// fields except Outputs and Instruments must be non-nil.
type Collaborators struct {
	Transcribers TranscriberFactory
	Analyzer     Analyzer
	Evaluator    Evaluator
	Reviewer     Reviewer
	Synthesizer  Synthesizer
	Outputs      OutputStore
	Instruments  Instruments
}

// Consent tracks what the user has allowed the session to capture and
// keep. Everything defaults to denied.
type Consent struct {
	Audio         bool
	Video         bool
	RetainOutputs bool
}

// Config carries per-session settings. Zero fields fall back to the
// defaults below.
type Config struct {
	SessionID        string
	TimeLimitSeconds int
	Voice            tts.VoiceConfig
	PurgeAfter       time.Duration
	EagerTimeout     time.Duration
	FinalizeTimeout  time.Duration
	Logger           *slog.Logger
}

const (
	defaultTimeLimitSeconds = 120
	defaultPurgeAfter       = 10 * time.Minute
	defaultEagerTimeout     = 90 * time.Second
	defaultFinalizeTimeout  = 10 * time.Second
	saveTimeout             = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.TimeLimitSeconds <= 0 {
		c.TimeLimitSeconds = defaultTimeLimitSeconds
	}
	if c.Voice.Name == "" {
		c.Voice = tts.DefaultVoice()
	}
	if c.Voice.Speed <= 0 {
		c.Voice.Speed = 1.0
	}
	if c.PurgeAfter <= 0 {
		c.PurgeAfter = defaultPurgeAfter
	}
	if c.EagerTimeout <= 0 {
		c.EagerTimeout = defaultEagerTimeout
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
