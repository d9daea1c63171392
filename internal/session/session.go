package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avendahl/podium/internal/protocol"
	"github.com/avendahl/podium/internal/transcribe"
	"github.com/avendahl/podium/internal/tts"
)

// Session owns all mutable state for one client connection. Run is
// the only goroutine that touches it: inbound messages, pipeline
// reports, and the purge timer all funnel into one select loop, so no
// mutation ever races another.
type Session struct {
	id          string
	cfg         Config
	col         Collaborators
	sender      Sender
	logger      *slog.Logger
	instruments Instruments

	ctx     context.Context
	cancel  context.CancelFunc
	inbound chan any

	state       State
	runID       int64
	timeLimit   int
	voice       tts.VoiceConfig
	consent     Consent
	eagerStatus EagerStatus
	eager       *eagerTask
	cache       *EvaluationCache
	transcript  transcribe.Transcript
	stream      transcribe.Stream
	purgeTimer  *time.Timer
}

// New builds a session bound to ctx. The session dies when ctx ends,
// when Close is called, or when the inbound channel closes.
func New(ctx context.Context, cfg Config, col Collaborators, sender Sender) *Session {
	cfg = cfg.withDefaults()
	instruments := col.Instruments
	if instruments == nil {
		instruments = NopInstruments{}
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:          cfg.SessionID,
		cfg:         cfg,
		col:         col,
		sender:      sender,
		logger:      cfg.Logger.With("session_id", cfg.SessionID),
		instruments: instruments,
		ctx:         ctx,
		cancel:      cancel,
		inbound:     make(chan any, 64),
		state:       StateIdle,
		timeLimit:   cfg.TimeLimitSeconds,
		voice:       cfg.Voice,
		eagerStatus: EagerIdle,
	}
}

// Enqueue hands one decoded client message to the session loop,
// blocking while the loop is busy. The backpressure reaches the
// connection's read pump, which is what bounds a flooding client.
func (s *Session) Enqueue(msg any) {
	select {
	case s.inbound <- msg:
	case <-s.ctx.Done():
	}
}

// Close stops the session loop and releases everything it holds.
func (s *Session) Close() {
	s.cancel()
}

// Run drains client messages, pipeline reports, and the purge timer
// until the session ends. All speech-derived data dies with the loop.
func (s *Session) Run() {
	defer s.teardown()
	s.sendSessionReady()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbound:
			s.dispatch(msg)
		case ev := <-s.eagerCh():
			s.handleEagerEvent(ev)
		case <-s.purgeCh():
			s.handlePurgeTimer()
		}
	}
}

// eagerCh is nil while no task is in flight, which parks that select
// arm.
func (s *Session) eagerCh() <-chan eagerEvent {
	if s.eager == nil {
		return nil
	}
	return s.eager.events
}

func (s *Session) dispatch(msg any) {
	switch m := msg.(type) {
	case protocol.MediaFrame:
		s.handleMedia(m)
	case protocol.StartRecording:
		s.handleStartRecording()
	case protocol.StopRecording:
		s.handleStopRecording()
	case protocol.DeliverEvaluation:
		s.handleDeliver()
	case protocol.PanicMute:
		s.handlePanicMute()
	case protocol.ReplayTTS:
		s.handleReplay()
	case protocol.SetTimeLimit:
		s.handleSetTimeLimit(m)
	case protocol.SetVoice:
		s.handleSetVoice(m)
	case protocol.SetConsent:
		s.handleSetConsent(m)
	case protocol.RevokeConsent:
		s.handleRevokeConsent()
	case protocol.SaveOutputs:
		s.handleSaveOutputs()
	default:
		s.logger.Warn("unhandled message", "type", fmt.Sprintf("%T", msg))
	}
}

func (s *Session) handleStartRecording() {
	if _, err := next(s.state, "start_recording"); err != nil {
		s.sendError(err.Error(), true)
		return
	}
	if !s.consent.Audio {
		s.sendError(ErrConsentRequired.Error(), true)
		return
	}

	stream, err := s.col.Transcribers.NewStream(s.ctx)
	if err != nil {
		s.logger.Error("open transcription stream", "error", err)
		s.sendError("could not start transcription", true)
		return
	}

	s.stream = stream
	s.discardRun()
	s.transcript = transcribe.Transcript{}
	s.setState(StateRecording)
}

func (s *Session) handleStopRecording() {
	if _, err := next(s.state, "stop_recording"); err != nil {
		s.sendError(err.Error(), true)
		return
	}

	s.setState(StateProcessing)
	s.sendProgress(protocol.StageProcessingSpeech, "")

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FinalizeTimeout)
	transcript, err := s.stream.Final(ctx)
	cancel()
	s.closeStream()
	if err != nil {
		// Partial words are still usable for coaching.
		s.logger.Warn("transcript finalize", "run_id", s.runID, "error", err)
	}
	s.transcript = transcript

	s.startEagerRun(transcript)
}

// handleMedia feeds one binary frame to the live transcriber. Frames
// outside a recording run, or outside the granted consent, are
// dropped on the floor.
func (s *Session) handleMedia(frame protocol.MediaFrame) {
	if s.state != StateRecording || s.stream == nil {
		s.instruments.FrameDropped("state")
		s.logger.Debug("frame outside recording", "state", s.state)
		return
	}
	switch frame.Kind {
	case protocol.MediaAudio:
		if !s.consent.Audio {
			s.instruments.FrameDropped("consent")
			return
		}
		if _, err := s.stream.Write(frame.Payload); err != nil {
			s.instruments.FrameDropped("write_error")
			s.logger.Warn("dropping audio frame", "error", err)
		}
	case protocol.MediaVideo:
		if !s.consent.Video {
			s.instruments.FrameDropped("consent")
		}
		// Video frames are accepted for gating symmetry but no
		// analyzer consumes them yet.
	}
}

func (s *Session) closeStream() {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

func (s *Session) teardown() {
	s.cancel()
	s.closeStream()
	if s.eager != nil {
		s.eager.cancel()
		s.eager = nil
	}
	s.stopPurgeTimer()
	s.transcript = transcribe.Transcript{}
	s.cache = nil
	s.logger.Info("session closed")
}

func (s *Session) setState(to State) {
	s.state = to
	s.sendEvent(protocol.StateChangeEvent{
		Event: protocol.NewEvent("state_change", time.Now()),
		State: string(to),
	})
}

func (s *Session) sendEvent(v any) {
	s.sender.SendEvent(v)
}

func (s *Session) sendSessionReady() {
	s.sendEvent(protocol.SessionReadyEvent{
		Event:            protocol.NewEvent("session_ready", time.Now()),
		SessionID:        s.id,
		State:            string(s.state),
		TimeLimitSeconds: s.timeLimit,
		Voice:            s.voice.Name,
		VoiceSpeed:       s.voice.Speed,
	})
}

func (s *Session) sendProgress(stage, message string) {
	s.sendEvent(protocol.PipelineProgressEvent{
		Event:   protocol.NewEvent("pipeline_progress", time.Now()),
		Stage:   stage,
		RunID:   s.runID,
		Message: message,
	})
}

func (s *Session) sendError(message string, recoverable bool) {
	s.sendEvent(protocol.ErrorEvent{
		Event:       protocol.NewEvent("error", time.Now()),
		Message:     message,
		Recoverable: recoverable,
	})
}

func (s *Session) sendDataPurged(reason string) {
	s.sendEvent(protocol.DataPurgedEvent{
		Event:  protocol.NewEvent("data_purged", time.Now()),
		Reason: reason,
	})
}
