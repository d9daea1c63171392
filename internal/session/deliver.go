package session

import (
	"context"
	"time"

	"github.com/avendahl/podium/internal/protocol"
	"github.com/avendahl/podium/internal/storage"
	"github.com/avendahl/podium/internal/tts"
	"github.com/google/uuid"
)

// handleDeliver routes a deliver_evaluation request to one of three
// paths, in priority order: serve the cache, wait for the in-flight
// run, or regenerate synchronously. A request that lands while a
// delivery is already in progress is dropped without any reply.
func (s *Session) handleDeliver() {
	if s.state == StateDelivering {
		s.logger.Debug("ignoring duplicate deliver request")
		return
	}
	if _, err := next(s.state, "deliver_evaluation"); err != nil {
		s.sendError(err.Error(), true)
		return
	}

	if s.cacheUsable() {
		s.instruments.Delivery("cache")
		s.deliverFromCache()
		return
	}

	if task := s.eager; task != nil && (s.eagerStatus == EagerGenerating || s.eagerStatus == EagerSynthesizing) {
		s.awaitEager(task)
		if s.ctx.Err() != nil {
			return
		}
		if s.cacheUsable() {
			s.instruments.Delivery("awaited")
			s.deliverFromCache()
			return
		}
	}

	s.instruments.Delivery("fallback")
	s.deliverFallback()
}

// handleReplay re-emits the cached delivery. Unlike a fresh delivery
// it serves the cache even when parameters have drifted since; the
// audio already exists and replaying it costs nothing.
func (s *Session) handleReplay() {
	if s.state == StateDelivering {
		return
	}
	if _, err := next(s.state, "replay_tts"); err != nil {
		s.sendError(err.Error(), true)
		return
	}
	if s.cache == nil || s.cache.Public == "" || len(s.cache.Audio.Data) == 0 {
		s.sendError(ErrNoCachedAudio.Error(), true)
		return
	}
	s.instruments.Delivery("replay")
	s.deliverFromCache()
}

// deliverFromCache emits the delivery sequence from the cached run:
// evaluation_ready, then the audio, then tts_complete, in that order,
// with no generation call.
func (s *Session) deliverFromCache() {
	cache := s.cache
	s.setState(StateDelivering)
	s.sendEvaluationReady(cache)
	s.sender.SendBinary(cache.Audio.Data)
	s.sendEvent(protocol.TTSCompleteEvent{Event: protocol.NewEvent("tts_complete", time.Now())})
	s.finishDelivery()
}

// deliverFallback regenerates inline with the session held in
// processing. An evaluation failure is recoverable and the user can
// retry; a synthesis failure still delivers the text, just unspoken.
func (s *Session) deliverFallback() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.EagerTimeout)
	defer cancel()

	s.sendProgress(protocol.StageGeneratingEvaluation, "")
	cache, err := s.buildEvaluation(ctx, s.runID, s.transcript, s.timeLimit, s.voice)
	if err != nil {
		s.instruments.DeliveryFailure("evaluation")
		s.logger.Error("fallback evaluation failed", "run_id", s.runID, "error", err)
		s.sendError("could not generate the evaluation, try again", true)
		return
	}

	s.sendProgress(protocol.StageSynthesizingAudio, "")
	synthErr := s.synthesizeAudio(ctx, cache)

	s.setState(StateDelivering)
	s.sendEvaluationReady(cache)
	// Retained even without audio so the delivered text can still be
	// saved; replay and cache hits check for audio themselves.
	s.cache = cache

	if synthErr != nil {
		s.instruments.DeliveryFailure("tts")
		s.logger.Error("fallback synthesis failed", "run_id", s.runID, "error", synthErr)
		s.sendError("could not synthesize spoken feedback", false)
		s.finishDelivery()
		return
	}

	s.sender.SendBinary(cache.Audio.Data)
	s.sendEvent(protocol.TTSCompleteEvent{Event: protocol.NewEvent("tts_complete", time.Now())})
	s.sendDurationEstimate(cache)
	s.finishDelivery()
}

// finishDelivery returns the session to idle. A surviving cache means
// the user may replay, so the retention countdown (re)starts.
func (s *Session) finishDelivery() {
	s.setState(StateIdle)
	if s.cache != nil {
		s.armPurgeTimer()
	}
}

func (s *Session) sendEvaluationReady(cache *EvaluationCache) {
	s.sendEvent(protocol.EvaluationReadyEvent{
		Event:      protocol.NewEvent("evaluation_ready", time.Now()),
		Evaluation: cache.Public,
		Script:     cache.Script,
	})
}

func (s *Session) sendDurationEstimate(cache *EvaluationCache) {
	seconds := cache.Audio.Seconds
	if seconds <= 0 {
		speed := cache.Voice.Speed
		if speed <= 0 {
			speed = 1.0
		}
		seconds = tts.EstimateSpokenSeconds(cache.Script) / speed
	}
	s.sendEvent(protocol.DurationEstimateEvent{
		Event:            protocol.NewEvent("duration_estimate", time.Now()),
		EstimatedSeconds: seconds,
		TimeLimitSeconds: cache.TimeLimitSeconds,
	})
}

// handleSaveOutputs persists the current evaluation bundle. Only the
// reviewed text is stored, never the internal form.
func (s *Session) handleSaveOutputs() {
	if !s.consent.RetainOutputs {
		s.sendError(ErrRetentionNotGranted.Error(), true)
		return
	}
	cache := s.cache
	if cache == nil || cache.Public == "" {
		s.sendError(ErrNothingToSave.Error(), true)
		return
	}
	if s.col.Outputs == nil {
		s.sendError("output storage is not configured", true)
		return
	}

	out := storage.Output{
		ID:         uuid.NewString(),
		SessionID:  s.id,
		CreatedAt:  time.Now().UTC(),
		Transcript: cache.Transcript,
		Evaluation: cache.Public,
		Script:     cache.Script,
		Metrics:    cache.Metrics,
	}

	ctx, cancel := context.WithTimeout(s.ctx, saveTimeout)
	defer cancel()
	if err := s.col.Outputs.SaveOutput(ctx, out); err != nil {
		s.logger.Error("save outputs", "output_id", out.ID, "error", err)
		s.sendError("could not save outputs", true)
		return
	}

	s.sendEvent(protocol.OutputSavedEvent{
		Event:    protocol.NewEvent("output_saved", time.Now()),
		OutputID: out.ID,
	})
}
