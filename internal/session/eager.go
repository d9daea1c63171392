package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/avendahl/podium/internal/coach"
	"github.com/avendahl/podium/internal/protocol"
	"github.com/avendahl/podium/internal/transcribe"
	"github.com/avendahl/podium/internal/tts"
)

// EagerStatus mirrors the background pipeline's progress for the
// current run.
type EagerStatus string

const (
	EagerIdle         EagerStatus = "idle"
	EagerGenerating   EagerStatus = "generating"
	EagerSynthesizing EagerStatus = "synthesizing"
	EagerReady        EagerStatus = "ready"
	EagerFailed       EagerStatus = "failed"
)

// eagerEvent is one report from the background pipeline, stamped with
// the run that produced it. Progress events carry a stage; the
// terminal event carries the result or the error, never both.
type eagerEvent struct {
	runID  int64
	stage  string
	done   bool
	result *EvaluationCache
	err    error
}

// eagerTask handles one in-flight background run. The events channel
// is buffered past the task's maximum emission count, so the task
// never blocks on it, even after the session has orphaned the task.
type eagerTask struct {
	runID  int64
	cancel context.CancelFunc
	events chan eagerEvent
	done   chan struct{}
}

// startEagerRun launches the speculative evaluation for the current
// run. At most one task is live per session; any prior task was
// orphaned when the run counter advanced.
func (s *Session) startEagerRun(transcript transcribe.Transcript) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.EagerTimeout)
	task := &eagerTask{
		runID:  s.runID,
		cancel: cancel,
		events: make(chan eagerEvent, 8),
		done:   make(chan struct{}),
	}
	s.eager = task
	s.eagerStatus = EagerGenerating
	go s.runEager(ctx, task, transcript, s.timeLimit, s.voice)
}

// runEager executes the pipeline in the background. It reads only the
// arguments captured at launch, never the session's mutable state, and
// it always resolves: failures become the terminal event's error. The
// terminal event is queued before done closes, so anyone who waited on
// done will find it in the channel.
func (s *Session) runEager(ctx context.Context, task *eagerTask, transcript transcribe.Transcript, timeLimit int, voice tts.VoiceConfig) {
	defer task.cancel()

	report := func(stage string) {
		task.events <- eagerEvent{runID: task.runID, stage: stage}
	}

	report(protocol.StageGeneratingEvaluation)
	cache, err := s.buildEvaluation(ctx, task.runID, transcript, timeLimit, voice)
	if err == nil {
		report(protocol.StageSynthesizingAudio)
		err = s.synthesizeAudio(ctx, cache)
	}

	if err != nil {
		task.events <- eagerEvent{runID: task.runID, done: true, err: err}
	} else {
		task.events <- eagerEvent{runID: task.runID, done: true, result: cache}
	}
	close(task.done)
}

// buildEvaluation runs metrics extraction, critique generation, and
// review. The returned cache carries no audio yet.
func (s *Session) buildEvaluation(ctx context.Context, runID int64, transcript transcribe.Transcript, timeLimit int, voice tts.VoiceConfig) (*EvaluationCache, error) {
	metrics := s.col.Analyzer.Extract(transcript)

	eval, err := s.col.Evaluator.Generate(ctx, coach.Request{
		Transcript:       transcript,
		Metrics:          metrics,
		TimeLimitSeconds: timeLimit,
	})
	if err != nil {
		return nil, &PipelineError{Stage: "evaluation", Recoverable: true, Err: fmt.Errorf("generate evaluation: %w", err)}
	}

	public, err := s.col.Reviewer.Review(ctx, eval.Text)
	if err != nil {
		return nil, &PipelineError{Stage: "evaluation", Recoverable: true, Err: fmt.Errorf("review evaluation: %w", err)}
	}

	return &EvaluationCache{
		RunID:            runID,
		TimeLimitSeconds: timeLimit,
		Voice:            voice,
		Transcript:       transcript.Text(),
		Metrics:          metrics,
		Evaluation:       eval.Text,
		Public:           public,
		Script:           eval.Script,
	}, nil
}

func (s *Session) synthesizeAudio(ctx context.Context, cache *EvaluationCache) error {
	audio, err := s.col.Synthesizer.Synthesize(ctx, cache.Script, cache.Voice, cache.TimeLimitSeconds)
	if err != nil {
		return &PipelineError{Stage: "tts", Recoverable: false, Err: fmt.Errorf("synthesize feedback: %w", err)}
	}
	cache.Audio = audio
	return nil
}

// handleEagerEvent applies one background report inside the session
// loop. Reports from a superseded run are dropped without effect.
func (s *Session) handleEagerEvent(ev eagerEvent) {
	if ev.runID != s.runID {
		return
	}

	if !ev.done {
		switch ev.stage {
		case protocol.StageGeneratingEvaluation:
			s.eagerStatus = EagerGenerating
		case protocol.StageSynthesizingAudio:
			s.eagerStatus = EagerSynthesizing
		}
		s.sendProgress(ev.stage, "")
		return
	}

	s.eager = nil
	if ev.err != nil {
		s.eagerStatus = EagerFailed
		s.instruments.EagerOutcome("failed")
		stage := "pipeline"
		var pe *PipelineError
		if errors.As(ev.err, &pe) {
			stage = pe.Stage
		}
		s.logger.Warn("eager evaluation failed", "run_id", ev.runID, "stage", stage, "error", ev.err)
		s.sendProgress(protocol.StageFailed, "evaluation pipeline failed")
		return
	}

	s.cache = ev.result
	s.eagerStatus = EagerReady
	s.instruments.EagerOutcome("ready")
	s.sendProgress(protocol.StageReady, "")
	s.sendDurationEstimate(ev.result)
}

// awaitEager blocks until the in-flight run settles, then applies its
// queued reports in order. The receive cannot fail: the task resolves
// on every path, including timeout.
func (s *Session) awaitEager(task *eagerTask) {
	select {
	case <-task.done:
	case <-s.ctx.Done():
		return
	}
	for {
		select {
		case ev := <-task.events:
			s.handleEagerEvent(ev)
		default:
			return
		}
	}
}
