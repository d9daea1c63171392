package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avendahl/podium/internal/protocol"
)

func TestDeliverServesCacheWithoutRegenerating(t *testing.T) {
	h := newHarness(t, nil)
	h.record()
	h.pumpEager()

	h.sess.handleDeliver()

	if got := h.eval.callCount(); got != 1 {
		t.Errorf("evaluator calls = %d, want 1 (speculative run only)", got)
	}
	if got := h.synth.callCount(); got != 1 {
		t.Errorf("synthesizer calls = %d, want 1", got)
	}

	log := h.sender.log()
	want := []string{
		"state_change:delivering",
		"evaluation_ready",
		"binary",
		"tts_complete",
		"state_change:idle",
	}
	if !containsInOrder(log, want...) {
		t.Errorf("log = %v, want subsequence %v", log, want)
	}

	ev, ok := h.sender.lastEvaluationReady()
	if !ok {
		t.Fatal("no evaluation_ready sent")
	}
	if want := "[public] Good pacing overall, watch the fillers."; ev.Evaluation != want {
		t.Errorf("delivered evaluation = %q, want the reviewed form %q", ev.Evaluation, want)
	}
	if ev.Evaluation == h.sess.cache.Evaluation {
		t.Error("delivered evaluation is the internal, unreviewed text")
	}

	bins := h.sender.binaries()
	if len(bins) != 1 || string(bins[0]) != "fake-wav-bytes" {
		t.Errorf("binaries = %v, want the cached audio once", bins)
	}
	if h.instr.get("delivery:cache") != 1 {
		t.Errorf("delivery:cache = %d, want 1", h.instr.get("delivery:cache"))
	}
	if h.sess.purgeTimer == nil {
		t.Error("purge timer not armed after delivery")
	}
}

func TestDeliverWaitsForInFlightRun(t *testing.T) {
	h := newHarness(t, nil)
	block := make(chan struct{})
	h.eval.block = block
	h.record()

	if h.sess.eagerStatus != EagerGenerating {
		t.Fatalf("eagerStatus = %q, want generating", h.sess.eagerStatus)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	h.sess.handleDeliver()

	if h.sess.state != StateIdle {
		t.Fatalf("state = %q, want idle after delivery", h.sess.state)
	}
	if got := h.eval.callCount(); got != 1 {
		t.Errorf("evaluator calls = %d, want 1", got)
	}

	log := h.sender.log()
	want := []string{
		"progress:ready",
		"state_change:delivering",
		"evaluation_ready",
		"binary",
		"tts_complete",
		"state_change:idle",
	}
	if !containsInOrder(log, want...) {
		t.Errorf("log = %v, want subsequence %v", log, want)
	}
	if h.instr.get("delivery:awaited") != 1 {
		t.Errorf("delivery:awaited = %d, want 1", h.instr.get("delivery:awaited"))
	}
}

func TestDeliverWaitsThenRegeneratesWhenRunFailed(t *testing.T) {
	h := newHarness(t, nil)
	block := make(chan struct{})
	h.eval.block = block
	h.eval.setErr(errors.New("model overloaded"))
	h.record()

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.eval.setErr(nil)
		close(block)
	}()

	// The blocked call captured its error at entry, so the awaited run
	// resolves as failed and delivery regenerates with the healthy
	// evaluator.
	h.sess.handleDeliver()

	if h.sess.state != StateIdle {
		t.Fatalf("state = %q, want idle", h.sess.state)
	}
	if got := h.eval.callCount(); got != 2 {
		t.Errorf("evaluator calls = %d, want 2 (failed run + regenerate)", got)
	}
	if h.instr.get("delivery:fallback") != 1 {
		t.Errorf("delivery:fallback = %d, want 1", h.instr.get("delivery:fallback"))
	}
}

func TestDeliverRegeneratesAfterFailedRun(t *testing.T) {
	h := newHarness(t, nil)
	h.eval.setErr(errors.New("model down"))
	h.record()
	h.pumpEager()

	if h.sess.eagerStatus != EagerFailed {
		t.Fatalf("eagerStatus = %q, want failed", h.sess.eagerStatus)
	}
	log := h.sender.log()
	if !containsInOrder(log, "progress:failed") {
		t.Errorf("log = %v, want progress:failed", log)
	}
	if containsInOrder(log, "error:recoverable=true") || containsInOrder(log, "error:recoverable=false") {
		t.Errorf("log = %v: background failure leaked an error event", log)
	}

	h.eval.setErr(nil)
	h.sess.handleDeliver()

	if h.sess.state != StateIdle {
		t.Fatalf("state = %q, want idle", h.sess.state)
	}
	if got := h.eval.callCount(); got != 2 {
		t.Errorf("evaluator calls = %d, want 2", got)
	}
	want := []string{
		"progress:generating_evaluation",
		"progress:synthesizing_audio",
		"state_change:delivering",
		"evaluation_ready",
		"binary",
		"tts_complete",
		"duration_estimate",
		"state_change:idle",
	}
	if log := h.sender.log(); !containsInOrder(log, want...) {
		t.Errorf("log = %v, want subsequence %v", log, want)
	}
	if h.sess.cache == nil {
		t.Error("regenerated result not retained for replay")
	}
}

func TestDuplicateDeliverIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.record()
	h.pumpEager()
	h.sess.state = StateDelivering

	before := h.sender.count()
	h.sess.handleDeliver()

	if got := h.sender.count(); got != before {
		t.Errorf("sent %d new items, want 0", got-before)
	}
	if got := h.eval.callCount(); got != 1 {
		t.Errorf("evaluator calls = %d, want 1", got)
	}
}

func TestDuplicateReplayIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.recordAndDeliver()
	h.sess.state = StateDelivering

	before := h.sender.count()
	h.sess.handleReplay()

	if got := h.sender.count(); got != before {
		t.Errorf("sent %d new items, want 0", got-before)
	}
}

func TestDeliverInIdleRejected(t *testing.T) {
	h := newHarness(t, nil)

	h.sess.handleDeliver()

	if h.sess.state != StateIdle {
		t.Fatalf("state = %q, want idle", h.sess.state)
	}
	log := h.sender.log()
	if !containsInOrder(log, "error:recoverable=true") {
		t.Errorf("log = %v, want recoverable error", log)
	}
	if got := h.eval.callCount(); got != 0 {
		t.Errorf("evaluator calls = %d, want 0", got)
	}
}

func TestRegenerationEvaluationFailureKeepsProcessing(t *testing.T) {
	h := newHarness(t, nil)
	h.eval.setErr(errors.New("model down"))
	h.record()
	h.pumpEager()

	h.sess.handleDeliver()

	if h.sess.state != StateProcessing {
		t.Fatalf("state = %q, want processing so the user can retry", h.sess.state)
	}
	log := h.sender.log()
	if !containsInOrder(log, "error:recoverable=true") {
		t.Errorf("log = %v, want recoverable error", log)
	}
	if containsInOrder(log, "evaluation_ready") {
		t.Errorf("log = %v: evaluation_ready sent despite generation failure", log)
	}
	if h.instr.get("failure:evaluation") != 1 {
		t.Errorf("failure:evaluation = %d, want 1", h.instr.get("failure:evaluation"))
	}
}

func TestRegenerationSynthesisFailureStillDeliversText(t *testing.T) {
	h := newHarness(t, nil)
	h.eval.setErr(errors.New("model down"))
	h.record()
	h.pumpEager()
	h.eval.setErr(nil)
	h.synth.setErr(errors.New("voice service down"))

	h.sess.handleDeliver()

	if h.sess.state != StateIdle {
		t.Fatalf("state = %q, want idle: losing the audio ends the attempt, not the session", h.sess.state)
	}
	want := []string{
		"state_change:delivering",
		"evaluation_ready",
		"error:recoverable=false",
		"state_change:idle",
	}
	log := h.sender.log()
	if !containsInOrder(log, want...) {
		t.Errorf("log = %v, want subsequence %v", log, want)
	}
	if containsInOrder(log, "tts_complete") {
		t.Errorf("log = %v: tts_complete sent without audio", log)
	}
	if len(h.sender.binaries()) != 0 {
		t.Error("audio bytes sent despite synthesis failure")
	}
	if h.sess.cache == nil || len(h.sess.cache.Audio.Data) != 0 {
		t.Fatalf("cache = %+v, want the text-only result retained", h.sess.cache)
	}
	if h.sess.purgeTimer == nil {
		t.Error("purge timer not armed for the retained text")
	}

	h.sess.handleReplay()
	if !containsInOrder(h.sender.log(), "error:recoverable=true") {
		t.Error("replay of an audioless result not refused")
	}
}

func TestSaveOutputsAfterSynthesisFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.sess.handleSetConsent(protocol.SetConsent{Audio: true, RetainOutputs: true})
	h.synth.setErr(errors.New("voice service down"))
	h.sess.handleStartRecording()
	h.sess.handleStopRecording()
	h.pumpEager()
	h.sess.handleDeliver()

	h.sess.handleSaveOutputs()

	saved := h.outputs.savedOutputs()
	if len(saved) != 1 {
		t.Fatalf("saved %d outputs, want 1", len(saved))
	}
	if !strings.HasPrefix(saved[0].Evaluation, "[public] ") {
		t.Errorf("stored evaluation %q is not the reviewed form", saved[0].Evaluation)
	}
	if !containsInOrder(h.sender.log(), "error:recoverable=false", "output_saved") {
		t.Errorf("log = %v, want failed delivery then output_saved", h.sender.log())
	}
}

func TestReplayServesCachedDelivery(t *testing.T) {
	h := newHarness(t, nil)
	h.recordAndDeliver()
	evalCalls, synthCalls := h.eval.callCount(), h.synth.callCount()

	h.sess.handleReplay()

	if h.sess.state != StateIdle {
		t.Fatalf("state = %q, want idle", h.sess.state)
	}
	if got := h.eval.callCount(); got != evalCalls {
		t.Errorf("evaluator calls grew to %d during replay", got)
	}
	if got := h.synth.callCount(); got != synthCalls {
		t.Errorf("synthesizer calls grew to %d during replay", got)
	}
	bins := h.sender.binaries()
	if len(bins) != 2 {
		t.Fatalf("binaries = %d, want 2 (delivery + replay)", len(bins))
	}
	if string(bins[0]) != string(bins[1]) {
		t.Error("replay audio differs from the delivered audio")
	}
}

func TestReplayWithoutCacheRejected(t *testing.T) {
	h := newHarness(t, nil)

	h.sess.handleReplay()

	log := h.sender.log()
	if !containsInOrder(log, "error:recoverable=true") {
		t.Errorf("log = %v, want recoverable error", log)
	}
	if h.sess.state != StateIdle {
		t.Errorf("state = %q, want idle", h.sess.state)
	}
}
