package session

import (
	"time"

	"github.com/avendahl/podium/internal/coach"
	"github.com/avendahl/podium/internal/tts"
)

// EvaluationCache is the immutable product of one evaluation run:
// everything needed to deliver without recomputation. Evaluation is
// the unreviewed internal text and is never sent to the client; Public
// is the reviewed form that is.
type EvaluationCache struct {
	RunID            int64
	TimeLimitSeconds int
	Voice            tts.VoiceConfig
	Transcript       string
	Metrics          coach.DeliveryMetrics
	Evaluation       string
	Public           string
	Script           string
	Audio            tts.Audio
}

// cacheUsable reports whether the cache may be served for the
// session's current parameters. A populated cache whose run or
// parameters no longer match is stale and must not be delivered; a
// cache without audio came from a synthesis failure and a fresh
// delivery should retry instead of serving it.
func (s *Session) cacheUsable() bool {
	c := s.cache
	return c != nil &&
		c.RunID == s.runID &&
		c.TimeLimitSeconds == s.timeLimit &&
		c.Voice == s.voice &&
		c.Public != "" &&
		len(c.Audio.Data) > 0
}

// armPurgeTimer (re)starts the retention countdown for the cached
// evaluation. Called after every delivery that leaves a cache behind.
func (s *Session) armPurgeTimer() {
	if s.cfg.PurgeAfter <= 0 {
		return
	}
	if s.purgeTimer != nil {
		s.purgeTimer.Stop()
	}
	s.purgeTimer = time.NewTimer(s.cfg.PurgeAfter)
}

func (s *Session) stopPurgeTimer() {
	if s.purgeTimer != nil {
		s.purgeTimer.Stop()
		s.purgeTimer = nil
	}
}

// purgeCh feeds the session loop's select. A nil channel blocks
// forever, so the timer only participates while it is armed.
func (s *Session) purgeCh() <-chan time.Time {
	if s.purgeTimer == nil {
		return nil
	}
	return s.purgeTimer.C
}

// handlePurgeTimer clears the retained evaluation once the replay
// window closes. Runs in the session loop, so a replay already being
// emitted when the timer fires completes first and the purge lands
// after it.
func (s *Session) handlePurgeTimer() {
	s.purgeTimer = nil
	s.cache = nil
	s.eagerStatus = EagerIdle
	s.instruments.Purge("retention_expired")
	s.sendDataPurged("retention_expired")
}
