package session

import (
	"github.com/avendahl/podium/internal/protocol"
	"github.com/avendahl/podium/internal/transcribe"
	"github.com/avendahl/podium/internal/tts"
)

// discardRun drops the in-flight eager work and any cached result and
// advances the run counter so stragglers from the old run are
// rejected when they report in. The orphaned task keeps running until
// its context notices; its output lands in a channel nobody reads.
func (s *Session) discardRun() {
	s.runID++
	s.eagerStatus = EagerIdle
	s.cache = nil
	if s.eager != nil {
		s.eager.cancel()
		s.eager = nil
	}
	s.stopPurgeTimer()
}

// invalidate handles a parameter change landing while the pipeline is
// in flight: the current run's work no longer matches what the user
// asked for.
func (s *Session) invalidate(reason string) {
	s.discardRun()
	s.instruments.Invalidation(reason)
	s.sendProgress(protocol.StageInvalidated, "")
}

func (s *Session) handleSetTimeLimit(msg protocol.SetTimeLimit) {
	if msg.Seconds == s.timeLimit {
		return
	}
	s.timeLimit = msg.Seconds
	if s.state == StateProcessing {
		s.invalidate("time_limit")
	}
}

func (s *Session) handleSetVoice(msg protocol.SetVoice) {
	voice := tts.VoiceConfig{Name: msg.Voice, Speed: msg.Speed}
	if voice == s.voice {
		return
	}
	s.voice = voice
	if s.state == StateProcessing {
		s.invalidate("voice")
	}
}

func (s *Session) handleSetConsent(msg protocol.SetConsent) {
	prev := s.consent
	s.consent = Consent{
		Audio:         msg.Audio,
		Video:         msg.Video,
		RetainOutputs: msg.RetainOutputs,
	}
	if (prev.Audio && !msg.Audio) || (prev.Video && !msg.Video) {
		s.revokeData()
	}
}

func (s *Session) handleRevokeConsent() {
	s.consent = Consent{}
	s.revokeData()
}

// revokeData tears down captured material after consent is withdrawn.
// Mid-capture this behaves like panic_mute first, then erases
// everything and tells the client so.
func (s *Session) revokeData() {
	if s.state == StateRecording || s.state == StateProcessing {
		s.abortToIdle()
	}
	s.purgeData("consent_revoked")
	s.sendDataPurged("consent_revoked")
}

func (s *Session) handlePanicMute() {
	if _, err := next(s.state, "panic_mute"); err != nil {
		s.sendError(err.Error(), true)
		return
	}
	s.abortToIdle()
	s.purgeData("panic_mute")
	s.sendDataPurged("panic_mute")
}

// abortToIdle cuts off capture and discards the current run. The
// state change is announced; the discard itself is silent.
func (s *Session) abortToIdle() {
	s.closeStream()
	s.discardRun()
	s.setState(StateIdle)
}

// purgeData erases everything derived from the user's speech.
func (s *Session) purgeData(reason string) {
	s.transcript = transcribe.Transcript{}
	s.cache = nil
	s.stopPurgeTimer()
	s.instruments.Purge(reason)
}
