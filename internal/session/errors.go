package session

import (
	"errors"
	"fmt"
)

// InvalidTransitionError rejects a client event that has no edge from
// the session's current state.
type InvalidTransitionError struct {
	State State
	Event string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Event, e.State)
}

// PipelineError names the pipeline stage that failed and whether the
// user can retry the operation that hit it. An evaluation failure is
// recoverable; a synthesis failure is not, the text is delivered
// unspoken instead.
type PipelineError struct {
	Stage       string
	Recoverable bool
	Err         error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ErrConsentRequired is returned when recording is requested before
// the client has granted audio consent.
var ErrConsentRequired = errors.New("audio consent not granted")

// ErrNoCachedAudio is returned by replay when no evaluation is
// retained.
var ErrNoCachedAudio = errors.New("no cached evaluation to replay")

// ErrNothingToSave rejects save_outputs before an evaluation exists.
var ErrNothingToSave = errors.New("no evaluation to save")

// ErrRetentionNotGranted rejects save_outputs without retention
// consent.
var ErrRetentionNotGranted = errors.New("output retention consent not granted")
