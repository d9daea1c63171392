package session

// State is where a session sits in the recording and delivery
// lifecycle. Every transition happens inside the session loop.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateDelivering State = "delivering"
)

// transitions lists the legal edges, keyed by the wire name of the
// client message that drives them. Pairs absent here are rejected with
// an InvalidTransitionError and leave the session unchanged.
var transitions = map[State]map[string]State{
	StateIdle: {
		"start_recording": StateRecording,
		"replay_tts":      StateDelivering,
	},
	StateRecording: {
		"stop_recording": StateProcessing,
		"panic_mute":     StateIdle,
	},
	StateProcessing: {
		"deliver_evaluation": StateDelivering,
		"panic_mute":         StateIdle,
	},
	StateDelivering: {},
}

// next resolves the edge for event from the given state.
func next(from State, event string) (State, error) {
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return from, &InvalidTransitionError{State: from, Event: event}
}
