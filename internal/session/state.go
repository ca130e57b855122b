package session

// State is the session lifecycle state. The state machine is the single
// authority on whether capture may run: frames are transmitted only while
// the session is Listening.
type State int

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateConnecting covers the token fetch and channel dial.
	StateConnecting
	// StateAwaitingReadiness waits for the backend's readiness confirmation
	// or the fallback timer, whichever fires first.
	StateAwaitingReadiness
	// StateListening streams captured audio to the backend.
	StateListening
	// StateSpeaking plays a synthesized reply; capture frames are dropped.
	StateSpeaking
	// StateError is terminal for this run; recovery is a fresh Start.
	StateError
	// StateClosed is the clean terminal state.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingReadiness:
		return "awaiting_readiness"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the current run.
func (s State) Terminal() bool {
	return s == StateError || s == StateClosed
}
