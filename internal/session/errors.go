package session

import "fmt"

// Kind classifies session failures by their recovery semantics.
type Kind int

const (
	// KindDevice is a microphone acquisition failure: fatal for the
	// session, recoverable by the user after granting access.
	KindDevice Kind = iota + 1
	// KindChannel is a transport failure: fatal for the session, manual
	// retry only.
	KindChannel
	// KindProtocol is a malformed or unexpected message: logged and
	// absorbed, the session continues.
	KindProtocol
	// KindServer is an explicit backend error event: ends the session with
	// the message surfaced to the user.
	KindServer
	// KindPlayback is a codec or playback failure: the item is dropped, the
	// session continues.
	KindPlayback
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindChannel:
		return "channel"
	case KindProtocol:
		return "protocol"
	case KindServer:
		return "server"
	case KindPlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Error couples a failure kind with its cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
