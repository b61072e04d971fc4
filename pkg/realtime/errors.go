package realtime

import "errors"

var (
	// ErrQueueFull is returned by Send when the outbound queue is full.
	// The chunk is dropped.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrClosed is returned by Send after the session has closed
	ErrClosed = errors.New("session closed")
)

// ConnectionError reports a failed session handshake. No session state
// survives it.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return "connect: " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SessionError reports a failure of an open session. It is delivered as an
// event immediately before SessionClosed.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return "session " + e.Op + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
