package session

import (
	"errors"
	"fmt"

	"github.com/silviot/live_tutor_go/pkg/realtime"
)

// DeviceError reports that a capture or output device could not be acquired
// or went away during a session.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the user when err ends a session
func Message(err error) string {
	var (
		devErr  *DeviceError
		connErr *realtime.ConnectionError
		sessErr *realtime.SessionError
	)
	switch {
	case errors.As(err, &devErr):
		if devErr.Op == "capture" {
			return "The microphone stopped delivering audio. Start again when it is available."
		}
		return "Could not access the microphone. Check that it is connected and allowed."
	case errors.As(err, &connErr):
		return "Could not connect to the assistant. Please try again."
	case errors.As(err, &sessErr):
		return "The session ended unexpectedly. Please start again."
	default:
		return "Something went wrong: " + err.Error()
	}
}
