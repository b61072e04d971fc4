package audio

import "errors"

// ErrOutputUnavailable is returned when no output device is attached
var ErrOutputUnavailable = errors.New("output device unavailable")

// PlaybackError is a non-fatal, per-chunk failure to decode or play audio
type PlaybackError struct {
	Op  string
	Err error
}

func (e *PlaybackError) Error() string {
	return "playback: " + e.Op + ": " + e.Err.Error()
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
