package audio

import (
	"log/slog"
	"sync"
	"time"
)

// PlaybackRecorder counts chunks that could not be played. It may be nil.
type PlaybackRecorder interface {
	PlaybackDropped(reason string)
}

// PlaybackOptions configures a PlaybackScheduler
type PlaybackOptions struct {
	Now      func() time.Time // Clock, defaults to time.Now
	Recorder PlaybackRecorder
	Logger   *slog.Logger
}

// PlaybackScheduler queues decoded chunks back to back on an output device.
// Each chunk starts at max(now, playhead) and moves the playhead forward by
// its duration, so chunks play in arrival order without gaps or overlap.
type PlaybackScheduler struct {
	device   OutputDevice
	now      func() time.Time
	recorder PlaybackRecorder
	logger   *slog.Logger

	mu       sync.Mutex
	playhead time.Time
	dropped  uint64
	closed   bool
}

// NewPlaybackScheduler creates a scheduler writing to device. A nil device
// is allowed: every chunk is then dropped with a warning.
func NewPlaybackScheduler(device OutputDevice, opts PlaybackOptions) *PlaybackScheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PlaybackScheduler{
		device:   device,
		now:      opts.Now,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// Enqueue schedules chunk and returns its start time. Failures are
// non-fatal: the chunk is dropped and a *PlaybackError returned.
func (s *PlaybackScheduler) Enqueue(chunk PlaybackChunk) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.device == nil {
		return time.Time{}, s.drop("unavailable", &PlaybackError{Op: "enqueue", Err: ErrOutputUnavailable})
	}
	if len(chunk.Samples) == 0 {
		return s.playheadLocked(), nil
	}

	if err := s.device.Write(chunk.Samples, chunk.SampleRate); err != nil {
		return time.Time{}, s.drop("write", &PlaybackError{Op: "write", Err: err})
	}

	start := s.playheadLocked()
	s.playhead = start.Add(chunk.Duration())
	return start, nil
}

// EnqueueEncoded decodes and schedules an inbound chunk
func (s *PlaybackScheduler) EnqueueEncoded(chunk EncodedChunk) (time.Time, error) {
	decoded, err := Decode(chunk)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return time.Time{}, s.drop("decode", err)
	}
	return s.Enqueue(decoded)
}

// Playhead returns the time at which the next chunk would start
func (s *PlaybackScheduler) Playhead() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playheadLocked()
}

// Dropped returns how many chunks were not played
func (s *PlaybackScheduler) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Flush discards queued audio and resets the playhead to now
func (s *PlaybackScheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.device.(Flusher); ok && !s.closed {
		f.Flush()
	}
	s.playhead = time.Time{}
}

// Close releases the output device. Safe to call more than once.
func (s *PlaybackScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.device == nil {
		return nil
	}
	return s.device.Close()
}

func (s *PlaybackScheduler) playheadLocked() time.Time {
	now := s.now()
	if s.playhead.Before(now) {
		return now
	}
	return s.playhead
}

func (s *PlaybackScheduler) drop(reason string, err error) error {
	s.dropped++
	if s.recorder != nil {
		s.recorder.PlaybackDropped(reason)
	}
	s.logger.Warn("dropping playback chunk", "reason", reason, "error", err)
	return err
}
