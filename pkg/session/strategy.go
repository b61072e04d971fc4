package session

import (
	"context"
	"log/slog"

	"github.com/silviot/live_tutor_go/pkg/audio"
)

// Output consumes the engine's audio for one session. Its methods are only
// called from the controller's event loop.
type Output interface {
	HandleAudio(chunk audio.EncodedChunk)
	Interrupt()
	Close() error
}

// OutputStrategy opens an Output each time a session starts
type OutputStrategy interface {
	Open(ctx context.Context) (Output, error)
}

// TranscriptOnly ignores audio deltas; only transcripts are kept
type TranscriptOnly struct{}

func (TranscriptOnly) Open(context.Context) (Output, error) {
	return discardOutput{}, nil
}

type discardOutput struct{}

func (discardOutput) HandleAudio(audio.EncodedChunk) {}
func (discardOutput) Interrupt()                     {}
func (discardOutput) Close() error                   { return nil }

// Playback decodes audio deltas and schedules them on an output device.
// If the device cannot be opened the session still runs and every chunk is
// dropped with a warning.
type Playback struct {
	Device   audio.OutputOpener
	Recorder audio.PlaybackRecorder
	Logger   *slog.Logger
}

func (p *Playback) Open(ctx context.Context) (Output, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var device audio.OutputDevice
	if p.Device != nil {
		d, err := p.Device.OpenOutput(ctx)
		if err != nil {
			logger.Warn("output device unavailable, audio replies will not be played", "error", err)
		} else {
			device = d
		}
	}

	return &playbackOutput{
		scheduler: audio.NewPlaybackScheduler(device, audio.PlaybackOptions{
			Recorder: p.Recorder,
			Logger:   logger,
		}),
	}, nil
}

type playbackOutput struct {
	scheduler *audio.PlaybackScheduler
}

func (o *playbackOutput) HandleAudio(chunk audio.EncodedChunk) {
	// Failures are counted and logged by the scheduler
	o.scheduler.EnqueueEncoded(chunk)
}

func (o *playbackOutput) Interrupt() {
	o.scheduler.Flush()
}

func (o *playbackOutput) Close() error {
	return o.scheduler.Close()
}
