package webrtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/silviot/live_tutor_go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusFrameDuration = 20 * time.Millisecond
	opusFrameSamples  = opusSampleRate / 50
	maxOpusPacket     = 4000
	maxQueuedSamples  = opusSampleRate * 60
)

// sampleWriter is the part of a local track used for playback
type sampleWriter interface {
	WriteSample(sample media.Sample) error
}

// addOutputTrack attaches an outbound Opus track so the engine's voice can be
// sent back to the browser. It must run before the answer is created.
func (p *Peer) addOutputTrack() error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusSampleRate, Channels: 2},
		"audio", "live-tutor-"+p.id,
	)
	if err != nil {
		return fmt.Errorf("failed to create output track: %w", err)
	}
	sender, err := p.peerConn.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add output track: %w", err)
	}

	// Drain RTCP so interceptors keep running
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	p.track = track
	return nil
}

// OpenOutput implements audio.OutputOpener for peers created with SendAudio
func (p *Peer) OpenOutput(ctx context.Context) (audio.OutputDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPeerClosed
	}
	if p.track == nil {
		return nil, fmt.Errorf("peer has no output track")
	}

	encoder, err := opus.NewEncoder(opusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create Opus encoder: %w", err)
	}
	out := newTrackOutput(p.track, encoder, p.recorder, p.logger)
	out.start()
	return out, nil
}

// trackOutput paces decoded speech onto the outbound track in 20ms Opus frames
type trackOutput struct {
	writer   sampleWriter
	encoder  *opus.Encoder
	recorder audio.PlaybackRecorder
	logger   *slog.Logger

	mu         sync.Mutex
	pending    []float32 // mono at opusSampleRate
	resamplers map[int]*audio.Resampler

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newTrackOutput(writer sampleWriter, encoder *opus.Encoder, recorder audio.PlaybackRecorder, logger *slog.Logger) *trackOutput {
	return &trackOutput{
		writer:     writer,
		encoder:    encoder,
		recorder:   recorder,
		logger:     logger,
		resamplers: make(map[int]*audio.Resampler),
		closeCh:    make(chan struct{}),
	}
}

func (o *trackOutput) start() {
	o.wg.Add(1)
	go o.sendLoop()
}

// Write implements audio.OutputDevice
func (o *trackOutput) Write(samples []float32, sampleRate int) error {
	select {
	case <-o.closeCh:
		return audio.ErrOutputUnavailable
	default:
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	resampler, ok := o.resamplers[sampleRate]
	if !ok {
		r, err := audio.NewResampler(sampleRate, opusSampleRate, o.logger)
		if err != nil {
			return err
		}
		resampler = r
		o.resamplers[sampleRate] = r
	}

	o.pending = append(o.pending, resampler.Resample(samples)...)
	if over := len(o.pending) - maxQueuedSamples; over > 0 {
		// Oldest speech goes first
		o.pending = o.pending[over:]
		o.logger.Warn("output track queue full, dropping queued speech",
			"dropped_ms", over*1000/opusSampleRate)
		if o.recorder != nil {
			o.recorder.PlaybackDropped("overflow")
		}
	}
	return nil
}

// Flush implements audio.Flusher
func (o *trackOutput) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
}

// next takes one frame of queued audio, padding a short tail with silence
func (o *trackOutput) next() ([]float32, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.pending) == 0 {
		return nil, false
	}
	frame := make([]float32, opusFrameSamples)
	n := copy(frame, o.pending)
	o.pending = o.pending[n:]
	if len(o.pending) == 0 {
		o.pending = nil
	}
	return frame, true
}

func (o *trackOutput) sendLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()
	packet := make([]byte, maxOpusPacket)

	for {
		select {
		case <-o.closeCh:
			return
		case <-ticker.C:
			frame, ok := o.next()
			if !ok {
				continue
			}
			n, err := o.encoder.EncodeFloat32(frame, packet)
			if err != nil {
				o.logger.Debug("opus encode error", "error", err)
				continue
			}
			data := make([]byte, n)
			copy(data, packet[:n])
			if err := o.writer.WriteSample(media.Sample{Data: data, Duration: opusFrameDuration}); err != nil {
				o.logger.Debug("failed to write output sample", "error", err)
			}
		}
	}
}

// Close implements audio.OutputDevice. The track stays attached to the
// peer so a later session can open it again.
func (o *trackOutput) Close() error {
	o.closeOnce.Do(func() {
		close(o.closeCh)
	})
	o.wg.Wait()
	o.Flush()
	return nil
}
