package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/silviot/live_tutor_go/pkg/audio"
)

// player is the subset of *oto.Player a stream drives
type player interface {
	Play()
	Pause()
	Reset()
	Close() error
}

// OtoSpeaker owns the process-wide oto context. Each session opens its own
// stream on it.
type OtoSpeaker struct {
	SampleRate int           // Defaults to audio.PlaybackSampleRate
	BufferSize time.Duration // Device buffer, defaults to 100ms
	Logger     *slog.Logger

	once    sync.Once
	ctx     *oto.Context
	ready   chan struct{}
	initErr error
}

// OpenOutput implements audio.OutputOpener
func (s *OtoSpeaker) OpenOutput(ctx context.Context) (audio.OutputDevice, error) {
	s.once.Do(s.init)
	if s.initErr != nil {
		return nil, s.initErr
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return newStream(s.sampleRate(), func(r io.Reader) player {
		return s.ctx.NewPlayer(r)
	}, logger), nil
}

func (s *OtoSpeaker) sampleRate() int {
	if s.SampleRate > 0 {
		return s.SampleRate
	}
	return audio.PlaybackSampleRate
}

func (s *OtoSpeaker) init() {
	bufferSize := s.BufferSize
	if bufferSize <= 0 {
		bufferSize = 100 * time.Millisecond
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   s.sampleRate(),
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		s.initErr = fmt.Errorf("failed to init speaker: %w", err)
		return
	}
	s.ctx = ctx
	s.ready = ready
}

// stream is one session's output. Write converts samples to PCM16 and
// queues them; oto pulls them through Read.
type stream struct {
	sampleRate int
	newPlayer  func(io.Reader) player
	logger     *slog.Logger
	resamplers map[int]*audio.Resampler

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  player
	playing bool
	closed  bool
}

func newStream(sampleRate int, newPlayer func(io.Reader) player, logger *slog.Logger) *stream {
	s := &stream{
		sampleRate: sampleRate,
		newPlayer:  newPlayer,
		logger:     logger,
		resamplers: make(map[int]*audio.Resampler),
		buf:        make([]byte, 0, sampleRate*2),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write implements audio.OutputDevice
func (s *stream) Write(samples []float32, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.ErrOutputUnavailable
	}

	if sampleRate > 0 && sampleRate != s.sampleRate {
		r, ok := s.resamplers[sampleRate]
		if !ok {
			var err error
			if r, err = audio.NewResampler(sampleRate, s.sampleRate, s.logger); err != nil {
				return err
			}
			s.resamplers[sampleRate] = r
		}
		samples = r.Resample(samples)
	}

	s.buf = appendPCM16(s.buf, audio.FloatToPCM16(samples))

	if !s.playing {
		s.playing = true
		s.player = s.newPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player
func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		return 0, io.EOF
	}

	// Keep whole samples together
	n := copy(p[:len(p)&^1], s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Buffered returns the number of queued bytes not yet pulled by the player
func (s *stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Flush implements audio.Flusher
func (s *stream) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	p := s.player
	s.player = nil
	s.playing = false
	s.mu.Unlock()

	if p != nil {
		p.Pause()
		p.Reset()
		p.Close()
	}
}

// Close implements audio.OutputDevice
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = s.buf[:0]
	p := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if p != nil {
		return p.Close()
	}
	return nil
}

func appendPCM16(dst []byte, samples []int16) []byte {
	for _, sample := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(sample))
	}
	return dst
}
