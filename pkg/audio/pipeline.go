package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SendFunc hands an encoded frame to the session. It must not block.
type SendFunc func(EncodedChunk) error

// FrameRecorder receives per-frame outcomes. It may be nil.
type FrameRecorder interface {
	FrameSent()
	FrameDropped(reason string)
}

// PipelineConfig configures a capture pipeline
type PipelineConfig struct {
	InputSampleRate int // Rate of the capture stream; resampled to CaptureSampleRate
	FrameSize       int // Samples per frame (default FrameSamples)
	Send            SendFunc
	Recorder        FrameRecorder
	Logger          *slog.Logger
}

// Pipeline turns capture blocks into encoded frames and hands them to Send
// in capture order: resampling, PCM16 conversion, framing, base64 encoding.
type Pipeline struct {
	inputCh   <-chan []float32
	resampler *Resampler
	encoder   *Encoder
	send      SendFunc
	recorder  FrameRecorder
	logger    *slog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64

	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewPipeline creates a new capture pipeline
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Send == nil {
		return nil, fmt.Errorf("send function is required")
	}
	inputRate := cfg.InputSampleRate
	if inputRate == 0 {
		inputRate = CaptureSampleRate
	}

	resampler, err := NewResampler(inputRate, CaptureSampleRate, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	if !resampler.Passthrough() {
		logger.Debug("capture will be resampled",
			"input_rate", inputRate, "output_rate", CaptureSampleRate)
	}

	return &Pipeline{
		resampler: resampler,
		encoder:   NewEncoder(cfg.FrameSize),
		send:      cfg.Send,
		recorder:  cfg.Recorder,
		logger:    logger,
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// SetInputChannel sets the capture block channel. Must be called before Start.
func (p *Pipeline) SetInputChannel(ch <-chan []float32) {
	p.inputCh = ch
}

// Start launches the encode goroutine
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.processLoop()
	})
}

// Done is closed when the pipeline stops, including when the input channel closes
func (p *Pipeline) Done() <-chan struct{} {
	return p.doneCh
}

func (p *Pipeline) processLoop() {
	defer p.wg.Done()
	defer close(p.doneCh)

	if p.inputCh == nil {
		return
	}

	for {
		select {
		case <-p.closeCh:
			return
		case block, ok := <-p.inputCh:
			if !ok {
				p.logger.Debug("capture channel closed")
				return
			}
			if len(block) == 0 {
				continue
			}
			for _, frame := range p.encoder.Push(p.resampler.Resample(block)) {
				p.sendFrame(frame)
			}
		}
	}
}

func (p *Pipeline) sendFrame(frame Frame) {
	if err := p.send(Encode(frame)); err != nil {
		p.dropped.Add(1)
		if p.recorder != nil {
			p.recorder.FrameDropped("send")
		}
		p.logger.Debug("frame not sent", "seq", frame.Seq, "error", err)
		return
	}
	p.sent.Add(1)
	if p.recorder != nil {
		p.recorder.FrameSent()
	}
}

// Stats returns the number of frames sent and dropped so far
func (p *Pipeline) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}

// Close stops the pipeline and waits for the encode goroutine. Samples that
// do not fill a frame are discarded.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
	})
	p.wg.Wait()
	p.encoder.Reset()
	return nil
}
