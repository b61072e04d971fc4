package audio

import (
	"context"
	"sync"
	"sync/atomic"
)

// Microphone opens capture streams. Implementations own the hardware (or
// remote track) for the lifetime of the returned stream.
type Microphone interface {
	Open(ctx context.Context) (CaptureStream, error)
}

// CaptureStream delivers blocks of mono float32 samples. The Samples channel
// is closed when capture ends, either via Close or because the source went away.
type CaptureStream interface {
	Samples() <-chan []float32
	SampleRate() int
	Close() error
}

// OutputDevice plays mono float32 samples. Write must not block on playback.
type OutputDevice interface {
	Write(samples []float32, sampleRate int) error
	Close() error
}

// Flusher is implemented by output devices that can discard queued audio
type Flusher interface {
	Flush()
}

// OutputOpener acquires an output device for one session
type OutputOpener interface {
	OpenOutput(ctx context.Context) (OutputDevice, error)
}

// CaptureBuffer is a bounded CaptureStream fed from a producer that must
// never block, such as a device callback. When full, the newest block is dropped.
type CaptureBuffer struct {
	ch         chan []float32
	sampleRate int
	dropped    atomic.Uint64
	mu         sync.RWMutex
	closed     bool
	onClose    func() error
}

// NewCaptureBuffer creates a buffer holding up to size blocks.
// onClose, if set, is called once when the buffer is closed.
func NewCaptureBuffer(size, sampleRate int, onClose func() error) *CaptureBuffer {
	if size <= 0 {
		size = 32
	}
	return &CaptureBuffer{
		ch:         make(chan []float32, size),
		sampleRate: sampleRate,
		onClose:    onClose,
	}
}

// Offer queues a copy of samples. It returns false if the block was dropped.
func (b *CaptureBuffer) Offer(samples []float32) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	block := make([]float32, len(samples))
	copy(block, samples)

	select {
	case b.ch <- block:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Samples implements CaptureStream
func (b *CaptureBuffer) Samples() <-chan []float32 {
	return b.ch
}

// SampleRate implements CaptureStream
func (b *CaptureBuffer) SampleRate() int {
	return b.sampleRate
}

// Dropped returns the number of blocks dropped because the buffer was full
func (b *CaptureBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

// End closes the sample channel without running onClose. Used when the
// source disappears on its own.
func (b *CaptureBuffer) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Close ends the stream and releases the source. Safe to call more than once.
func (b *CaptureBuffer) Close() error {
	b.mu.Lock()
	if b.closed && b.onClose == nil {
		b.mu.Unlock()
		return nil
	}
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	release := b.onClose
	b.onClose = nil
	b.mu.Unlock()

	if release != nil {
		return release()
	}
	return nil
}
