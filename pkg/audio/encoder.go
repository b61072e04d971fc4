package audio

import "sync"

// Encoder accumulates captured samples of any block size into fixed-size
// frames. Frames come out in capture order with increasing sequence numbers.
type Encoder struct {
	frameSize int
	buffer    []float32
	seq       uint64
	mu        sync.Mutex
}

// NewEncoder creates an encoder producing frames of frameSize samples.
// A non-positive size selects FrameSamples.
func NewEncoder(frameSize int) *Encoder {
	if frameSize <= 0 {
		frameSize = FrameSamples
	}
	return &Encoder{
		frameSize: frameSize,
		buffer:    make([]float32, 0, frameSize),
	}
}

// Push adds samples and returns every frame that is now complete
func (e *Encoder) Push(samples []float32) []Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer = append(e.buffer, samples...)

	var frames []Frame
	for len(e.buffer) >= e.frameSize {
		frames = append(frames, e.nextFrame(e.buffer[:e.frameSize]))
		e.buffer = e.buffer[e.frameSize:]
	}
	// Compact so the backing array does not grow without bound
	if len(e.buffer) == 0 {
		e.buffer = e.buffer[:0:0]
	}

	return frames
}

// Flush returns the buffered tail as a short frame, or false if empty
func (e *Encoder) Flush() (Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buffer) == 0 {
		return Frame{}, false
	}
	frame := e.nextFrame(e.buffer)
	e.buffer = e.buffer[:0]
	return frame, true
}

// Reset drops buffered samples without producing a frame
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = e.buffer[:0]
}

// Buffered returns the number of samples waiting for a full frame
func (e *Encoder) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

func (e *Encoder) nextFrame(samples []float32) Frame {
	e.seq++
	return Frame{Seq: e.seq, Samples: FloatToPCM16(samples)}
}
