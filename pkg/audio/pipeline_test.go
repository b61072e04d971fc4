package audio

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type chunkSink struct {
	mu     sync.Mutex
	chunks []EncodedChunk
	err    error
}

func (s *chunkSink) send(chunk EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *chunkSink) snapshot() []EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EncodedChunk(nil), s.chunks...)
}

func waitDone(t *testing.T, p *Pipeline) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish")
	}
}

func TestPipelineEncodesInCaptureOrder(t *testing.T) {
	sink := &chunkSink{}
	p, err := NewPipeline(PipelineConfig{Send: sink.send, Logger: slog.Default()})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	defer p.Close()

	input := make([]float32, FrameSamples*2+100)
	for i := range input {
		input[i] = float32(i%200)/200 - 0.5
	}

	in := make(chan []float32, 16)
	p.SetInputChannel(in)
	p.Start()

	for i := 0; i < len(input); i += 1000 {
		end := min(i+1000, len(input))
		in <- input[i:end]
	}
	close(in)
	waitDone(t, p)

	chunks := sink.snapshot()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	expected := FloatToPCM16(input)
	for n, chunk := range chunks {
		if chunk.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("chunk %d: mime type %q", n, chunk.MIMEType)
		}
		samples, err := DecodePCM16(chunk)
		if err != nil {
			t.Fatalf("chunk %d: decode failed: %v", n, err)
		}
		for i, sample := range samples {
			if sample != expected[n*FrameSamples+i] {
				t.Fatalf("chunk %d sample %d out of order", n, i)
			}
		}
	}

	sent, dropped := p.Stats()
	if sent != 2 || dropped != 0 {
		t.Errorf("stats: sent=%d dropped=%d", sent, dropped)
	}
}

func TestPipelineCountsSendFailures(t *testing.T) {
	sink := &chunkSink{err: errors.New("queue full")}
	rec := &countingRecorder{}
	p, _ := NewPipeline(PipelineConfig{Send: sink.send, Recorder: rec})
	defer p.Close()

	in := make(chan []float32, 1)
	p.SetInputChannel(in)
	p.Start()

	in <- make([]float32, FrameSamples)
	close(in)
	waitDone(t, p)

	_, dropped := p.Stats()
	if dropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", dropped)
	}
	if rec.dropped != 1 {
		t.Errorf("recorder saw %d drops", rec.dropped)
	}
}

func TestPipelineResamplesInput(t *testing.T) {
	sink := &chunkSink{}
	p, _ := NewPipeline(PipelineConfig{InputSampleRate: 48000, Send: sink.send})
	defer p.Close()

	in := make(chan []float32, 1)
	p.SetInputChannel(in)
	p.Start()

	// 3 frames worth at 48kHz becomes exactly one 16kHz frame
	in <- make([]float32, FrameSamples*3)
	close(in)
	waitDone(t, p)

	if len(sink.snapshot()) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(sink.snapshot()))
	}
}

func TestPipelineCloseIdempotent(t *testing.T) {
	p, _ := NewPipeline(PipelineConfig{Send: func(EncodedChunk) error { return nil }})

	in := make(chan []float32)
	p.SetInputChannel(in)
	p.Start()

	if err := p.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	waitDone(t, p)
}

func TestPipelineRequiresSend(t *testing.T) {
	if _, err := NewPipeline(PipelineConfig{}); err == nil {
		t.Error("expected error without send function")
	}
}

type countingRecorder struct {
	mu      sync.Mutex
	sent    int
	dropped int
}

func (r *countingRecorder) FrameSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
}

func (r *countingRecorder) FrameDropped(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

func (r *countingRecorder) PlaybackDropped(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}
