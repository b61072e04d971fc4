package audio

import "testing"

func TestEncoderFraming(t *testing.T) {
	enc := NewEncoder(0)

	block := make([]float32, FrameSamples)
	for i := range block {
		block[i] = 0.1
	}

	frames := enc.Push(block)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if len(frames[0].Samples) != FrameSamples {
		t.Errorf("frame size mismatch: got %d, want %d", len(frames[0].Samples), FrameSamples)
	}
	if frames[0].Duration().Milliseconds() != 256 {
		t.Errorf("frame duration: got %v, want 256ms", frames[0].Duration())
	}

	// Half a frame is held back
	frames = enc.Push(make([]float32, FrameSamples/2))
	if len(frames) != 0 {
		t.Errorf("expected 0 frames for partial, got %d", len(frames))
	}
	if enc.Buffered() != FrameSamples/2 {
		t.Errorf("buffered: got %d, want %d", enc.Buffered(), FrameSamples/2)
	}

	frames = enc.Push(make([]float32, FrameSamples/2))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame from accumulated partial, got %d", len(frames))
	}
	if frames[0].Seq != 2 {
		t.Errorf("sequence: got %d, want 2", frames[0].Seq)
	}

	if _, ok := enc.Flush(); ok {
		t.Error("expected empty flush")
	}
}

func TestEncoderPreservesCaptureOrder(t *testing.T) {
	enc := NewEncoder(100)

	input := make([]float32, 350)
	for i := range input {
		input[i] = float32(i) / 1000
	}

	var frames []Frame
	for i := 0; i < len(input); i += 70 {
		frames = append(frames, enc.Push(input[i:i+70])...)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	expected := FloatToPCM16(input)
	for n, frame := range frames {
		if frame.Seq != uint64(n+1) {
			t.Errorf("frame %d: sequence %d", n, frame.Seq)
		}
		for i, sample := range frame.Samples {
			if sample != expected[n*100+i] {
				t.Fatalf("frame %d sample %d: got %d, want %d", n, i, sample, expected[n*100+i])
			}
		}
	}

	tail, ok := enc.Flush()
	if !ok || len(tail.Samples) != 50 {
		t.Fatalf("expected 50 sample tail, got %d (ok=%v)", len(tail.Samples), ok)
	}
	if tail.Seq != 4 {
		t.Errorf("tail sequence: got %d, want 4", tail.Seq)
	}
}

func TestEncoderReset(t *testing.T) {
	enc := NewEncoder(100)
	enc.Push(make([]float32, 60))
	enc.Reset()

	if enc.Buffered() != 0 {
		t.Errorf("expected empty buffer after reset, got %d", enc.Buffered())
	}
	if frames := enc.Push(make([]float32, 60)); len(frames) != 0 {
		t.Errorf("reset samples leaked into frame")
	}
}
