package audio

import "testing"

func TestCaptureBufferDropsNewestWhenFull(t *testing.T) {
	buf := NewCaptureBuffer(2, CaptureSampleRate, nil)

	first := []float32{1}
	if !buf.Offer(first) || !buf.Offer([]float32{2}) {
		t.Fatal("expected first two blocks to be queued")
	}
	if buf.Offer([]float32{3}) {
		t.Error("expected third block to be dropped")
	}
	if buf.Dropped() != 1 {
		t.Errorf("dropped: got %d, want 1", buf.Dropped())
	}

	// Offer copies the caller's slice
	first[0] = 99
	if got := <-buf.Samples(); got[0] != 1 {
		t.Errorf("queued block aliases caller buffer: %v", got)
	}
	if got := <-buf.Samples(); got[0] != 2 {
		t.Errorf("blocks out of order: %v", got)
	}
}

func TestCaptureBufferClose(t *testing.T) {
	released := 0
	buf := NewCaptureBuffer(4, 48000, func() error {
		released++
		return nil
	})

	if buf.SampleRate() != 48000 {
		t.Errorf("sample rate: got %d", buf.SampleRate())
	}

	buf.Close()
	buf.Close()
	if released != 1 {
		t.Errorf("release called %d times", released)
	}
	if buf.Offer([]float32{1}) {
		t.Error("offer after close should fail")
	}
	if _, ok := <-buf.Samples(); ok {
		t.Error("expected closed channel")
	}
}

func TestCaptureBufferEndThenClose(t *testing.T) {
	released := 0
	buf := NewCaptureBuffer(4, CaptureSampleRate, func() error {
		released++
		return nil
	})

	buf.End()
	if _, ok := <-buf.Samples(); ok {
		t.Error("expected closed channel after End")
	}

	buf.Close()
	if released != 1 {
		t.Errorf("release called %d times after End", released)
	}
}
