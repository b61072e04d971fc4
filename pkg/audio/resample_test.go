package audio

import (
	"log/slog"
	"testing"
)

func TestResampling(t *testing.T) {
	resampler, err := NewResampler(48000, 16000, slog.Default())
	if err != nil {
		t.Fatalf("failed to create resampler: %v", err)
	}

	// 4800 samples @ 48kHz (100ms) → 1600 samples @ 16kHz (100ms)
	input := make([]float32, 4800)
	for i := range input {
		input[i] = 0.5
	}

	output := resampler.Resample(input)
	if len(output) != 1600 {
		t.Errorf("output size mismatch: got %d, want 1600", len(output))
	}
	for i, val := range output {
		if abs(val-0.5) > 0.01 {
			t.Errorf("sample %d: got %f, want ~0.5", i, val)
		}
	}
}

func TestResamplingEmpty(t *testing.T) {
	resampler, _ := NewResampler(48000, 24000, slog.Default())

	if output := resampler.Resample([]float32{}); len(output) != 0 {
		t.Errorf("expected empty output, got %d samples", len(output))
	}
}

func TestResamplerPassthrough(t *testing.T) {
	resampler, _ := NewResampler(16000, 16000, nil)
	input := []float32{0.1, 0.2, 0.3}

	output := resampler.Resample(input)
	if len(output) != len(input) || output[2] != input[2] {
		t.Errorf("passthrough altered samples: %v", output)
	}
}

func TestResamplerInvalidRates(t *testing.T) {
	if _, err := NewResampler(0, 16000, nil); err == nil {
		t.Error("expected error for zero input rate")
	}
}

func TestDownmix(t *testing.T) {
	stereo := []float32{0.2, 0.4, -1.0, 1.0}

	mono := Downmix(stereo, 2)
	if len(mono) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(mono))
	}
	if abs(mono[0]-0.3) > 0.0001 || mono[1] != 0 {
		t.Errorf("unexpected downmix: %v", mono)
	}
}
