package audio

import (
	"fmt"
	"log/slog"
)

// Resampler converts mono float32 audio between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64
	logger     *slog.Logger
}

// NewResampler creates a new resampler
func NewResampler(inputRate, outputRate int, logger *slog.Logger) (*Resampler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(outputRate) / float64(inputRate),
		logger:     logger,
	}, nil
}

// Passthrough reports whether input and output rates are equal
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample performs linear interpolation resampling.
// Each block is handled independently; blocks are assumed to be contiguous.
func (r *Resampler) Resample(input []float32) []float32 {
	if len(input) == 0 {
		return []float32{}
	}
	if r.Passthrough() {
		return input
	}

	outputSize := int(float64(len(input)) * r.ratio)
	if outputSize == 0 {
		return []float32{}
	}

	output := make([]float32, outputSize)
	last := len(input) - 1
	for i := range output {
		pos := float64(i) / r.ratio
		idx := int(pos)
		if idx >= last {
			output[i] = input[last]
			continue
		}
		frac := float32(pos - float64(idx))
		output[i] = input[idx]*(1-frac) + input[idx+1]*frac
	}

	return output
}

// Downmix averages interleaved multi-channel samples into mono
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	mono := make([]float32, len(interleaved)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
