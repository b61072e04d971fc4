package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// FloatToPCM16 converts float samples in [-1.0, 1.0] to int16 by a fixed
// linear scale. Out-of-range input is clamped; no dithering is applied.
func FloatToPCM16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, sample := range samples {
		v := float64(sample) * PCMScale
		switch {
		case v >= 32767:
			result[i] = 32767
		case v <= -32768:
			result[i] = -32768
		default:
			result[i] = int16(v)
		}
	}
	return result
}

// PCM16ToFloat converts int16 PCM to float32 [-1.0, 1.0)
func PCM16ToFloat(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, sample := range samples {
		result[i] = float32(sample) / PCMScale
	}
	return result
}

// EncodePCM16 packs samples as little-endian bytes and base64-encodes them
func EncodePCM16(samples []int16, sampleRate int) EncodedChunk {
	raw := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(sample))
	}
	return EncodedChunk{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: PCMMIMEType(sampleRate),
	}
}

// Encode converts a captured frame to its transport form
func Encode(frame Frame) EncodedChunk {
	return EncodePCM16(frame.Samples, CaptureSampleRate)
}

// DecodePCM16 reverses EncodePCM16, reproducing the exact sample values
func DecodePCM16(chunk EncodedChunk) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return nil, &PlaybackError{Op: "decode base64", Err: err}
	}
	if len(raw)%2 != 0 {
		return nil, &PlaybackError{Op: "decode pcm16", Err: fmt.Errorf("odd byte count %d", len(raw))}
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

// Decode turns an inbound chunk into playable float samples. The rate comes
// from the MIME tag and defaults to PlaybackSampleRate.
func Decode(chunk EncodedChunk) (PlaybackChunk, error) {
	samples, err := DecodePCM16(chunk)
	if err != nil {
		return PlaybackChunk{}, err
	}
	return PlaybackChunk{
		Samples:    PCM16ToFloat(samples),
		SampleRate: ParseRate(chunk.MIMEType, PlaybackSampleRate),
	}, nil
}

// EncodeRaw wraps raw little-endian PCM16 bytes received from an engine
func EncodeRaw(raw []byte, mimeType string) EncodedChunk {
	return EncodedChunk{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: mimeType,
	}
}

// RawBytes returns the decoded little-endian bytes of a chunk
func RawBytes(chunk EncodedChunk) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk encoding: %w", err)
	}
	return raw, nil
}
