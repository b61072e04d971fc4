package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// CaptureSampleRate is the microphone rate expected by the engine (16kHz mono)
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the engine's output rate (24kHz mono)
	PlaybackSampleRate = 24000
	// FrameSamples is the fixed capture block size: 4096 samples = 256ms at 16kHz
	FrameSamples = 4096
	// PCMScale maps [-1.0, 1.0) float samples onto the int16 domain
	PCMScale = 32768.0

	pcmMIMEPrefix = "audio/pcm"
)

// Frame is a fixed-length block of PCM16 mono samples at CaptureSampleRate.
// A Frame must not be modified after it has been produced.
type Frame struct {
	Seq     uint64  // Capture sequence number, starting at 1
	Samples []int16 // Exactly FrameSamples samples, except for a flushed tail
}

// Duration returns the amount of audio the frame holds
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), CaptureSampleRate)
}

// EncodedChunk is the transport-safe form of a PCM16 block: base64 of the
// little-endian sample bytes plus a MIME tag carrying the sample rate.
type EncodedChunk struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// PlaybackChunk holds decoded samples ready to be scheduled on an output device
type PlaybackChunk struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the chunk
func (c PlaybackChunk) Duration() time.Duration {
	return samplesDuration(len(c.Samples), c.SampleRate)
}

// PCMMIMEType returns the MIME tag for raw PCM16 at the given rate
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("%s;rate=%d", pcmMIMEPrefix, sampleRate)
}

// ParseRate extracts the rate parameter from a PCM MIME tag.
// It returns fallback when the tag carries no usable rate.
func ParseRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || rate <= 0 {
			return fallback
		}
		return rate
	}
	return fallback
}

func samplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
