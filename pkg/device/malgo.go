// Package device binds capture and playback to local sound hardware.
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/gen2brain/malgo"
	"github.com/silviot/live_tutor_go/pkg/audio"
)

// MalgoMicrophone captures from the default input device via miniaudio
type MalgoMicrophone struct {
	SampleRate   int // Defaults to audio.CaptureSampleRate
	BufferBlocks int // Capture blocks held before the newest is dropped
	Logger       *slog.Logger
}

// Open starts the default capture device. The device is released when the
// returned stream is closed.
func (m *MalgoMicrophone) Open(ctx context.Context) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sampleRate := m.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.CaptureSampleRate
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	var buf *audio.CaptureBuffer
	var device *malgo.Device

	release := func() error {
		device.Stop()
		device.Uninit()
		err := mctx.Uninit()
		mctx.Free()
		logger.Debug("microphone released")
		return err
	}
	buf = audio.NewCaptureBuffer(m.BufferBlocks, sampleRate, release)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if !buf.Offer(float32Samples(input)) {
				logger.Debug("capture buffer full, dropping block")
			}
		},
		// Device unplugged or stopped by the backend
		Stop: buf.End,
	}

	device, err = malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	logger.Info("microphone open", "sample_rate", sampleRate)
	return buf, nil
}

// float32Samples decodes little-endian float32 PCM
func float32Samples(raw []byte) []float32 {
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples
}
