package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/silviot/live_tutor_go/pkg/audio"
)

// Modality is a kind of response the engine produces
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// Profile is the fixed configuration a session is opened with
type Profile struct {
	Model               string     `json:"model,omitempty" yaml:"model"`
	SystemInstruction   string     `json:"system_instruction,omitempty" yaml:"system_instruction"`
	Modalities          []Modality `json:"response_modalities" yaml:"response_modalities"`
	InputTranscription  bool       `json:"input_audio_transcription" yaml:"input_transcription"`
	OutputTranscription bool       `json:"output_audio_transcription" yaml:"output_transcription"`
	Voice               string     `json:"voice,omitempty" yaml:"voice"`
}

// Validate checks the profile
func (p Profile) Validate() error {
	if len(p.Modalities) == 0 {
		return errors.New("at least one response modality is required")
	}
	for _, m := range p.Modalities {
		if m != ModalityText && m != ModalityAudio {
			return fmt.Errorf("unknown response modality %q", m)
		}
	}
	return nil
}

// Wants reports whether the profile requests modality m
func (p Profile) Wants(m Modality) bool {
	for _, have := range p.Modalities {
		if have == m {
			return true
		}
	}
	return false
}

// Dialer opens transports to an engine
type Dialer interface {
	Dial(ctx context.Context, profile Profile) (Transport, error)
}

// Transport is one open engine connection. Send is called only from the
// session's writer goroutine and Recv only from its reader goroutine.
// Recv returns io.EOF when the engine ends the session gracefully.
// Close must unblock a pending Recv and may be called more than once.
type Transport interface {
	Send(ctx context.Context, chunk audio.EncodedChunk) error
	Recv(ctx context.Context) ([]Event, error)
	Close() error
}
