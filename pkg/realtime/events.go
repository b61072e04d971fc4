// Package realtime manages a duplex streaming session with a conversational engine.
package realtime

import "github.com/silviot/live_tutor_go/pkg/audio"

// Event is a message delivered from the engine to the session consumer
type Event interface {
	EventType() string
}

// PartialInputTranscript is a fragment of the transcription of the user's speech
type PartialInputTranscript struct {
	Text string
}

func (PartialInputTranscript) EventType() string { return "input_transcript" }

// PartialOutputTranscript is a fragment of the transcription of the engine's reply
type PartialOutputTranscript struct {
	Text string
}

func (PartialOutputTranscript) EventType() string { return "output_transcript" }

// TurnComplete marks the end of a conversational turn
type TurnComplete struct{}

func (TurnComplete) EventType() string { return "turn_complete" }

// AudioDelta carries a chunk of synthesized speech
type AudioDelta struct {
	Chunk audio.EncodedChunk
}

func (AudioDelta) EventType() string { return "audio" }

// Interrupted signals that the user barged in and queued playback is stale
type Interrupted struct{}

func (Interrupted) EventType() string { return "interrupted" }

// SessionClosed is the last event of every session that ends on its own
type SessionClosed struct{}

func (SessionClosed) EventType() string { return "closed" }

// EventType lets *SessionError travel on the event channel
func (*SessionError) EventType() string { return "error" }
