package realtime

import "github.com/silviot/live_tutor_go/pkg/audio"

// Message types of the JSON websocket protocol
const (
	MessageSetup         = "setup"
	MessageSetupComplete = "setup_complete"
	MessageRealtimeInput = "realtime_input"
	MessageServerContent = "server_content"
	MessageError         = "error"
	MessageGoAway        = "go_away"
)

// ClientMessage is sent from the session to the engine
type ClientMessage struct {
	Type  string              `json:"type"`
	Setup *Profile            `json:"setup,omitempty"`
	Audio *audio.EncodedChunk `json:"audio,omitempty"`
}

// ServerMessage is sent from the engine to the session
type ServerMessage struct {
	Type                string               `json:"type"`
	InputTranscription  string               `json:"input_transcription,omitempty"`
	OutputTranscription string               `json:"output_transcription,omitempty"`
	Audio               []audio.EncodedChunk `json:"audio,omitempty"`
	Interrupted         bool                 `json:"interrupted,omitempty"`
	TurnComplete        bool                 `json:"turn_complete,omitempty"`
	Message             string               `json:"message,omitempty"`
}

// Events converts server content into events in dispatch order:
// transcriptions, audio, interruption, then turn completion.
func (m ServerMessage) Events() []Event {
	var events []Event
	if m.InputTranscription != "" {
		events = append(events, PartialInputTranscript{Text: m.InputTranscription})
	}
	if m.OutputTranscription != "" {
		events = append(events, PartialOutputTranscript{Text: m.OutputTranscription})
	}
	for _, chunk := range m.Audio {
		events = append(events, AudioDelta{Chunk: chunk})
	}
	if m.Interrupted {
		events = append(events, Interrupted{})
	}
	if m.TurnComplete {
		events = append(events, TurnComplete{})
	}
	return events
}
