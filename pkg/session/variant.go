package session

import "github.com/silviot/live_tutor_go/pkg/realtime"

// Session modes
const (
	ModeTutor = "tutor"
	ModeNotes = "notes"
)

// Variant parameterizes a Controller: what the engine is asked to do, what
// happens to its audio and whether notes are taken.
type Variant struct {
	Mode      string
	Profile   realtime.Profile
	Output    OutputStrategy
	Summarize bool
}

// TutorVariant converses by voice: audio replies are played back and both
// sides are transcribed.
func TutorVariant(instruction string, playback *Playback) Variant {
	var output OutputStrategy = TranscriptOnly{}
	if playback != nil {
		output = playback
	}
	return Variant{
		Mode: ModeTutor,
		Profile: realtime.Profile{
			SystemInstruction:   instruction,
			Modalities:          []realtime.Modality{realtime.ModalityAudio},
			InputTranscription:  true,
			OutputTranscription: true,
		},
		Output: output,
	}
}

// NoteTakerVariant listens and answers in text while notes are summarized
// from the running transcript.
func NoteTakerVariant(instruction string) Variant {
	return Variant{
		Mode: ModeNotes,
		Profile: realtime.Profile{
			SystemInstruction:  instruction,
			Modalities:         []realtime.Modality{realtime.ModalityText},
			InputTranscription: true,
		},
		Output:    TranscriptOnly{},
		Summarize: true,
	}
}
