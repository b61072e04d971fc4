package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/silviot/live_tutor_go/pkg/audio"
	"github.com/silviot/live_tutor_go/pkg/realtime"
	"google.golang.org/genai"
)

// LiveDialer opens realtime sessions on the Gemini Live API
type LiveDialer struct {
	Client *genai.Client
	Model  string // Used when the profile names no model
	Logger *slog.Logger
}

// Dial implements realtime.Dialer
func (d *LiveDialer) Dial(ctx context.Context, profile realtime.Profile) (realtime.Transport, error) {
	if d.Client == nil {
		return nil, &realtime.ConnectionError{Op: "dial", Err: errors.New("gemini client not configured")}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	model := profile.Model
	if model == "" {
		model = d.Model
	}
	if model == "" {
		model = DefaultLiveModel
	}

	session, err := d.Client.Live.Connect(ctx, model, connectConfig(profile))
	if err != nil {
		return nil, &realtime.ConnectionError{Op: "dial", Err: err}
	}

	logger.Debug("gemini live session connected", "model", model)
	return &liveTransport{session: session, logger: logger}, nil
}

// connectConfig maps a profile onto the Live API setup
func connectConfig(profile realtime.Profile) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{}
	for _, m := range profile.Modalities {
		switch m {
		case realtime.ModalityAudio:
			cfg.ResponseModalities = append(cfg.ResponseModalities, genai.ModalityAudio)
		case realtime.ModalityText:
			cfg.ResponseModalities = append(cfg.ResponseModalities, genai.ModalityText)
		}
	}
	if profile.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(profile.SystemInstruction, genai.RoleUser)
	}
	if profile.InputTranscription {
		cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if profile.OutputTranscription {
		cfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if profile.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: profile.Voice},
			},
		}
	}
	return cfg
}

// liveSession is the part of *genai.Session a transport uses
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type liveTransport struct {
	session   liveSession
	logger    *slog.Logger
	goingAway bool // only touched by Recv
	closeOnce sync.Once
	closeErr  error
}

func (t *liveTransport) Send(_ context.Context, chunk audio.EncodedChunk) error {
	raw, err := audio.RawBytes(chunk)
	if err != nil {
		return err
	}
	return t.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: chunk.MIMEType, Data: raw},
	})
}

// Recv returns the next events. After a GoAway notice the server keeps
// streaming until it disconnects, and that disconnect is a normal end.
func (t *liveTransport) Recv(_ context.Context) ([]realtime.Event, error) {
	for {
		msg, err := t.session.Receive()
		if err != nil {
			if t.goingAway {
				t.logger.Debug("gemini closed the session after go away", "error", err)
				return nil, io.EOF
			}
			return nil, err
		}
		events, goAway := messageEvents(msg)
		if goAway && !t.goingAway {
			t.goingAway = true
			t.logger.Info("gemini will end the session", "time_left", msg.GoAway.TimeLeft)
		}
		if len(events) > 0 {
			return events, nil
		}
	}
}

func (t *liveTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.session.Close()
	})
	return t.closeErr
}

// messageEvents converts one server message into events. The second result
// reports a GoAway notice.
func messageEvents(msg *genai.LiveServerMessage) ([]realtime.Event, bool) {
	if msg == nil {
		return nil, false
	}

	var events []realtime.Event
	if content := msg.ServerContent; content != nil {
		if content.InputTranscription != nil && content.InputTranscription.Text != "" {
			events = append(events, realtime.PartialInputTranscript{Text: content.InputTranscription.Text})
		}
		if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
			events = append(events, realtime.PartialOutputTranscript{Text: content.OutputTranscription.Text})
		}
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					events = append(events, realtime.AudioDelta{
						Chunk: audio.EncodeRaw(part.InlineData.Data, part.InlineData.MIMEType),
					})
				}
				// Text responses arrive as model parts rather than transcriptions
				if part.Text != "" && !part.Thought {
					events = append(events, realtime.PartialOutputTranscript{Text: part.Text})
				}
			}
		}
		if content.Interrupted {
			events = append(events, realtime.Interrupted{})
		}
		if content.TurnComplete {
			events = append(events, realtime.TurnComplete{})
		}
	}

	return events, msg.GoAway != nil
}
