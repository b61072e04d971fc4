// Package transcript assembles streamed partial transcriptions into turns.
package transcript

import (
	"strings"
	"sync"
)

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Label returns the prefix used in the cumulative transcript text
func (s Speaker) Label() string {
	switch s {
	case SpeakerUser:
		return "User"
	case SpeakerAgent:
		return "Agent"
	default:
		return string(s)
	}
}

// Turn is one completed utterance. Turns are immutable once emitted.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Line renders the turn as it appears in the cumulative transcript
func (t Turn) Line() string {
	return t.Speaker.Label() + ": " + t.Text
}

// Assembler accumulates input and output partial transcriptions until the
// engine signals the end of a turn. Partials are concatenated verbatim.
type Assembler struct {
	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder
}

// NewAssembler creates an empty assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// AddInput appends a partial transcription of the user's speech
func (a *Assembler) AddInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.WriteString(text)
}

// AddOutput appends a partial transcription of the agent's response
func (a *Assembler) AddOutput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output.WriteString(text)
}

// Pending returns the accumulated input and output text
func (a *Assembler) Pending() (input, output string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.String(), a.output.String()
}

// Complete ends the current turn. It returns the user turn then the agent
// turn, omitting either if empty, and clears both buffers before returning.
func (a *Assembler) Complete() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()

	var turns []Turn
	if a.input.Len() > 0 {
		turns = append(turns, Turn{Speaker: SpeakerUser, Text: a.input.String()})
	}
	if a.output.Len() > 0 {
		turns = append(turns, Turn{Speaker: SpeakerAgent, Text: a.output.String()})
	}
	a.input.Reset()
	a.output.Reset()
	return turns
}

// Reset discards partial text without emitting turns
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.Reset()
	a.output.Reset()
}
