package summary

import (
	"context"
	"fmt"
)

// Summarizer condenses a span of transcript into notes
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface
type SummarizerFunc func(ctx context.Context, text string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// SystemPrompt is the instruction shared by the model-backed summarizers
const SystemPrompt = "You are a note-taking assistant. You receive an excerpt of a live " +
	"lecture or tutoring transcript. Write concise study notes as short bullet " +
	"points covering the key ideas and definitions. Do not repeat the " +
	"transcript and do not add information that is not in it."

// Prompt builds the user prompt for a transcript excerpt
func Prompt(text string) string {
	return fmt.Sprintf("Transcript excerpt:\n\n%s\n\nNotes:", text)
}
