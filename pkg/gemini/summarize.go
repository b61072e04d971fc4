package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/silviot/live_tutor_go/pkg/summary"
	"google.golang.org/genai"
)

// Summarizer produces notes with a Gemini text model
type Summarizer struct {
	client *genai.Client
	model  string
}

// NewSummarizer creates a summarizer. An empty model selects DefaultSummaryModel.
func NewSummarizer(client *genai.Client, model string) *Summarizer {
	if model == "" {
		model = DefaultSummaryModel
	}
	return &Summarizer{client: client, model: model}
}

// Summarize implements summary.Summarizer
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if s.client == nil {
		return "", errors.New("gemini client not configured")
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(summary.Prompt(text)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(summary.SystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	notes := resp.Text()
	if notes == "" {
		return "", errors.New("empty summary")
	}
	return notes, nil
}
