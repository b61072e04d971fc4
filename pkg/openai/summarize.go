// Package openai summarizes transcripts with an OpenAI-compatible chat model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/sashabaranov/go-openai"

	"github.com/silviot/live_tutor_go/pkg/summary"
)

const DefaultModel = oai.GPT4oMini

// Config configures the summarizer
type Config struct {
	APIKey  string
	BaseURL string // Optional, for OpenAI-compatible endpoints
	Model   string
}

// Summarizer produces notes with a chat completion
type Summarizer struct {
	client *oai.Client
	model  string
}

// NewSummarizer creates a summarizer
func NewSummarizer(cfg Config) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	clientCfg := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{
		client: oai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Summarize implements summary.Summarizer
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: s.model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: summary.SystemPrompt},
			{Role: oai.ChatMessageRoleUser, Content: summary.Prompt(text)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	notes := strings.TrimSpace(resp.Choices[0].Message.Content)
	if notes == "" {
		return "", errors.New("empty summary")
	}
	return notes, nil
}
