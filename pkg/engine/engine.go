// Package engine builds the realtime dialer and summarizer named by the
// configuration.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/silviot/live_tutor_go/pkg/config"
	"github.com/silviot/live_tutor_go/pkg/gemini"
	"github.com/silviot/live_tutor_go/pkg/openai"
	"github.com/silviot/live_tutor_go/pkg/realtime"
	"github.com/silviot/live_tutor_go/pkg/summary"
)

// NewDialer returns the realtime dialer for the configured provider
func NewDialer(ctx context.Context, cfg config.EngineConfig, logger *slog.Logger) (realtime.Dialer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return &gemini.LiveDialer{
			Client: client,
			Model:  cfg.Model,
			Logger: logger,
		}, nil
	case config.ProviderWebSocket:
		header := http.Header{}
		if cfg.APIKey != "" {
			header.Set("Authorization", "Bearer "+cfg.APIKey)
		}
		return &realtime.WebSocketDialer{
			URL:              cfg.URL,
			Header:           header,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}

// NewSummarizer returns the summarizer for the configured provider, or nil
// when note-taking is disabled.
func NewSummarizer(ctx context.Context, cfg config.SummaryConfig) (summary.Summarizer, error) {
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return gemini.NewSummarizer(client, cfg.Model), nil
	case config.ProviderOpenAI:
		return openai.NewSummarizer(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown summary provider %q", cfg.Provider)
	}
}

// SummaryConfig converts the scheduler settings
func SummaryConfig(cfg config.SummaryConfig) summary.Config {
	return summary.Config{
		Interval: cfg.Interval,
		MinChars: cfg.MinChars,
		Timeout:  cfg.Timeout,
	}
}

// SessionOptions converts the outbound queue settings
func SessionOptions(cfg config.AudioConfig) realtime.Options {
	return realtime.Options{
		QueueSize: cfg.SendQueue,
	}
}
