package config

import (
	"io"
	"log/slog"
)

// NewLogger creates a structured logger for the configured level and format
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch l.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
