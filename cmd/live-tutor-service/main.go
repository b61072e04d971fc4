package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silviot/live_tutor_go/pkg/config"
	"github.com/silviot/live_tutor_go/pkg/engine"
	"github.com/silviot/live_tutor_go/pkg/metrics"
	"github.com/silviot/live_tutor_go/pkg/session"
	"github.com/silviot/live_tutor_go/pkg/webrtc"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		envFile    = flag.String("env", ".env", "Path to .env file")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := cfg.Logging.NewLogger(os.Stdout)

	logger.Info("starting live tutor service",
		"port", cfg.Server.Port,
		"engine", cfg.Engine.Provider,
		"summary", cfg.Summary.Provider)

	ctx := context.Background()

	dialer, err := engine.NewDialer(ctx, cfg.Engine, logger)
	if err != nil {
		logger.Error("failed to create engine dialer", "error", err)
		os.Exit(1)
	}
	summarizer, err := engine.NewSummarizer(ctx, cfg.Summary)
	if err != nil {
		logger.Error("failed to create summarizer", "error", err)
		os.Exit(1)
	}

	m := metrics.New("live_tutor")

	sessionMgr := session.NewManager(session.ManagerConfig{
		RTC:           webrtc.ConnectionConfig{STUN: cfg.WebRTC.ICEServers},
		Dialer:        dialer,
		Model:         cfg.Engine.Model,
		Voice:         cfg.Engine.Voice,
		TutorPrompt:   cfg.Prompts.Tutor,
		NotesPrompt:   cfg.Prompts.NoteTaker,
		Summarizer:    summarizer,
		Summary:       engine.SummaryConfig(cfg.Summary),
		Session:       engine.SessionOptions(cfg.Audio),
		CaptureBuffer: cfg.Audio.CaptureBuffer,
		MaxSessions:   cfg.Server.MaxSessions,
		Metrics:       m,
		Logger:        logger,
	})

	modes := []string{session.ModeTutor}
	if summarizer != nil {
		modes = append(modes, session.ModeNotes)
	}

	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"sessions":  sessionMgr.Count(),
			"modes":     modes,
			"timestamp": time.Now().Unix(),
		})
	})

	sessionMgr.Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: m.Middleware(mux),
	}

	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := sessionMgr.Close(); err != nil {
		logger.Error("failed to close sessions", "error", err)
	}

	logger.Info("live tutor service stopped")
}
