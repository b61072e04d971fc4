package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/silviot/live_tutor_go/pkg/config"
	"github.com/silviot/live_tutor_go/pkg/device"
	"github.com/silviot/live_tutor_go/pkg/engine"
	"github.com/silviot/live_tutor_go/pkg/session"
	"github.com/silviot/live_tutor_go/pkg/transcript"
)

func main() {
	var (
		mode       = flag.String("mode", session.ModeTutor, "Session mode (tutor, notes)")
		provider   = flag.String("engine", "", "Realtime engine (gemini, websocket), overrides config")
		configPath = flag.String("config", "", "Path to YAML config file")
		envFile    = flag.String("env", ".env", "Path to .env file")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *provider != "" {
		os.Setenv("ENGINE_PROVIDER", *provider)
	}
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Logs go to stderr so the transcript stays readable
	cfg.Logging.Format = "text"
	logger := cfg.Logging.NewLogger(os.Stderr)

	if err := run(cfg, *mode, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, mode string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialer, err := engine.NewDialer(ctx, cfg.Engine, logger)
	if err != nil {
		return err
	}

	var (
		variant    session.Variant
		summarizer = cfg.Summary
	)
	switch mode {
	case session.ModeTutor:
		variant = session.TutorVariant(cfg.Prompts.Tutor, &session.Playback{
			Device: &device.OtoSpeaker{BufferSize: cfg.Audio.PlaybackBuffer, Logger: logger},
			Logger: logger,
		})
		summarizer.Provider = config.ProviderNone
	case session.ModeNotes:
		if cfg.Summary.Provider == config.ProviderNone {
			return fmt.Errorf("notes mode needs a summary provider")
		}
		variant = session.NoteTakerVariant(cfg.Prompts.NoteTaker)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	variant.Profile.Model = cfg.Engine.Model
	variant.Profile.Voice = cfg.Engine.Voice

	s, err := engine.NewSummarizer(ctx, summarizer)
	if err != nil {
		return err
	}

	say := func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stdout, format, args...)
	}

	ctrl, err := session.NewController(session.Config{
		Variant:    variant,
		Microphone: &device.MalgoMicrophone{BufferBlocks: cfg.Audio.CaptureBuffer, Logger: logger},
		Dialer:     dialer,
		Summarizer: s,
		Summary:    engine.SummaryConfig(cfg.Summary),
		Session:    engine.SessionOptions(cfg.Audio),
		Logger:     logger,
		Hooks: session.Hooks{
			OnTurn: func(turn transcript.Turn) {
				say("%s\n", turn.Line())
			},
			OnNotes: func(notes string) {
				say("\n--- notes ---\n%s\n-------------\n", notes)
			},
			OnStateChange: func(state session.State) {
				say("[%s]\n", state)
			},
			OnError: func(message string, err error) {
				say("! %s\n", message)
			},
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.Stop()

	say("live tutor (%s mode). Commands: start, stop, notes, quit\n", mode)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "start":
				startCtx, cancelStart := context.WithTimeout(ctx, cfg.Engine.HandshakeTimeout+5*time.Second)
				if err := ctrl.Start(startCtx); err != nil {
					logger.Debug("start failed", "error", err)
				}
				cancelStart()
			case "stop":
				ctrl.Stop()
			case "notes":
				ok, err := ctrl.SummarizeNow(ctx)
				if err != nil {
					say("! %s\n", err)
				} else if !ok {
					say("nothing new to summarize\n")
				}
			case "quit", "exit":
				return nil
			case "":
			default:
				say("unknown command %q\n", line)
			}
		}
	}
}
