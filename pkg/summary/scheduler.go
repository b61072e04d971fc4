package summary

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultMinChars = 100
	DefaultTimeout  = 60 * time.Second
)

// Source provides the cumulative transcript text
type Source interface {
	Text() string
}

// Recorder counts summarization outcomes. It may be nil.
type Recorder interface {
	SummaryResult(result string)
}

// Config configures a Scheduler
type Config struct {
	Interval time.Duration // Time between ticks (default 15s)
	MinChars int           // New text must exceed this many characters (default 100)
	Timeout  time.Duration // Per-call deadline (default 60s)
	OnNotes  func(summary string)
	Recorder Recorder
	Logger   *slog.Logger
}

// Scheduler summarizes transcript text added since the last successful
// summary. At most one summarizer call runs at a time; a manual Tick that
// finds one in flight returns without calling.
type Scheduler struct {
	source     Source
	summarizer Summarizer
	notes      *Notes
	cfg        Config
	logger     *slog.Logger

	mu       sync.Mutex
	cursor   int
	inFlight bool
	running  bool
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
}

// NewScheduler creates a stopped scheduler
func NewScheduler(source Source, summarizer Summarizer, notes *Notes, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if notes == nil {
		notes = NewNotes()
	}

	return &Scheduler{
		source:     source,
		summarizer: summarizer,
		notes:      notes,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start arms the first tick. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.gen++

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.armLocked(ctx, s.gen)

	s.logger.Debug("summary scheduler started", "interval", s.cfg.Interval, "min_chars", s.cfg.MinChars)
}

// Stop disarms the timer and cancels any in-flight call. A result arriving
// after Stop is discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Debug("summary scheduler stopped", "cursor", s.cursor)
}

// Running reports whether the scheduler is armed
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cursor returns the offset in the transcript text up to which notes exist
func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Notes returns the notes buffer
func (s *Scheduler) Notes() *Notes {
	return s.notes
}

// Tick runs one summarization pass immediately. It returns true if notes
// were appended, and false without calling the summarizer while another
// pass is in flight. Timer-driven ticks use the same path.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.tick(ctx, gen)
}

func (s *Scheduler) armLocked(ctx context.Context, gen uint64) {
	s.timer = time.AfterFunc(s.cfg.Interval, func() {
		s.tick(ctx, gen)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.running && s.gen == gen {
			s.armLocked(ctx, gen)
		}
	})
}

func (s *Scheduler) tick(ctx context.Context, gen uint64) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	text := s.source.Text()
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.record("busy")
		return false, nil
	}
	cursor := min(s.cursor, len(text))
	pending := text[cursor:]
	if utf8.RuneCountInString(strings.TrimSpace(pending)) <= s.cfg.MinChars {
		s.mu.Unlock()
		s.record("skipped")
		return false, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	summary, err := s.summarizer.Summarize(callCtx, pending)
	if err != nil {
		if ctx.Err() != nil {
			s.record("cancelled")
			return false, nil
		}
		sumErr := &SummarizationError{Cursor: cursor, Err: err}
		s.record("error")
		s.logger.Warn("summarization failed", "error", sumErr, "pending_chars", len(pending))
		return false, sumErr
	}

	summary = strings.TrimSpace(summary)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.record("discarded")
		s.logger.Debug("discarding summary from a stopped scheduler")
		return false, nil
	}
	if summary != "" {
		s.notes.Append(summary)
	}
	if len(text) > s.cursor {
		s.cursor = len(text)
	}
	onNotes := s.cfg.OnNotes
	s.mu.Unlock()

	s.record("success")
	s.logger.Info("notes updated",
		"cursor", len(text),
		"summary_chars", len(summary),
		"duration_ms", time.Since(started).Milliseconds())

	if onNotes != nil && summary != "" {
		onNotes(summary)
	}
	return summary != "", nil
}

func (s *Scheduler) record(result string) {
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.SummaryResult(result)
	}
}
