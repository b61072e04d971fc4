// Package session runs live audio sessions against a realtime engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/silviot/live_tutor_go/pkg/audio"
	"github.com/silviot/live_tutor_go/pkg/metrics"
	"github.com/silviot/live_tutor_go/pkg/realtime"
	"github.com/silviot/live_tutor_go/pkg/summary"
	"github.com/silviot/live_tutor_go/pkg/transcript"
)

// ErrStopped is returned by Start when Stop was called before the session
// became active.
var ErrStopped = errors.New("session stopped while starting")

var errCaptureEnded = errors.New("capture stream ended")

// Hooks observe a controller. All are optional and must not call Start or
// Stop. OnTurn runs on the event loop and OnNotes on the summary scheduler.
type Hooks struct {
	OnTurn        func(turn transcript.Turn)
	OnNotes       func(summary string)
	OnStateChange func(state State)
	OnError       func(message string, err error)
}

// Config configures a Controller
type Config struct {
	Variant    Variant
	Microphone audio.Microphone
	Dialer     realtime.Dialer
	Summarizer summary.Summarizer // Required when the variant takes notes
	Summary    summary.Config     // Interval, MinChars and Timeout are used
	Session    realtime.Options
	FrameSize  int
	Metrics    *metrics.Metrics
	Hooks      Hooks
	Logger     *slog.Logger
}

// Controller owns one microphone and at most one engine session at a time.
// State transitions are serialized; hooks are delivered in transition order.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	run     *run
	cancel  context.CancelFunc // aborts a Start in progress
	busy    chan struct{}      // closed when the current transition settles
	lastErr error
	log     *transcript.Log
	notes   *summary.Notes
	notices []notice

	hookMu sync.Mutex
}

type notice struct {
	state State
	err   error
}

// run holds the resources of one session
type run struct {
	gen       uint64
	stream    audio.CaptureStream
	pipeline  *audio.Pipeline
	session   *realtime.Session
	output    Output
	scheduler *summary.Scheduler
	assembler *transcript.Assembler
	log       *transcript.Log
	notes     *summary.Notes
	started   time.Time
	done      chan struct{}
}

// NewController creates an idle controller
func NewController(cfg Config) (*Controller, error) {
	if cfg.Microphone == nil {
		return nil, fmt.Errorf("microphone is required")
	}
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if err := cfg.Variant.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if cfg.Variant.Summarize && cfg.Summarizer == nil {
		return nil, fmt.Errorf("summarizer is required for mode %q", cfg.Variant.Mode)
	}
	if cfg.Variant.Output == nil {
		cfg.Variant.Output = TranscriptOnly{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		cfg:    cfg,
		logger: logger.With("mode", cfg.Variant.Mode),
		log:    transcript.NewLog(),
		notes:  summary.NewNotes(),
	}, nil
}

// Start acquires the microphone, opens the output and connects to the
// engine. It does nothing unless the controller is idle. On failure the
// error is reported through OnError and the controller returns to idle.
// Each session starts with an empty transcript and notes.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel
	busy := make(chan struct{})
	c.busy = busy
	c.lastErr = nil
	c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()
	c.notify()

	r, err := c.open(startCtx, gen)

	c.mu.Lock()
	c.cancel = nil
	if c.gen != gen {
		// Stop took over; it waits for busy before going idle
		c.mu.Unlock()
		if r != nil {
			c.release(r, false)
		}
		close(busy)
		return ErrStopped
	}

	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateError, err)
		c.setStateLocked(StateIdle, nil)
		close(busy)
		c.mu.Unlock()
		c.logger.Error("failed to start session", "error", err)
		c.notify()
		return err
	}

	r.started = time.Now()
	c.run = r
	c.log = r.log
	c.notes = r.notes
	c.setStateLocked(StateActive, nil)
	close(busy)

	r.pipeline.Start()
	go c.eventLoop(r)
	if r.scheduler != nil {
		r.scheduler.Start()
	}
	c.mu.Unlock()

	c.cfg.Metrics.SessionStarted()
	c.notify()
	return nil
}

// open acquires every resource of a session, releasing what it got on failure
func (c *Controller) open(ctx context.Context, gen uint64) (*run, error) {
	stream, err := c.cfg.Microphone.Open(ctx)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}

	output, err := c.cfg.Variant.Output.Open(ctx)
	if err != nil {
		stream.Close()
		return nil, &DeviceError{Op: "output", Err: err}
	}

	opts := c.cfg.Session
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	sess, err := realtime.Connect(ctx, c.cfg.Dialer, c.cfg.Variant.Profile, opts)
	if err != nil {
		output.Close()
		stream.Close()
		return nil, err
	}

	pipeline, err := audio.NewPipeline(audio.PipelineConfig{
		InputSampleRate: stream.SampleRate(),
		FrameSize:       c.cfg.FrameSize,
		Send:            sess.Send,
		Recorder:        c.cfg.Metrics,
		Logger:          c.logger,
	})
	if err != nil {
		sess.Close()
		output.Close()
		stream.Close()
		return nil, &DeviceError{Op: "configure", Err: err}
	}
	pipeline.SetInputChannel(stream.Samples())

	r := &run{
		gen:       gen,
		stream:    stream,
		pipeline:  pipeline,
		session:   sess,
		output:    output,
		assembler: transcript.NewAssembler(),
		log:       transcript.NewLog(),
		notes:     summary.NewNotes(),
		done:      make(chan struct{}),
	}

	if c.cfg.Variant.Summarize {
		sc := c.cfg.Summary
		sc.Recorder = c.cfg.Metrics
		sc.Logger = c.logger
		sc.OnNotes = func(s string) { c.notesReady(gen, s) }
		r.scheduler = summary.NewScheduler(r.log, c.cfg.Summarizer, r.notes, sc)
	}

	return r, nil
}

// Stop ends the current session. The microphone, engine session, scheduler
// and output are released before it returns. Safe to call in any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return

	case StateClosing, StateError:
		busy := c.busy
		c.mu.Unlock()
		<-busy
		return

	case StateConnecting:
		c.gen++
		starting := c.busy
		if c.cancel != nil {
			c.cancel()
		}
		busy := make(chan struct{})
		c.busy = busy
		c.setStateLocked(StateClosing, nil)
		c.mu.Unlock()
		c.notify()

		<-starting

		c.mu.Lock()
		c.setStateLocked(StateIdle, nil)
		close(busy)
		c.mu.Unlock()
		c.notify()
		return
	}

	r := c.run
	c.gen++
	busy := make(chan struct{})
	c.busy = busy
	c.setStateLocked(StateClosing, nil)
	c.mu.Unlock()
	c.notify()

	c.release(r, true)
	c.ended(r, "stopped", busy)
	c.logger.Info("session stopped", "duration_ms", time.Since(r.started).Milliseconds())
}

// end tears down r from its own event loop. It does nothing if r is no
// longer the current session.
func (c *Controller) end(r *run, status string, err error) {
	c.mu.Lock()
	if c.gen != r.gen || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.gen++
	busy := make(chan struct{})
	c.busy = busy
	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateError, err)
	} else {
		c.setStateLocked(StateClosing, nil)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Error("session failed", "error", err)
	} else {
		c.logger.Info("session ended by engine")
	}

	c.release(r, false)
	c.ended(r, status, busy)
}

func (c *Controller) ended(r *run, status string, busy chan struct{}) {
	c.mu.Lock()
	c.run = nil
	c.setStateLocked(StateIdle, nil)
	close(busy)
	c.mu.Unlock()

	c.cfg.Metrics.SessionEnded(c.cfg.Variant.Mode, status, time.Since(r.started))
	c.notify()
}

// release closes the resources of r. The scheduler is stopped first so a
// late summary cannot land after the session is gone.
func (c *Controller) release(r *run, waitLoop bool) {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
	if err := r.stream.Close(); err != nil {
		c.logger.Warn("failed to release microphone", "error", err)
	}
	r.pipeline.Close()
	if err := r.session.Close(); err != nil {
		c.logger.Debug("failed to close realtime session", "error", err)
	}
	if waitLoop {
		<-r.done
	}
	if err := r.output.Close(); err != nil {
		c.logger.Warn("failed to close output", "error", err)
	}
}

// eventLoop is the only consumer of session events and the only user of
// the assembler and output of r.
func (c *Controller) eventLoop(r *run) {
	defer close(r.done)

	events := r.session.Events()
	captureDone := r.pipeline.Done()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !c.handleEvent(r, event) {
				return
			}

		case <-captureDone:
			captureDone = nil
			c.end(r, "error", &DeviceError{Op: "capture", Err: errCaptureEnded})
		}
	}
}

// handleEvent dispatches one engine event. It returns false once the
// session is over.
func (c *Controller) handleEvent(r *run, event realtime.Event) bool {
	switch e := event.(type) {
	case realtime.PartialInputTranscript:
		r.assembler.AddInput(e.Text)

	case realtime.PartialOutputTranscript:
		r.assembler.AddOutput(e.Text)

	case realtime.TurnComplete:
		turns := r.assembler.Complete()
		if len(turns) == 0 {
			return true
		}
		r.log.Append(turns...)
		if !c.current(r) {
			return true
		}
		for _, turn := range turns {
			c.cfg.Metrics.TurnCompleted(string(turn.Speaker))
			c.logger.Debug("turn completed", "speaker", turn.Speaker, "chars", len(turn.Text))
			if c.cfg.Hooks.OnTurn != nil {
				c.cfg.Hooks.OnTurn(turn)
			}
		}

	case realtime.AudioDelta:
		r.output.HandleAudio(e.Chunk)

	case realtime.Interrupted:
		c.logger.Debug("engine interrupted, flushing playback")
		r.output.Interrupt()

	case *realtime.SessionError:
		c.end(r, "error", e)
		return false

	case realtime.SessionClosed:
		c.end(r, "closed", nil)
		return false

	default:
		c.logger.Debug("ignoring event", "type", event.EventType())
	}
	return true
}

func (c *Controller) current(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == r.gen && c.state == StateActive
}

func (c *Controller) notesReady(gen uint64, s string) {
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale || c.cfg.Hooks.OnNotes == nil {
		return
	}
	c.cfg.Hooks.OnNotes(s)
}

// SummarizeNow runs one summary pass immediately. It returns false if the
// controller has no active note-taking session or nothing new was summarized.
func (c *Controller) SummarizeNow(ctx context.Context) (bool, error) {
	c.mu.Lock()
	r := c.run
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || r == nil || r.scheduler == nil {
		return false, nil
	}
	return r.scheduler.Tick(ctx)
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the variant mode
func (c *Controller) Mode() string {
	return c.cfg.Variant.Mode
}

// Err returns the error that ended the last session, if any
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns the turns of the current or last session
func (c *Controller) Transcript() []transcript.Turn {
	c.mu.Lock()
	log := c.log
	c.mu.Unlock()
	return log.Turns()
}

// Notes returns the notes of the current or last session
func (c *Controller) Notes() []string {
	c.mu.Lock()
	notes := c.notes
	c.mu.Unlock()
	return notes.Entries()
}

func (c *Controller) setStateLocked(s State, err error) {
	c.state = s
	c.notices = append(c.notices, notice{state: s, err: err})
}

// notify delivers queued transitions to the hooks outside c.mu
func (c *Controller) notify() {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.mu.Lock()
	pending := c.notices
	c.notices = nil
	c.mu.Unlock()

	for _, n := range pending {
		c.logger.Debug("session state changed", "state", n.state)
		if c.cfg.Hooks.OnStateChange != nil {
			c.cfg.Hooks.OnStateChange(n.state)
		}
		if n.err != nil && c.cfg.Hooks.OnError != nil {
			c.cfg.Hooks.OnError(Message(n.err), n.err)
		}
	}
}
