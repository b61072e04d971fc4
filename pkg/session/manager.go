package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/silviot/live_tutor_go/pkg/metrics"
	"github.com/silviot/live_tutor_go/pkg/realtime"
	"github.com/silviot/live_tutor_go/pkg/summary"
	"github.com/silviot/live_tutor_go/pkg/webrtc"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrAtCapacity  = errors.New("too many active sessions")
	ErrUnknownMode = errors.New("unknown session mode")
)

// Managed is one browser session: a controller whose microphone (and, in
// tutor mode, speaker) is a WebRTC peer.
type Managed struct {
	ID         string
	Mode       string
	Created    time.Time
	Controller *Controller
	Peer       *webrtc.Peer
}

// Manager owns the sessions of the HTTP service
type Manager struct {
	sessions map[string]*Managed
	pending  int // slots reserved by Create calls still in progress
	mu       sync.RWMutex
	cfg      ManagerConfig
	logger   *slog.Logger
}

// ManagerConfig holds configuration for the session manager
type ManagerConfig struct {
	RTC           webrtc.ConnectionConfig
	Dialer        realtime.Dialer
	Model         string
	Voice         string
	TutorPrompt   string
	NotesPrompt   string
	Summarizer    summary.Summarizer // nil disables notes mode
	Summary       summary.Config
	Session       realtime.Options
	CaptureBuffer int
	MaxSessions   int
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// NewManager creates a new session manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 100
	}

	return &Manager{
		sessions: make(map[string]*Managed),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// variant builds the controller variant for a mode
func (m *Manager) variant(mode string, peer *webrtc.Peer) (Variant, error) {
	var v Variant
	switch mode {
	case ModeTutor:
		v = TutorVariant(m.cfg.TutorPrompt, &Playback{
			Device:   peer,
			Recorder: m.cfg.Metrics,
			Logger:   m.logger,
		})
	case ModeNotes:
		if m.cfg.Summarizer == nil {
			return Variant{}, fmt.Errorf("%w: notes mode has no summarizer configured", ErrUnknownMode)
		}
		v = NoteTakerVariant(m.cfg.NotesPrompt)
	default:
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	v.Profile.Model = m.cfg.Model
	v.Profile.Voice = m.cfg.Voice
	return v, nil
}

// Create answers a browser offer and starts a session on its microphone
func (m *Manager) Create(ctx context.Context, mode, offerSDP string) (*Managed, string, error) {
	if mode != ModeTutor && mode != ModeNotes {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	if !m.reserve() {
		return nil, "", ErrAtCapacity
	}
	registered := false
	defer func() {
		if !registered {
			m.unreserve()
		}
	}()

	id := uuid.NewString()
	logger := m.logger.With("session_id", id)

	peer, err := webrtc.NewPeer(m.cfg.RTC, webrtc.PeerOptions{
		ID:           id,
		BufferBlocks: m.cfg.CaptureBuffer,
		SendAudio:    mode == ModeTutor,
		Recorder:     m.cfg.Metrics,
		Logger:       logger,
	})
	if err != nil {
		return nil, "", err
	}

	variant, err := m.variant(mode, peer)
	if err != nil {
		peer.Close()
		return nil, "", err
	}

	answer, err := peer.CreateAnswer(ctx, offerSDP)
	if err != nil {
		peer.Close()
		return nil, "", err
	}

	var wasActive bool
	ctrl, err := NewController(Config{
		Variant:    variant,
		Microphone: peer,
		Dialer:     m.cfg.Dialer,
		Summarizer: m.cfg.Summarizer,
		Summary:    m.cfg.Summary,
		Session:    m.cfg.Session,
		Metrics:    m.cfg.Metrics,
		Logger:     logger,
		Hooks: Hooks{
			OnStateChange: func(state State) {
				// Sessions that end on their own are reaped
				switch state {
				case StateActive:
					wasActive = true
				case StateIdle:
					if wasActive {
						go m.remove(id)
					}
				}
			},
		},
	})
	if err != nil {
		peer.Close()
		return nil, "", err
	}

	if err := ctrl.Start(ctx); err != nil {
		peer.Close()
		return nil, "", err
	}

	managed := &Managed{
		ID:         id,
		Mode:       mode,
		Created:    time.Now(),
		Controller: ctrl,
		Peer:       peer,
	}

	m.mu.Lock()
	m.pending--
	m.sessions[id] = managed
	m.mu.Unlock()
	registered = true

	// The session may already have ended before it was registered
	if ctrl.State() == StateIdle {
		go m.remove(id)
	}

	logger.Info("session created", "mode", mode)
	return managed, answer, nil
}

// reserve claims a session slot for a Create in progress
func (m *Manager) reserve() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions)+m.pending >= m.cfg.MaxSessions {
		return false
	}
	m.pending++
	return true
}

func (m *Manager) unreserve() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
}

// Get returns a session by ID
func (m *Manager) Get(id string) (*Managed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns all sessions
func (m *Manager) List() []*Managed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Managed, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}

// Stop ends a session and closes its peer
func (m *Manager) Stop(id string) error {
	s := m.take(id)
	if s == nil {
		return ErrNotFound
	}
	s.Controller.Stop()
	if err := s.Peer.Close(); err != nil {
		m.logger.Debug("failed to close peer", "session_id", id, "error", err)
	}
	m.logger.Info("session stopped", "session_id", id)
	return nil
}

// remove drops a session that already went idle
func (m *Manager) remove(id string) {
	s := m.take(id)
	if s == nil {
		return
	}
	s.Peer.Close()
	m.logger.Info("session ended", "session_id", id, "error", s.Controller.Err())
}

func (m *Manager) take(id string) *Managed {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	return s
}

// Count returns the number of sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops every session concurrently
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Managed)
	m.mu.Unlock()

	var g errgroup.Group
	for id, s := range sessions {
		g.Go(func() error {
			s.Controller.Stop()
			if err := s.Peer.Close(); err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
