package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/silviot/live_tutor_go/pkg/audio"
)

const (
	defaultQueueSize   = 64
	defaultEventBuffer = 32
)

// Options tunes a session
type Options struct {
	QueueSize   int // Outbound chunks buffered before Send reports ErrQueueFull
	EventBuffer int // Inbound events buffered ahead of the consumer
	Logger      *slog.Logger
}

// Session is an open duplex stream to the engine. Outbound chunks go
// through a bounded queue drained by one writer goroutine; inbound events
// are read by one reader goroutine and never dropped.
type Session struct {
	transport Transport
	profile   Profile
	logger    *slog.Logger

	outbound chan audio.EncodedChunk
	events   chan Event
	done     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed        atomic.Bool
	closeOnce     sync.Once
	transportOnce sync.Once
	transportErr  error

	errMu sync.Mutex
	err   error
}

// Connect opens a session. Any failure yields a *ConnectionError and leaves
// nothing running.
func Connect(ctx context.Context, dialer Dialer, profile Profile, opts Options) (*Session, error) {
	if err := profile.Validate(); err != nil {
		return nil, &ConnectionError{Op: "profile", Err: err}
	}
	if dialer == nil {
		return nil, &ConnectionError{Op: "dial", Err: errors.New("no dialer configured")}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport, err := dialer.Dial(ctx, profile)
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return nil, connErr
		}
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		transport: transport,
		profile:   profile,
		logger:    logger,
		outbound:  make(chan audio.EncodedChunk, opts.QueueSize),
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
		ctx:       sessionCtx,
		cancel:    cancel,
	}

	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()

	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	logger.Info("realtime session open", "model", profile.Model, "modalities", profile.Modalities)
	return s, nil
}

// Profile returns the profile the session was opened with
func (s *Session) Profile() Profile {
	return s.profile
}

// Send queues a chunk for the engine without waiting for the network
func (s *Session) Send(chunk audio.EncodedChunk) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case s.outbound <- chunk:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events returns the inbound event stream. It is closed once the reader exits.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when both session goroutines have exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, if any
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close ends the session and releases the transport. It is safe to call from
// any goroutine and in any state; only the first call has an effect.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		err = s.closeTransport()
		s.wg.Wait()
		s.logger.Debug("realtime session closed")
	})
	return err
}

func (s *Session) closeTransport() error {
	s.transportOnce.Do(func() {
		s.transportErr = s.transport.Close()
	})
	return s.transportErr
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk := <-s.outbound:
			if err := s.transport.Send(s.ctx, chunk); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				// The reader reports the failure once the transport is down
				s.setErr(&SessionError{Op: "send", Err: err})
				s.closeTransport()
				return
			}
		}
	}
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.events)
	defer s.cancel()

	for {
		events, err := s.transport.Recv(s.ctx)
		for _, event := range events {
			if !s.emit(event) {
				return
			}
		}
		if err == nil {
			continue
		}

		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) && s.Err() == nil {
			s.logger.Info("realtime session ended by engine")
			s.emit(SessionClosed{})
			return
		}

		s.setErr(&SessionError{Op: "receive", Err: err})
		sessErr := s.Err()
		s.logger.Error("realtime session failed", "error", sessErr)

		var typed *SessionError
		if !errors.As(sessErr, &typed) {
			typed = &SessionError{Op: "receive", Err: sessErr}
		}
		if s.emit(typed) {
			s.emit(SessionClosed{})
		}
		return
	}
}

// emit delivers an event, blocking until it is taken or the session closes
func (s *Session) emit(event Event) bool {
	select {
	case s.events <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}
