package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/silviot/live_tutor_go/pkg/audio"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultPingInterval     = 25 * time.Second
	writeTimeout            = 10 * time.Second
)

// WebSocketDialer connects to an engine speaking the JSON websocket protocol
type WebSocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration // Dial plus setup_complete wait (default 10s)
	ReadTimeout      time.Duration // Max silence before the connection is considered dead (default 60s)
	PingInterval     time.Duration // Keep-alive ping period (default 25s)
	Logger           *slog.Logger
}

// Dial opens the websocket and performs the setup handshake
func (d *WebSocketDialer) Dial(ctx context.Context, profile Profile) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	readTimeout := d.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	pingInterval := d.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	deadline := time.Now().Add(handshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(ClientMessage{Type: MessageSetup, Setup: &profile}); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "setup", Err: err}
	}

	conn.SetReadDeadline(deadline)
	var reply ServerMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "setup", Err: err}
	}
	switch reply.Type {
	case MessageSetupComplete:
	case MessageError:
		conn.Close()
		return nil, &ConnectionError{Op: "setup", Err: fmt.Errorf("engine rejected setup: %s", reply.Message)}
	default:
		conn.Close()
		return nil, &ConnectionError{Op: "setup", Err: fmt.Errorf("unexpected message %q", reply.Type)}
	}

	t := &wsTransport{
		conn:        conn,
		readTimeout: readTimeout,
		logger:      logger,
		closeCh:     make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	t.wg.Add(1)
	go t.pingLoop(pingInterval)

	logger.Debug("websocket engine connected", "url", d.URL)
	return t, nil
}

type wsTransport struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *slog.Logger

	writeMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (t *wsTransport) Send(_ context.Context, chunk audio.EncodedChunk) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(ClientMessage{Type: MessageRealtimeInput, Audio: &chunk})
}

func (t *wsTransport) Recv(_ context.Context) ([]Event, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if isNormalClose(err) {
				return nil, io.EOF
			}
			return nil, err
		}
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn("ignoring malformed engine message", "error", err)
			continue
		}

		switch msg.Type {
		case MessageServerContent:
			if events := msg.Events(); len(events) > 0 {
				return events, nil
			}
		case MessageGoAway:
			return nil, io.EOF
		case MessageError:
			return nil, fmt.Errorf("engine error: %s", msg.Message)
		default:
			t.logger.Debug("ignoring engine message", "type", msg.Type)
		}
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)

		// WriteControl may run concurrently with a pending Send
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

func (t *wsTransport) pingLoop(interval time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.closeCh:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				t.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// isNormalClose reports whether err is an orderly shutdown by the peer
func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
