// Package webrtc carries a browser microphone, and optionally the engine's
// voice, over a WebRTC connection.
package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/silviot/live_tutor_go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// ErrPeerClosed is returned when opening capture on a closed peer
var ErrPeerClosed = errors.New("peer connection closed")

// Peer is one browser connection whose audio track is used as a
// microphone. It implements audio.Microphone, and audio.OutputOpener when
// created with SendAudio.
type Peer struct {
	id           string
	peerConn     *webrtc.PeerConnection
	logger       *slog.Logger
	recorder     audio.PlaybackRecorder
	bufferBlocks int

	mu      sync.Mutex
	capture *audio.CaptureBuffer
	track   *webrtc.TrackLocalStaticSample
	closed  bool

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// PeerOptions configures a Peer
type PeerOptions struct {
	ID           string
	BufferBlocks int  // Capture blocks held before the newest is dropped
	SendAudio    bool                   // Attach an outbound track for synthesized speech
	Recorder     audio.PlaybackRecorder // Counts speech dropped on the outbound track
	Logger       *slog.Logger
}

// NewPeer creates a peer connection. Audio is decoded once capture is
// opened and the remote track arrives.
func NewPeer(cfg ConnectionConfig, opts PeerOptions) (*Peer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("peer", opts.ID)

	rtcConfig := webrtc.Configuration{}
	for _, stunURL := range cfg.STUN {
		rtcConfig.ICEServers = append(rtcConfig.ICEServers, webrtc.ICEServer{
			URLs: []string{stunURL},
		})
	}
	for _, turn := range cfg.TURN {
		rtcConfig.ICEServers = append(rtcConfig.ICEServers, webrtc.ICEServer{
			URLs:       turn.URLs,
			Username:   turn.Username,
			Credential: turn.Credential,
		})
	}

	// Larger buffers avoid "short buffer" errors from packetio
	se := webrtc.SettingEngine{}
	se.SetReceiveMTU(16384)
	se.SetSRTPReplayProtectionWindow(1024)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	peerConn, err := api.NewPeerConnection(rtcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := &Peer{
		id:           opts.ID,
		peerConn:     peerConn,
		logger:       logger,
		recorder:     opts.Recorder,
		bufferBlocks: opts.BufferBlocks,
		closeCh:      make(chan struct{}),
	}

	if opts.SendAudio {
		if err := p.addOutputTrack(); err != nil {
			peerConn.Close()
			return nil, err
		}
	}

	peerConn.OnTrack(p.onTrack)
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Info("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.revoke()
		}
	})

	logger.Info("peer connection created")
	return p, nil
}

// ID returns the peer identifier
func (p *Peer) ID() string {
	return p.id
}

// Open implements audio.Microphone. Only one capture stream may be open at
// a time; it ends when the connection fails or the peer is closed.
func (p *Peer) Open(ctx context.Context) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPeerClosed
	}
	if p.capture != nil {
		return nil, fmt.Errorf("capture already open")
	}

	var buf *audio.CaptureBuffer
	buf = audio.NewCaptureBuffer(p.bufferBlocks, opusSampleRate, func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.capture == buf {
			p.capture = nil
		}
		return nil
	})
	p.capture = buf
	return buf, nil
}

// deliver hands decoded mono samples to the open capture stream, if any
func (p *Peer) deliver(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capture != nil {
		p.capture.Offer(samples)
	}
}

// revoke ends the open capture stream as if the device went away
func (p *Peer) revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capture != nil {
		p.capture.End()
		p.capture = nil
	}
}

func (p *Peer) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	codec := track.Codec()
	p.logger.Info("track received",
		"codec", codec.MimeType,
		"clockRate", codec.ClockRate,
		"channels", codec.Channels,
		"kind", track.Kind().String(),
	)

	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus) {
		p.logger.Warn("ignoring non-opus audio track", "codec", codec.MimeType)
		return
	}

	channels := int(codec.Channels)
	if channels < 1 {
		channels = 2 // SDP declares opus/48000/2
	}

	p.wg.Add(1)
	go p.decodeLoop(track, channels)
}

// decodeLoop reads RTP packets, decodes Opus and delivers mono audio
func (p *Peer) decodeLoop(track *webrtc.TrackRemote, channels int) {
	defer p.wg.Done()
	defer p.revoke()

	decoder, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		p.logger.Error("failed to create Opus decoder", "error", err, "channels", channels)
		return
	}

	pcm := make([]float32, maxOpusFrame*channels)
	packets := 0

	for {
		select {
		case <-p.closeCh:
			return
		default:
		}

		packet, _, err := track.ReadRTP()
		if err != nil {
			if !p.isClosed() {
				p.logger.Warn("audio track ended", "error", err)
			}
			return
		}
		if len(packet.Payload) == 0 {
			continue
		}
		packets++

		n, err := decoder.DecodeFloat32(packet.Payload, pcm)
		if err != nil {
			p.logger.Debug("opus decode error", "error", err, "payloadLen", len(packet.Payload))
			continue
		}
		if n == 0 {
			continue
		}
		if packets%500 == 1 {
			p.logger.Debug("decoded audio", "samplesPerCh", n, "packets", packets)
		}

		// Opus can overshoot [-1, 1] on transients
		frame := pcm[:n*channels]
		for i, v := range frame {
			if v > 1 {
				frame[i] = 1
			} else if v < -1 {
				frame[i] = -1
			}
		}
		p.deliver(audio.Downmix(frame, channels))
	}
}

func (p *Peer) isClosed() bool {
	select {
	case <-p.closeCh:
		return true
	default:
		return false
	}
}

// CreateAnswer answers an SDP offer. It waits for ICE gathering so the
// answer carries every local candidate.
func (p *Peer) CreateAnswer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.peerConn.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := p.peerConn.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(p.peerConn)
	if err := p.peerConn.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("ICE gathering: %w", ctx.Err())
	}

	return p.peerConn.LocalDescription().SDP, nil
}

// AddICECandidate adds a trickled ICE candidate in its JSON form
func (p *Peer) AddICECandidate(candidate string) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &c); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}
	return p.peerConn.AddICECandidate(c)
}

// Close ends capture and the peer connection. Safe to call more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.closeCh)
		err = p.peerConn.Close()
		p.wg.Wait()
		p.revoke()
		p.logger.Info("peer closed")
	})
	return err
}
