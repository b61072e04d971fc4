package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pion "github.com/pion/webrtc/v4"
	"github.com/silviot/live_tutor_go/pkg/metrics"
	"github.com/silviot/live_tutor_go/pkg/summary"
)

// browserOffer creates an SDP offer the way a browser sharing its
// microphone would.
func browserOffer(t *testing.T) string {
	t.Helper()
	pc, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		t.Fatalf("failed to create browser peer: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio,
		pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionSendrecv}); err != nil {
		t.Fatalf("failed to add transceiver: %v", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("failed to create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("failed to set local description: %v", err)
	}
	return offer.SDP
}

func newTestManager(t *testing.T, dialer *fakeDialer, mutate func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{
		Dialer:      dialer,
		TutorPrompt: "teach",
		NotesPrompt: "listen",
		Summarizer: summary.SummarizerFunc(func(context.Context, string) (string, error) {
			return "- note", nil
		}),
		MaxSessions: 4,
		Metrics:     metrics.New("test"),
		Logger:      slog.Default(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(cfg)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManagerCreateAndStop(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(t, dialer, func(cfg *ManagerConfig) {
		cfg.Model = "engine-1"
		cfg.Voice = "Puck"
	})

	s, answer, err := m.Create(context.Background(), ModeTutor, browserOffer(t))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.Contains(answer, "m=audio") {
		t.Errorf("answer has no audio section")
	}
	if s.Controller.State() != StateActive {
		t.Errorf("state = %v, want active", s.Controller.State())
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}

	profile := dialer.profiles[0]
	if profile.Model != "engine-1" || profile.Voice != "Puck" || profile.SystemInstruction != "teach" {
		t.Errorf("dialled profile = %+v", profile)
	}

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = (%v, %v)", got, err)
	}

	if err := m.Stop(s.ID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.Controller.State() != StateIdle {
		t.Errorf("state after Stop = %v, want idle", s.Controller.State())
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Stop = %v, want ErrNotFound", err)
	}
	if err := m.Stop(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Stop = %v, want ErrNotFound", err)
	}
}

func TestManagerRejectsBadModes(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, func(cfg *ManagerConfig) {
		cfg.Summarizer = nil
	})

	for _, mode := range []string{"karaoke", ModeNotes} {
		if _, _, err := m.Create(context.Background(), mode, browserOffer(t)); !errors.Is(err, ErrUnknownMode) {
			t.Errorf("Create(%q) = %v, want ErrUnknownMode", mode, err)
		}
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}

func TestManagerCapacity(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, func(cfg *ManagerConfig) {
		cfg.MaxSessions = 1
	})

	if _, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t)); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t)); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("second Create = %v, want ErrAtCapacity", err)
	}
}

func TestManagerCapacityCountsSessionsBeingCreated(t *testing.T) {
	dialer := &fakeDialer{gate: make(chan struct{})}
	m := newTestManager(t, dialer, func(cfg *ManagerConfig) {
		cfg.MaxSessions = 1
	})

	first := browserOffer(t)
	done := make(chan error, 1)
	go func() {
		_, _, err := m.Create(context.Background(), ModeNotes, first)
		done <- err
	}()
	waitFor(t, "first dial", func() bool { return dialer.dials() == 1 })

	if _, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t)); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("Create during first connect = %v, want ErrAtCapacity", err)
	}

	close(dialer.gate)
	if err := <-done; err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestManagerFailedCreateFreesSlot(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("refused")}
	m := newTestManager(t, dialer, func(cfg *ManagerConfig) {
		cfg.MaxSessions = 1
	})

	if _, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t)); err == nil {
		t.Fatal("expected connect error")
	}

	dialer.mu.Lock()
	dialer.err = nil
	dialer.mu.Unlock()
	if _, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t)); err != nil {
		t.Fatalf("Create after failure = %v, want success", err)
	}
}

func TestManagerConnectFailureLeavesNothing(t *testing.T) {
	m := newTestManager(t, &fakeDialer{err: errors.New("refused")}, nil)

	if _, _, err := m.Create(context.Background(), ModeTutor, browserOffer(t)); err == nil {
		t.Fatal("expected error")
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}

func TestManagerReapsEndedSessions(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(t, dialer, nil)

	if _, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dialer.last().recv <- recvResult{err: io.EOF}

	waitFor(t, "reap", func() bool { return m.Count() == 0 })
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, nil)

	var sessions []*Managed
	for i := 0; i < 3; i++ {
		s, _, err := m.Create(context.Background(), ModeNotes, browserOffer(t))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		sessions = append(sessions, s)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
	for _, s := range sessions {
		if s.Controller.State() != StateIdle {
			t.Errorf("session %s state = %v, want idle", s.ID, s.Controller.State())
		}
	}
}

func newTestServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	m.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestAPICreateBadRequests(t *testing.T) {
	srv := newTestServer(t, newTestManager(t, &fakeDialer{}, nil))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing offer", `{"mode":"tutor"}`, http.StatusBadRequest},
		{"unknown mode", `{"mode":"karaoke","offer":"v=0"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestAPIConnectFailureIsBadGateway(t *testing.T) {
	srv := newTestServer(t, newTestManager(t, &fakeDialer{err: errors.New("refused")}, nil))

	resp := postJSON(t, srv.URL+"/api/v1/sessions", CreateRequest{Mode: ModeNotes, Offer: browserOffer(t)})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "Could not connect to the assistant. Please try again." {
		t.Errorf("error = %q", body["error"])
	}
}

func TestAPISessionLifecycle(t *testing.T) {
	dialer := &fakeDialer{}
	srv := newTestServer(t, newTestManager(t, dialer, nil))

	resp := postJSON(t, srv.URL+"/api/v1/sessions", CreateRequest{Mode: ModeNotes, Offer: browserOffer(t)})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" || created.Answer == "" || created.State != StateActive || created.Mode != ModeNotes {
		t.Fatalf("unexpected create response: %+v", created)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/sessions/" + created.ID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer getResp.Body.Close()
	var status map[string]interface{}
	json.NewDecoder(getResp.Body).Decode(&status)
	if status["state"] != "active" || status["id"] != created.ID {
		t.Errorf("unexpected status: %v", status)
	}

	listResp, err := http.Get(srv.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer listResp.Body.Close()
	var list struct {
		Count int `json:"count"`
	}
	json.NewDecoder(listResp.Body).Decode(&list)
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}

	cand, err := http.Post(srv.URL+"/api/v1/sessions/"+created.ID+"/candidates", "application/json", strings.NewReader("{oops"))
	if err != nil {
		t.Fatalf("candidate POST failed: %v", err)
	}
	cand.Body.Close()
	if cand.StatusCode != http.StatusBadRequest {
		t.Errorf("bad candidate status = %d, want 400", cand.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/sessions/"+created.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", delResp.StatusCode)
	}

	gone, err := http.Get(srv.URL + "/api/v1/sessions/" + created.ID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", gone.StatusCode)
	}
}

func TestAPIUnknownSession(t *testing.T) {
	srv := newTestServer(t, newTestManager(t, &fakeDialer{}, nil))

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/sessions/missing", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	cand, err := http.Post(srv.URL+"/api/v1/sessions/missing/candidates", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	cand.Body.Close()
	if cand.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", cand.StatusCode)
	}
}
