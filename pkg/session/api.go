package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/silviot/live_tutor_go/pkg/realtime"
	"github.com/silviot/live_tutor_go/pkg/transcript"
)

// CreateRequest starts a session from a browser offer
type CreateRequest struct {
	Mode  string `json:"mode"`
	Offer string `json:"offer"` // SDP
}

// CreateResponse carries the SDP answer for the browser
type CreateResponse struct {
	ID     string `json:"id"`
	Mode   string `json:"mode"`
	State  State  `json:"state"`
	Answer string `json:"answer"`
}

// StatusResponse describes one session
type StatusResponse struct {
	ID         string            `json:"id"`
	Mode       string            `json:"mode"`
	State      State             `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	Transcript []transcript.Turn `json:"transcript"`
	Notes      []string          `json:"notes"`
	Error      string            `json:"error,omitempty"`
}

// Register mounts the session API on mux
func (m *Manager) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", m.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", m.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", m.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", m.HandleDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/candidates", m.HandleCandidate)
}

// HandleCreate handles POST /api/v1/sessions
func (m *Manager) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = ModeTutor
	}
	if req.Offer == "" {
		writeError(w, http.StatusBadRequest, "offer required")
		return
	}

	s, answer, err := m.Create(r.Context(), req.Mode, req.Offer)
	if err != nil {
		m.logger.Error("failed to create session", "mode", req.Mode, "error", err)
		writeError(w, createStatus(err), createMessage(err))
		return
	}

	writeJSON(w, http.StatusCreated, CreateResponse{
		ID:     s.ID,
		Mode:   s.Mode,
		State:  s.Controller.State(),
		Answer: answer,
	})
}

func createStatus(err error) int {
	var (
		devErr  *DeviceError
		connErr *realtime.ConnectionError
	)
	switch {
	case errors.Is(err, ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, ErrAtCapacity):
		return http.StatusServiceUnavailable
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &devErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func createMessage(err error) string {
	var (
		devErr  *DeviceError
		connErr *realtime.ConnectionError
	)
	if errors.As(err, &devErr) || errors.As(err, &connErr) {
		return Message(err)
	}
	return err.Error()
}

// HandleList handles GET /api/v1/sessions
func (m *Manager) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := m.List()
	list := make([]StatusResponse, 0, len(sessions))
	for _, s := range sessions {
		list = append(list, status(s, false))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": list,
		"count":    len(list),
	})
}

// HandleGet handles GET /api/v1/sessions/{id}
func (m *Manager) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := m.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status(s, true))
}

// HandleDelete handles DELETE /api/v1/sessions/{id}
func (m *Manager) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.Stop(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "stopped",
		"id":     id,
	})
}

// HandleCandidate handles POST /api/v1/sessions/{id}/candidates with a
// trickled ICE candidate as the body.
func (m *Manager) HandleCandidate(w http.ResponseWriter, r *http.Request) {
	s, err := m.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Peer.AddICECandidate(string(body)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func status(s *Managed, detail bool) StatusResponse {
	resp := StatusResponse{
		ID:        s.ID,
		Mode:      s.Mode,
		State:     s.Controller.State(),
		CreatedAt: s.Created,
	}
	if err := s.Controller.Err(); err != nil {
		resp.Error = Message(err)
	}
	if detail {
		resp.Transcript = s.Controller.Transcript()
		resp.Notes = s.Controller.Notes()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
