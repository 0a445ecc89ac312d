package control

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/benvon/onetask/internal/focus"
)

// FocusStatus is the GET /focus payload.
type FocusStatus struct {
	TaskID           string  `json:"task_id"`
	Title            string  `json:"title"`
	State            string  `json:"state"`
	Minutes          int     `json:"minutes"`
	RemainingSeconds int     `json:"remaining_seconds"`
	Clock            string  `json:"clock"`
	Progress         float64 `json:"progress"`
	Suppressing      bool    `json:"notifications_suppressed"`
}

func statusOf(s *focus.Session) FocusStatus {
	t := s.Timer()
	remaining := t.Remaining()
	return FocusStatus{
		TaskID:           s.Task().ID.String(),
		Title:            s.Task().Title,
		State:            t.State().String(),
		Minutes:          t.Minutes(),
		RemainingSeconds: remaining,
		Clock:            focus.FormatClock(remaining),
		Progress:         t.Progress(),
		Suppressing:      s.Guard().Suppressing(),
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"session_active": s.sessions.ActiveSession() != nil,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondJSONError(w, http.StatusNotFound, "Not Found", "no such endpoint")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
}

// active writes a 404 and returns nil when no session is running.
func (s *Server) active(w http.ResponseWriter) *focus.Session {
	sess := s.sessions.ActiveSession()
	if sess == nil || sess.Timer().State().Terminal() {
		respondJSONError(w, http.StatusNotFound, "Not Found", "no focus session is running")
		return nil
	}
	return sess
}

func (s *Server) getFocus(w http.ResponseWriter, r *http.Request) {
	if sess := s.active(w); sess != nil {
		respondJSON(w, http.StatusOK, statusOf(sess))
	}
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	sess := s.active(w)
	if sess == nil {
		return
	}
	if !sess.Timer().Pause() {
		respondJSONError(w, http.StatusConflict, "Conflict", "focus session is not running")
		return
	}
	respondJSON(w, http.StatusOK, statusOf(sess))
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	sess := s.active(w)
	if sess == nil {
		return
	}
	if !sess.Timer().Resume() {
		respondJSONError(w, http.StatusConflict, "Conflict", "focus session is not paused")
		return
	}
	respondJSON(w, http.StatusOK, statusOf(sess))
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	sess := s.active(w)
	if sess == nil {
		return
	}
	if !sess.Cancel() {
		respondJSONError(w, http.StatusConflict, "Conflict", "focus session already ended")
		return
	}
	respondJSON(w, http.StatusOK, statusOf(sess))
}

// endRequest is the optional POST /focus/end body.
type endRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) end(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if r.ContentLength != 0 {
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
			respondJSONError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "Content-Type must be application/json")
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}

	sess := s.active(w)
	if sess == nil {
		return
	}
	if !sess.EndEarly(strings.TrimSpace(req.Notes)) {
		respondJSONError(w, http.StatusConflict, "Conflict", "focus session already ended")
		return
	}
	respondJSON(w, http.StatusOK, statusOf(sess))
}
