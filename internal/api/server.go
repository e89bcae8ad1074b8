// Package api exposes the detector control surface over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scarecrow/internal/auth"
	"scarecrow/internal/database"
	"scarecrow/internal/detector"
	"scarecrow/internal/middleware"
	"scarecrow/internal/video"
)

// Server routes control API requests to the detector and the event log.
type Server struct {
	ctrl      *detector.Controller
	db        *database.Database
	authn     *auth.Authenticator
	logger    *log.Logger
	wsHandler http.Handler
}

// NewServer creates the API server. db and wsHandler may be nil, which
// disables the event log endpoints and the WebSocket feed respectively.
func NewServer(ctrl *detector.Controller, db *database.Database, authn *auth.Authenticator, wsHandler http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		ctrl:      ctrl,
		db:        db,
		authn:     authn,
		logger:    logger,
		wsHandler: wsHandler,
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness and readiness do not require auth.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/detector/status", s.handleStatus)
	protected.HandleFunc("POST /api/v1/detector/start", s.handleStart)
	protected.HandleFunc("POST /api/v1/detector/stop", s.handleStop)
	protected.HandleFunc("POST /api/v1/detector/pause", s.handlePause)
	protected.HandleFunc("POST /api/v1/detector/resume", s.handleResume)
	protected.HandleFunc("GET /api/v1/detector/params", s.handleGetParams)
	protected.HandleFunc("PUT /api/v1/detector/params", s.handleSetParams)
	protected.HandleFunc("GET /api/v1/detector/stats", s.handleStats)
	protected.HandleFunc("POST /api/v1/detector/stats/reset", s.handleResetStats)
	protected.HandleFunc("GET /api/v1/events", s.handleListEvents)
	protected.HandleFunc("GET /api/v1/events/{id}", s.handleGetEvent)
	if s.wsHandler != nil {
		protected.Handle("GET /ws", s.wsHandler)
	}

	authed := middleware.AuthMiddleware(s.authn)(protected)
	mux.Handle("/api/v1/", authed)
	mux.Handle("/ws", authed)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the detector is monitoring with a warm
// background model, or simply idle and waiting for orders.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status()
	ready := st.State == detector.StateIdle || st.WarmedUp
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ready": ready,
		"state": st.State,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.authn.Authenticate(req.Username, req.Password)
	if err != nil {
		switch err {
		case auth.ErrAuthDisabled:
			writeError(w, http.StatusBadRequest, "authentication is disabled")
		case auth.ErrInvalidCredentials:
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := s.ctrl.Start(req.URL); err != nil {
		s.writeDetectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		s.writeDetectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Pause(); err != nil {
		s.writeDetectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Resume(); err != nil {
		s.writeDetectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Params())
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var params detector.Parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ctrl.SetParams(params); err != nil {
		s.writeDetectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Params())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ResetStats()
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, "event log not configured")
		return
	}

	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = &t
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.db.ListEvents(since, limit)
	if err != nil {
		s.logger.Printf("[API] list events: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if records == nil {
		records = []*database.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, "event log not configured")
		return
	}
	rec, err := s.db.GetEvent(r.PathValue("id"))
	if err != nil {
		s.logger.Printf("[API] get event: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeDetectorError maps detector errors onto HTTP status codes.
func (s *Server) writeDetectorError(w http.ResponseWriter, err error) {
	switch {
	case detector.IsInvalidParameter(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case detector.IsInvalidStateTransition(err):
		writeError(w, http.StatusConflict, err.Error())
	case video.IsConnectionError(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Printf("[API] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
