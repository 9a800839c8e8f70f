// Package web exposes a small HTTP API over the snapshot store and the
// synthesis runner. The synthesis core never depends on this layer.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"daybrief/internal/config"
	appLog "daybrief/internal/log"
	"daybrief/internal/store"
	"daybrief/internal/synth"
)

type Server struct {
	cfg    *config.Config
	st     *store.Store
	runner *synth.Runner
	mux    *http.ServeMux
}

func NewServer(cfg *config.Config, st *store.Store, runner *synth.Runner) *Server {
	s := &Server{
		cfg:    cfg,
		st:     st,
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server, wrapped with basic
// auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/snapshots", s.handleSnapshotHistory)
	s.mux.HandleFunc("POST /api/generate", s.handleGenerate)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSnapshot serves the single active snapshot, or 404 when no run
// has produced one yet.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.st.ActiveSnapshot(r.Context())
	if err != nil {
		appLog.Error("active snapshot read failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot read failed"})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot generated yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.st.ListSnapshots(r.Context(), 30)
	if err != nil {
		appLog.Error("snapshot history read failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history read failed"})
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleGenerate triggers a manual synthesis run, bypassing the daily
// guard. Bounded so a stuck feed cannot pin the request forever.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	snap, err := s.runner.RunOnce(ctx)
	if err != nil {
		appLog.Error("manual synthesis failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays open for liveness probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.BasicAuth.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.BasicAuth.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="daybrief"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("response encode failed", err)
	}
}
