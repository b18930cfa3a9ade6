// Package server provides the HTTP API, the live update WebSocket and the
// preview stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/emocall/internal/server/api"
	"github.com/ayusman/emocall/internal/store"
)

// Config holds the server configuration. Routes whose dependency is nil are
// not registered.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Settings   api.SettingApplier
	Controller api.Controller
	Hub        *Hub
	Frames     *FrameTap
}

// Server represents the HTTP server of the analyser.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time

	mu      sync.Mutex
	httpSrv *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Controller != nil {
		control := api.NewControlHandler(s.config.Controller)
		s.mux.Handle("/api/status", control)
		s.mux.Handle("/api/analysis", control)
		s.mux.Handle("/api/orientation", control)
	}

	if s.config.Store != nil {
		settings := api.NewSettingsHandler(s.config.Store, s.config.Settings)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/updates", s.config.Hub)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown gracefully stops a server started with ListenAndServe.
// Long-lived stream and WebSocket connections are closed by ctx expiry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return srv.Close()
	}
	return nil
}
