// Package server exposes the delegation engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/dispatch/config"
	"github.com/GoCodeAlone/dispatch/delegation"
	"github.com/GoCodeAlone/dispatch/eventlog"
	"github.com/GoCodeAlone/dispatch/skills"
)

// Server is the Dispatch HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	engine *delegation.Engine
	store  delegation.Store
	events eventlog.Logger
	skills *skills.Catalog

	// SSE clients
	sseMu      sync.RWMutex
	sseClients map[chan []byte]struct{}

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	routesOnce sync.Once

	startTime time.Time
	version   string

	unsubscribe func()
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		logger:     logger,
		sseClients: make(map[chan []byte]struct{}),
		startTime:  time.Now(),
		version:    ver,
	}
}

// SetEngine attaches the delegation engine.
func (s *Server) SetEngine(e *delegation.Engine) { s.engine = e }

// SetStore attaches the store used for read-only queries.
func (s *Server) SetStore(st delegation.Store) { s.store = st }

// SetEventLogger attaches the event log served at /api/events and streamed
// over SSE.
func (s *Server) SetEventLogger(l eventlog.Logger) { s.events = l }

// SetSkillCatalog attaches the optional skill catalog.
func (s *Server) SetSkillCatalog(c *skills.Catalog) { s.skills = c }

// Handler returns the fully routed HTTP handler. Start uses it implicitly;
// tests can serve it directly.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.registerRoutes)
	return s.mux
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.routesOnce.Do(s.registerRoutes)

	if s.events != nil {
		s.unsubscribe = s.events.Subscribe(eventlog.KindTaskDelegated, func(_ context.Context, ev *eventlog.Event) error {
			s.BroadcastEvent(string(ev.Kind), ev)
			return nil
		})
	}

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9070"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// SSE — auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API — wrapped in auth middleware
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// handleStatus reports server liveness without auth.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleSSE implements Server-Sent Events for real-time delegation events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Verify auth via query token param for SSE (EventSource can't set headers)
	token := r.URL.Query().Get("token")
	if token != "" {
		if _, err := s.verifyToken(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := make(chan []byte, 64)
	s.sseMu.Lock()
	s.sseClients[ch] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, ch)
		s.sseMu.Unlock()
		close(ch)
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			lines := strings.Split(string(data), "\n")
			for _, line := range lines {
				fmt.Fprintf(w, "data: %s\n", line) //nolint:errcheck
			}
			fmt.Fprintln(w) //nolint:errcheck
			flusher.Flush()
		}
	}
}

// BroadcastEvent sends a JSON-encoded event to all connected SSE clients.
func (s *Server) BroadcastEvent(eventType string, payload any) {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		s.logger.Error("broadcast event marshal", slog.Any("err", err))
		return
	}

	s.sseMu.RLock()
	defer s.sseMu.RUnlock()
	for ch := range s.sseClients {
		select {
		case ch <- data:
		default:
			// Client channel full, skip
		}
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
