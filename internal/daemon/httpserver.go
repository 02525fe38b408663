package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/sidebar/internal/observability"
	"github.com/rs/zerolog"
)

// StatusSource is what the status server reports on.
type StatusSource interface {
	Status() Status
}

// HTTPServer exposes metrics and health endpoints.
type HTTPServer struct {
	addr   string
	source StatusSource
	logger zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer creates a status server listening on addr.
func NewHTTPServer(addr string, d *Daemon) *HTTPServer {
	return newHTTPServer(addr, d, d.logger.Component("http"))
}

func newHTTPServer(addr string, source StatusSource, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		addr:   addr,
		source: source,
		logger: logger,
	}
}

// Routes builds the HTTP handler.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", observability.MetricsHandler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)

	return r
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.source.Status()
	code := http.StatusOK
	state := "ok"
	if !status.Running {
		code = http.StatusServiceUnavailable
		state = "stopped"
	}
	writeJSON(w, code, map[string]string{"status": state})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.source.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":         status.Running,
		"uptime_seconds":  int64(status.Uptime.Seconds()),
		"active_sessions": status.ActiveSessions,
		"strategy":        status.Strategy,
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("status server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Status server error")
		}
	}(s.server)

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down.
func (s *HTTPServer) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown status server: %w", err)
	}
	return nil
}
