package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/latoulicious/Hibiki/pkg/logging"
)

// SessionCounter reports how many voice sessions are active
type SessionCounter interface {
	ActiveSessions() int
}

// Server exposes health and metrics over HTTP
type Server struct {
	sessions  SessionCounter
	metrics   http.Handler
	logger    logging.Logger
	startedAt time.Time
	srv       *http.Server
}

// NewServer creates a status server. metrics may be nil.
func NewServer(addr string, sessions SessionCounter, metrics http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NullLogger()
	}
	s := &Server{
		sessions:  sessions,
		metrics:   metrics,
		logger:    logger.With(logging.String("component", "status_server")),
		startedAt: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveSessions(),
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
	})
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Status server listening", logging.String("addr", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", logging.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
