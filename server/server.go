// Package server exposes the dispatcher, notification store, and live hub
// over HTTP and WebSocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gigboard/dispatch/dispatch"
	"github.com/gigboard/dispatch/errors"
	"github.com/gigboard/dispatch/live"
	"github.com/gigboard/dispatch/notify"
)

// Server is the HTTP/WebSocket front of the dispatch process.
type Server struct {
	httpServer    *http.Server
	dispatcher    *dispatch.Dispatcher
	notifications *notify.Store
	hub           *live.Hub
	upgrader      websocket.Upgrader
	logger        *zap.SugaredLogger
}

// Config holds the server's listen address and allowed WebSocket origins.
// An empty origin list permits all origins, for local development.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// New creates a Server with its routes mounted.
func New(cfg Config, d *dispatch.Dispatcher, notifications *notify.Store, hub *live.Hub, logger *zap.SugaredLogger) *Server {
	s := &Server{
		dispatcher:    d,
		notifications: notifications,
		hub:           hub,
		logger:        logger.Named("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleEnqueue)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleJobStatus)
		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications/{id}/read", s.handleMarkRead)
	})
	r.Get("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// ListenAndServe serves until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "http server failed")
}

// Shutdown drains in-flight requests and closes all live channels.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	s.logger.Infow("HTTP server stopped")
	return nil
}

// requestLogger logs each request with its duration and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debugw("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}
