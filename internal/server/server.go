// Package server exposes the optional debug endpoints of a publish
// run: Prometheus metrics and a health probe.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the debug endpoints while a publish run is active.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates the server and mounts its routes.
func New() *Server {
	s := &Server{router: chi.NewMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestLogger)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
}

// Handler returns the root handler. Tests serve it directly.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("Debug listener started", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
