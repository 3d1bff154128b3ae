// Package http exposes loaded models over an HTTP/JSON inference API.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ekisa-team/rkbackend/internal/service"
)

// Server serves the HTTP API and the model event stream.
type Server struct {
	srv    *http.Server
	api    huma.API
	events *Broadcaster
	logger *slog.Logger
}

// New creates a Server listening on addr. Model status events published
// to events are streamed on /v2/events.
func New(addr, version string, manager *service.Manager, inference *service.Inference, events *Broadcaster, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("RKNN Inference API", version))

	NewModelsHandler(api, manager, inference)
	NewInferHandler(api, manager, inference)
	mux.HandleFunc("GET /v2/events", events.HandleWS)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           logRequests(mux, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		api:    api,
		events: events,
		logger: logger,
	}
}

// API returns the registered API.
func (s *Server) API() huma.API {
	return s.api
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disconnects event clients and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Close()
	return s.srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
