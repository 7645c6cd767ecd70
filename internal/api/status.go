// Package api implements the operational status HTTP server: health,
// checkpoint state, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/pkg/metrics"
)

// CheckpointStatus is the JSON body served at /api/v1/checkpoint.
type CheckpointStatus struct {
	// Present is true once at least one slice has been durably committed.
	Present bool `json:"present"`

	// NumSlices is the record store slice count in storage.
	NumSlices int `json:"num_slices"`

	// EpochID is the latest committed epoch; meaningful only when Present.
	EpochID uint64 `json:"epoch_id"`

	// NextEpochID is the epoch the pipeline resumes at.
	NextEpochID uint64 `json:"next_epoch_id"`

	// Records is the current record store size.
	Records uint64 `json:"records"`

	// QueueDepth is the pending command count in the upload queue.
	QueueDepth int `json:"queue_depth"`
}

// StatusProvider supplies the current checkpoint status. The engine wires
// this to its factory and latest descriptor.
type StatusProvider interface {
	Status() CheckpointStatus
}

// StatusProviderFunc adapts a function to StatusProvider.
type StatusProviderFunc func() CheckpointStatus

func (f StatusProviderFunc) Status() CheckpointStatus { return f() }

// Config configures the status server.
type Config struct {
	// Listen is the address to bind, e.g. "127.0.0.1:9090".
	Listen string

	// Metrics exposes /metrics when true.
	Metrics bool
}

// Server is the status HTTP server.
type Server struct {
	cfg      Config
	provider StatusProvider
	srv      *http.Server
}

// NewServer creates a status server around the given provider.
func NewServer(cfg Config, provider StatusProvider) *Server {
	s := &Server{cfg: cfg, provider: provider}
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the chi router serving the status endpoints.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/checkpoint", s.handleCheckpoint)
	})
	if s.cfg.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	return r
}

// Start serves until Shutdown. It blocks, so run it in its own goroutine.
func (s *Server) Start() error {
	logger.Info("Starting status server", "listen", s.cfg.Listen)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider.Status()); err != nil {
		logger.Error("Failed to encode checkpoint status", logger.KeyError, err)
	}
}
