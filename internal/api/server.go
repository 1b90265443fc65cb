package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/metrics"
	"github.com/JakeFAU/catalog-alerts/internal/queue/memory"
)

// Submitter requests a new poll cycle.
type Submitter interface {
	Submit(ctx context.Context) (alert.Cycle, error)
}

// ReadyFunc reports whether downstream dependencies are usable.
type ReadyFunc func(ctx context.Context) error

// Options configures the Server.
type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	Ready          ReadyFunc
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router    chi.Router
	cycles    alert.CycleStore
	submitter Submitter
	ready     ReadyFunc
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. cache may be nil,
// in which case the label routes are not mounted.
func NewServer(
	cycles alert.CycleStore,
	submitter Submitter,
	cache alert.LinkCacheStore,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		cycles:    cycles,
		submitter: submitter,
		ready:     opts.Ready,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/cycles", func(r chi.Router) {
			r.Post("/", s.submitCycle)
			r.Get("/{cycle_id}", s.getCycle)
		})
		if cache != nil {
			labels := NewCacheHandler(cache, logger)
			r.Get("/labels", labels.ListLabels)
			r.Get("/labels/{label}/links", labels.ListLinks)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.submitter.Submit(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, memory.ErrFull):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		s.logger.Warn("cycle submission failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"cycle_id": cycle.ID,
		"status":   string(cycle.Status),
	})
}

func (s *Server) getCycle(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "cycle_id")
	if err := uuid.Validate(cycleID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cycle_id")
		return
	}
	cycle, err := s.cycles.GetCycle(r.Context(), cycleID)
	if err != nil {
		if errors.Is(err, alert.ErrCycleNotFound) {
			writeError(w, http.StatusNotFound, "cycle not found")
			return
		}
		s.logger.Error("get cycle failed", zap.String("cycle_id", cycleID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cycle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycle": cycle})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
