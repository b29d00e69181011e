// Package web serves the worker's operational surface: health, readiness,
// metrics and the job admin API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"document-intelligence/internal/infra/metrics"
	"document-intelligence/internal/usecase"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Server struct {
	jobs     usecase.EnqueueUseCase
	auth     *AuthManager
	checks   map[string]Check
	validate *validator.Validate
	timeout  time.Duration
	log      *zerolog.Logger
}

// NewServer wires the routes. A nil auth manager leaves the job API unmounted.
func NewServer(jobs usecase.EnqueueUseCase, auth *AuthManager, checks map[string]Check, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		jobs:     jobs,
		auth:     auth,
		checks:   checks,
		validate: validator.New(),
		timeout:  30 * time.Second,
		log:      &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, Recover(s.log), RequestLog(s.log), Timeout(s.timeout))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if s.auth != nil && s.jobs != nil {
		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Use(s.auth.Require)
			r.Post("/ingest", s.enqueueIngest)
			r.Post("/explain", s.enqueueExplain)
			r.Get("/{id}", s.getJob)
		})
	}
	return r
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
