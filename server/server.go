// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sweetpotato0/travel-router/audit"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/runner"
	"github.com/sweetpotato0/travel-router/thread"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 120 * time.Second

// Deps are the services behind the endpoints.
type Deps struct {
	Runner  runner.Runner
	Audit   *audit.Recorder
	Threads *thread.Manager
	// Rebuild reindexes the policy corpus and returns the number of chunks indexed.
	Rebuild func(ctx context.Context) (int, error)
}

type Server struct {
	Router  *chi.Mux
	Port    int
	deps    Deps
	logger  *slog.Logger
	timeout time.Duration
	http    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(port int, deps Deps, opts ...Option) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		Port:    port,
		deps:    deps,
		logger:  logging.WithComponent("server"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := s.Router
	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(TimeoutMiddleware(s.timeout))
	r.Use(RecoverMiddleware(s.logger))

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "travel-router")
	})

	r.Get("/health", s.handleHealth)
	r.Post("/query", s.handleQuery)
	r.Post("/feedback", s.handleFeedback)
	r.Post("/index/build", s.handleIndexBuild)
	r.Get("/threads/{id}", s.handleGetThread)
	r.Delete("/threads/{id}", s.handleDeleteThread)
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.Int("port", s.Port))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return s.http.Shutdown(shutdownCtx)
	}
}
