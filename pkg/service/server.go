package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/config"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/observability"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/service/middleware"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
)

// Server is the HTTP front end over the query engine.
type Server struct {
	cfg        *config.Config
	handler    *Handler
	log        *observability.Logger
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer wires the routes and middleware chain.
func NewServer(cfg *config.Config, s store.Store, log *observability.Logger,
	metrics *observability.Metrics, timers *observability.Timers) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	srv := &Server{
		cfg:     cfg,
		handler: NewHandler(s, cfg.Store, cfg.Search, log, metrics, timers),
		log:     log,
		mux:     http.NewServeMux(),
	}
	srv.setupRoutes()

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.withMiddleware(srv.mux),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}
	return srv, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/query", s.handler.Query)
	s.mux.HandleFunc("POST /v1/build", s.handler.Build)
	s.mux.HandleFunc("GET /v1/health", s.handler.HealthCheck)
	s.mux.HandleFunc("GET /v1/stats", s.handler.Stats)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerSec: s.cfg.RateLimit.RequestsPerSec,
		Burst:          s.cfg.RateLimit.Burst,
	})
	auth := middleware.AuthMiddleware(middleware.AuthConfig{
		Enabled:     s.cfg.Auth.Enabled,
		JWTSecret:   s.cfg.Auth.JWTSecret,
		PublicPaths: []string{"/v1/health", "/metrics"},
	})

	// Outermost first: request id, then auth, then rate limiting.
	return middleware.RequestIDMiddleware(auth(middleware.RateLimitMiddleware(limiter)(next)))
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server listening", map[string]interface{}{"addr": s.cfg.Server.Address()})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("service: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
