// Package server provides the HTTP API for proposal search.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/config"
	"github.com/sattyani/ai-procurement-agent/internal/indexer"
	"github.com/sattyani/ai-procurement-agent/internal/keyword"
	"github.com/sattyani/ai-procurement-agent/internal/metrics"
	"github.com/sattyani/ai-procurement-agent/internal/search"
)

// Server is the HTTP server for the proposal search API.
type Server struct {
	engine  *search.Engine
	index   *indexer.CompositeIndex
	keyword keyword.KeywordIndex
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets a logger for request errors.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithKeywordIndex enables ?q= lookups on GET /api/v1/proposals.
func WithKeywordIndex(k keyword.KeywordIndex) ServerOption {
	return func(s *Server) { s.keyword = k }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, idx *indexer.CompositeIndex, cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		engine: engine,
		index:  idx,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes with middleware applied.
func (s *Server) Router() http.Handler {
	timeout := time.Duration(s.config.Server.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(metrics.Middleware)

	r.Post("/api/v1/search", s.handleSearch)
	r.Route("/api/v1/proposals", func(r chi.Router) {
		r.Get("/", s.handleListProposals)
		r.Post("/", s.handleUpsertProposals)
		r.Get("/{id}", s.handleGetProposal)
		r.Delete("/{id}", s.handleDeleteProposal)
	})
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
