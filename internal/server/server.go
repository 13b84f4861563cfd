// Package server provides the HTTP API for kyujin.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/analytics"
	"github.com/hyperjump/kyujin/internal/config"
	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/search"
)

// Searcher runs searches for the HTTP handlers.
type Searcher interface {
	Search(ctx context.Context, c models.SearchCriteria) (*search.Response, error)
	Sources() []search.SourceInfo
	DefaultSources() []string
}

// Server is the HTTP server for the kyujin API.
type Server struct {
	searcher Searcher
	metrics  http.Handler
	history  analytics.Reader
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHistory serves recorded search metrics on /api/v1/searches.
func WithHistory(r analytics.Reader) Option {
	return func(s *Server) { s.history = r }
}

// NewServer creates a server with the given dependencies.
func NewServer(searcher Searcher, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		searcher: searcher,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Post("/search", s.handleSearch)
	r.Get("/search", s.handleSearchDocs)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/sources", s.handleSources)
		r.Get("/searches", s.handleSearchHistory)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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
