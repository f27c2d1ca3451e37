// Package server provides the HTTP API for torikomi's serve mode.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/torikomi/internal/config"
	"github.com/hyperjump/torikomi/internal/models"
	"github.com/hyperjump/torikomi/internal/state"
)

// RunTrigger starts one pipeline run. Satisfied by *pipeline.Pipeline.
type RunTrigger interface {
	RunOnce(ctx context.Context) (*models.RunSummary, []models.JobRecord, error)
}

// Server is the HTTP server for the torikomi API.
type Server struct {
	trigger RunTrigger
	states  *state.Store
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	mu      sync.Mutex
	running bool
	last    *models.RunSummary
}

// NewServer creates a server with the given dependencies.
func NewServer(trigger RunTrigger, states *state.Store, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		trigger: trigger,
		states:  states,
		config:  cfg,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/runs", s.handleRun)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// beginRun marks a run as in progress. It fails when one is already running:
// runs are serialized because they share the state file.
func (s *Server) beginRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Server) endRun(summary *models.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if summary != nil {
		s.last = summary
	}
}

func (s *Server) snapshot() (last *models.RunSummary, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.running
}
