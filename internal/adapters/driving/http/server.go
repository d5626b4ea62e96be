package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
	"github.com/custodia-labs/xmlcat/internal/metrics"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	maxBody    int64
	logger     *slog.Logger

	catalog driving.CatalogService

	// Infrastructure
	db    Pinger // PostgreSQL health check
	queue Pinger // task queue health check (optional)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
	ExposeMetrics  bool // serve GET /metrics on this server
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxBodyBytes:   16 << 20,
		AllowedOrigins: []string{"*"},
		ExposeMetrics:  true,
	}
}

// NewServer creates a new HTTP server. m, db and queue may be nil.
func NewServer(
	cfg Config,
	catalog driving.CatalogService,
	m *metrics.Metrics,
	db Pinger,
	queue Pinger,
) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	s := &Server{
		router:  http.NewServeMux(),
		version: cfg.Version,
		maxBody: cfg.MaxBodyBytes,
		logger:  slog.Default().With("component", "http"),
		catalog: catalog,
		db:      db,
		queue:   queue,
	}

	s.setupRoutes()
	if m != nil && cfg.ExposeMetrics {
		s.router.Handle("GET /metrics", m.Handler())
	}

	var handler http.Handler = s.router
	handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	handler = NewLoggingMiddleware(m).Handler(handler)
	handler = NewRequestIDMiddleware().Handler(handler)
	handler = NewRecoveryMiddleware().Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Packages and resource types
	s.router.HandleFunc("POST /api/v1/packages", s.handleCreatePackage)
	s.router.HandleFunc("GET /api/v1/packages", s.handleListPackages)
	s.router.HandleFunc("DELETE /api/v1/packages/{pkg}", s.handleDeletePackage)
	s.router.HandleFunc("DELETE /api/v1/packages/{pkg}/indexes", s.handleDeleteAllIndexes)
	s.router.HandleFunc("POST /api/v1/packages/{pkg}/resourcetypes", s.handleCreateResourceType)
	s.router.HandleFunc("GET /api/v1/packages/{pkg}/resourcetypes", s.handleListResourceTypes)
	s.router.HandleFunc("DELETE /api/v1/packages/{pkg}/resourcetypes/{rt}", s.handleDeleteResourceType)

	// Resources
	s.router.HandleFunc("POST /api/v1/resources/{pkg}/{rt}", s.handleAddResource)
	s.router.HandleFunc("GET /api/v1/resources/{pkg}/{rt}", s.handleListResources)
	s.router.HandleFunc("GET /api/v1/resources/{pkg}/{rt}/{name}", s.handleGetResource)
	s.router.HandleFunc("PUT /api/v1/resources/{pkg}/{rt}/{name}", s.handleModifyResource)
	s.router.HandleFunc("DELETE /api/v1/resources/{pkg}/{rt}/{name}", s.handleDeleteResource)
	s.router.HandleFunc("POST /api/v1/resources/{pkg}/{rt}/{name}/rename", s.handleRenameResource)
	s.router.HandleFunc("GET /api/v1/resources/{pkg}/{rt}/{name}/history", s.handleResourceHistory)
	s.router.HandleFunc("GET /api/v1/resources/{pkg}/{rt}/{name}/index", s.handleGetIndexData)
	s.router.HandleFunc("POST /api/v1/resources/{pkg}/{rt}/{name}/index", s.handleIndexResource)

	// Indexes
	s.router.HandleFunc("POST /api/v1/indexes", s.handleRegisterIndex)
	s.router.HandleFunc("GET /api/v1/indexes", s.handleListIndexes)
	s.router.HandleFunc("POST /api/v1/indexes/reindex", s.handleReindex)
	s.router.HandleFunc("GET /api/v1/indexes/{id}", s.handleGetIndex)
	s.router.HandleFunc("DELETE /api/v1/indexes/{id}", s.handleRemoveIndex)
	s.router.HandleFunc("POST /api/v1/indexes/{id}/flush", s.handleFlushIndex)

	// Index views
	s.router.HandleFunc("POST /api/v1/views/{pkg}/{rt}", s.handleCreateView)
	s.router.HandleFunc("DELETE /api/v1/views/{pkg}/{rt}", s.handleDropView)

	// Queries
	s.router.HandleFunc("GET /api/v1/query", s.handleQuery)
	s.router.HandleFunc("POST /api/v1/query", s.handleQuery)

	// Background tasks
	s.router.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
}

// Handler returns the root handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
