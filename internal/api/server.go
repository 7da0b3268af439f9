package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playbookd/sourcekit/internal/api/handlers"
	"github.com/playbookd/sourcekit/internal/api/middleware"
	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/sources"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// Server is the HTTP surface the playbook engine calls to execute tasks
// and inspect connectors.
type Server struct {
	config     *config.Config
	logger     logger.Logger
	registry   *sources.Registry
	connectors *config.ConnectorStore
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	registry *sources.Registry,
	connectors *config.ConnectorStore,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:     cfg,
		logger:     log,
		registry:   registry,
		connectors: connectors,
		router:     gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.MetricsMiddleware())
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.registry)
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.GET("/health", healthHandler.HealthCheck)
	v1.GET("/sources", healthHandler.Sources)

	executeHandler := handlers.NewExecuteHandler(s.registry, s.connectors, s.logger)
	v1.POST("/execute", executeHandler.Execute)

	connectorsHandler := handlers.NewConnectorsHandler(s.registry, s.connectors, s.logger)
	v1.GET("/connectors", connectorsHandler.List)
	v1.POST("/connectors/:name/test", connectorsHandler.Test)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sourcekit API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the underlying Gin engine so tests can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
