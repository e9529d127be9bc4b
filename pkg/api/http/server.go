// Package http exposes the orchestrator over a thin JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnloop/ecosync/internal/orchestrator"
	"github.com/learnloop/ecosync/internal/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP API server.
type Server struct {
	router    *gin.Engine
	server    *http.Server
	manager   *orchestrator.Manager
	states    ports.StateStore
	decisions *orchestrator.DecisionLog
	logger    *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Port      int
	Manager   *orchestrator.Manager
	States    ports.StateStore
	Decisions *orchestrator.DecisionLog
	Logger    *zap.Logger
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:    router,
		manager:   cfg.Manager,
		states:    cfg.States,
		decisions: cfg.Decisions,
		logger:    cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/orchestrations", s.handleSubmit)
		v1.GET("/orchestrations/:id", s.handleGetRun)
		v1.POST("/orchestrations/:id/cancel", s.handleCancelRun)
		v1.GET("/users/:id/ecosystem", s.handleGetEcosystem)
		v1.GET("/users/:id/decisions", s.handleListDecisions)
	}
}

// SetupWebSocket mounts the event streaming handler.
func (s *Server) SetupWebSocket(handler interface {
	HandleUserStream(*gin.Context)
}) {
	s.router.GET("/api/v1/users/:id/events", handler.HandleUserStream)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
