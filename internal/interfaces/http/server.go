// Package http exposes the lifecycle engine and its read side over HTTP.
// It only translates requests into application calls and errors into status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/vendor-lifecycle/internal/application/service"
	"github.com/garyjia/vendor-lifecycle/internal/application/workflow"
)

const (
	// ActorHeader carries the identity authenticated upstream
	ActorHeader = "X-Actor-ID"
	// RequestIDHeader is echoed back and used as the transition correlation id
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records request and refusal counters
type Metrics interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
	RecordRefusal(action, reason string)
}

// HealthFunc reports overall health and per-component details
type HealthFunc func() (healthy bool, components interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Services are the application entry points served over HTTP
type Services struct {
	Engine       workflow.Engine
	Registration service.RegistrationService
	Query        service.QueryService
	Export       service.ExportService
}

// ServerOption configures optional server collaborators
type ServerOption func(*Server)

// WithMetrics records request metrics and serves handler on /metrics
func WithMetrics(m Metrics, handler http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

// WithHealth sets the health reporter behind /health
func WithHealth(fn HealthFunc) ServerOption {
	return func(s *Server) {
		s.health = fn
	}
}

// Server is the HTTP server adapter
type Server struct {
	config         ServerConfig
	httpServer     *http.Server
	router         *gin.Engine
	services       Services
	metrics        Metrics
	metricsHandler http.Handler
	health         HealthFunc
	logger         Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger, opts ...ServerOption) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// requestIDMiddleware keeps an incoming request id or assigns a new one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware writes one access line per request and records request metrics
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)

		if s.metrics != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.ObserveHTTP(method, route, status, latency)
		}
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.metrics, s.logger)

	s.router.GET("/health", s.healthCheck)
	if s.metricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	api := s.router.Group("/api/v1")
	{
		rfqs := api.Group("/rfqs")
		rfqs.POST("", handlers.Register)
		rfqs.GET("/:reference_id", handlers.GetRFQ)
		rfqs.GET("/:reference_id/history", handlers.RFQHistory)
		rfqs.PUT("/:reference_id/counterparty", handlers.UpdateCounterparty)
		rfqs.POST("/:reference_id/comments", handlers.AddComment)
		rfqs.POST("/:reference_id/actions/:action", handlers.RFQAction)

		// vendor codes contain slashes, so they travel in the query or body
		vendors := api.Group("/vendors")
		vendors.GET("", handlers.ListVendors)
		vendors.GET("/lookup", handlers.GetVendor)
		vendors.GET("/history", handlers.VendorHistory)
		vendors.GET("/export", handlers.ExportVendors)
		vendors.POST("/actions/:action", handlers.VendorAction)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	healthy, components := true, interface{}(nil)
	if s.health != nil {
		healthy, components = s.health()
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	c.JSON(status, Response{
		Success: healthy,
		Data: HealthResponse{
			Status:     state,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Components: components,
		},
	})
}

// Start starts the HTTP server and blocks until ctx is cancelled or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
