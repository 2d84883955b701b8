package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/OccDeser/uniclip/internal/telemetry"
	"github.com/OccDeser/uniclip/pkg/history"
	"github.com/OccDeser/uniclip/pkg/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIServer is the local control API a UI process talks to
type APIServer struct {
	// Configuration
	config *APIConfig

	// Router
	router *gin.Engine

	// Services
	services *APIServices

	// Server instance
	server   *http.Server
	listener net.Listener

	// Logger
	logger *zap.Logger
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	// Browser origins allowed to call the API. Empty allows none.
	AllowedOrigins []string      `yaml:"allowed_origins"`
	EnableMetrics  bool          `yaml:"enable_metrics"`
}

// APIServices represents the services used by the API
type APIServices struct {
	NodeService    NodeService
	HistoryService HistoryService
}

// Service interfaces
type NodeService interface {
	GetNodeInfo() types.NodeInfo
	GetPeers() []types.Endpoint
	Discover(ctx context.Context) (int, error)
	Broadcast(ctx context.Context, data []byte) (types.BroadcastReport, error)
}

type HistoryService interface {
	Append(data []byte)
	Entries() []history.Entry
	Latest() ([]byte, error)
}

// Option customizes an APIServer
type Option func(*APIServer)

// WithLogger sets the server's logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *APIServer) {
		s.logger = logger
	}
}

// NewAPIServer creates a new API server
func NewAPIServer(config *APIConfig, services *APIServices, opts ...Option) (*APIServer, error) {
	if config == nil {
		config = DefaultAPIConfig()
	}
	if services == nil || services.NodeService == nil || services.HistoryService == nil {
		return nil, fmt.Errorf("api server needs node and history services")
	}

	// Create Gin router
	router := gin.New()
	router.HandleMethodNotAllowed = true

	// Create server
	server := &APIServer{
		config:   config,
		router:   router,
		services: services,
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.logger == nil {
		server.logger, _ = zap.NewProduction()
	}

	// Initialize routes
	server.initializeRoutes()

	return server, nil
}

// Start binds the listen address and serves in the background
func (s *APIServer) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = listener

	// Configure HTTP server
	s.server = &http.Server{
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("Starting API server",
		zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the API server
func (s *APIServer) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Addr returns the bound address once the server has started
func (s *APIServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Initialize routes
func (s *APIServer) initializeRoutes() {
	// Add middleware
	s.router.Use(recoveryMiddleware(s.logger))
	s.router.Use(corsMiddleware(s.config.AllowedOrigins))
	s.router.Use(loggerMiddleware(s.logger))
	s.router.Use(metricsMiddleware())

	s.router.GET("/health", s.handleHealthCheck)

	// API version group
	v1 := s.router.Group("/api/v1")
	{
		// Node endpoints
		node := v1.Group("/node")
		{
			node.GET("/info", s.handleGetNodeInfo)
			node.GET("/peers", s.handleGetPeers)
			node.POST("/discover", s.handleDiscover)
		}

		// Clipboard endpoints
		clipboard := v1.Group("/clipboard")
		{
			clipboard.GET("", s.handleGetClipboard)
			clipboard.GET("/latest", s.handleGetLatestClipboard)
			clipboard.POST("", s.handleBroadcastClipboard)
		}
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	}
}

// GetRouter returns the Gin router instance
func (s *APIServer) GetRouter() *gin.Engine {
	return s.router
}

// Default configuration
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		EnableMetrics:  true,
	}
}

// API error response
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// API success response
type APIResponse struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// Helper function for error responses
func errorResponse(c *gin.Context, status int, err error) {
	c.JSON(status, APIError{
		Code:    status,
		Message: err.Error(),
	})
}

// Helper function for success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Data: data,
	})
}
