package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/api/handlers"
	"github.com/eshaffer321/bankrecon/internal/api/middleware"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
)

// Config holds API server configuration.
type Config struct {
	Port                int
	AllowedOrigins      []string
	MaxUploadMB         int
	UploadRatePerMinute int // 0 disables the upload limit
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:                8080,
		AllowedOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
		MaxUploadMB:         10,
		UploadRatePerMinute: 30,
	}
}

// ConfigFromApp copies the server section of the application config.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		Port:                cfg.Server.Port,
		AllowedOrigins:      cfg.Server.AllowedOrigins,
		MaxUploadMB:         cfg.Server.MaxUploadMB,
		UploadRatePerMinute: cfg.Server.UploadRatePerMinute,
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	svc        *reconcile.Service
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc *reconcile.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		config: cfg,
		router: gin.New(),
		logger: logger.With(logging.ComponentKey, "api"),
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic serving request", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.InternalError())
	}))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger, "/health"))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.GET("/health", healthHandler.Get)

	api := s.router.Group("/api")

	// Statements
	statementsHandler := handlers.NewStatementsHandler(s.svc, s.logger, s.config.MaxUploadMB)
	api.POST("/statements", middleware.RateLimit(s.config.UploadRatePerMinute), statementsHandler.Upload)
	api.GET("/statements", statementsHandler.List)
	api.GET("/statements/:id", statementsHandler.Get)

	// Reconciliation
	reconcileHandler := handlers.NewReconcileHandler(s.svc, s.logger)
	api.POST("/statements/:id/reconcile", reconcileHandler.Run)
	api.GET("/statements/:id/suggestions", reconcileHandler.Suggestions)
	api.POST("/bank-transactions/:id/confirm", reconcileHandler.Confirm)
	api.POST("/bank-transactions/:id/ignore", reconcileHandler.Ignore)

	// Ledger
	ledgerHandler := handlers.NewLedgerHandler(s.svc, s.logger)
	api.POST("/ledger", ledgerHandler.Add)
	api.GET("/ledger", ledgerHandler.List)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NotFoundError("route"))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
