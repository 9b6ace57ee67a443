package server

import (
	"context"
	"time"

	"mailcal/internal/config"
	"mailcal/internal/database"
	"mailcal/internal/handlers"
	"mailcal/internal/ics"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server represents the application server. Each service mounts only the
// routes for the collaborators it was given; nil collaborators are skipped.
type Server struct {
	echo      *echo.Echo
	db        *sqlx.DB
	config    *config.Config
	logger    zerolog.Logger
	builder   *ics.Builder
	schedules *database.ScheduleService
	inbox     handlers.InboxChecker
	sender    handlers.Sender
}

// Option wires an optional collaborator into the server
type Option func(*Server)

// WithArtifacts mounts the calendar artifact management routes
func WithArtifacts(builder *ics.Builder) Option {
	return func(s *Server) { s.builder = builder }
}

// WithSchedules mounts the schedule inspection route
func WithSchedules(schedules *database.ScheduleService) Option {
	return func(s *Server) { s.schedules = schedules }
}

// WithInbox mounts the manual inbox check route
func WithInbox(checker handlers.InboxChecker) Option {
	return func(s *Server) { s.inbox = checker }
}

// WithSender mounts the manual artifact dispatch route. It has no effect
// without WithArtifacts.
func WithSender(sender handlers.Sender) Option {
	return func(s *Server) { s.sender = sender }
}

// New creates a new server instance
func New(cfg *config.Config, db *sqlx.DB, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		db:     db,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	api.GET("/", handlers.RootHandler(s.config.Version))

	if s.builder != nil {
		api.POST("/artifacts", handlers.CreateArtifactHandler(s.builder))
		api.GET("/artifacts/lookup", handlers.LookupArtifactHandler(s.builder))
		api.GET("/artifacts/:id", handlers.GetArtifactHandler(s.builder))
		api.PATCH("/artifacts/:id", handlers.UpdateArtifactHandler(s.builder))
		api.DELETE("/artifacts/:id", handlers.DeleteArtifactHandler(s.builder))
		api.GET("/artifacts/:id/download", handlers.DownloadArtifactHandler(s.builder))

		if s.sender != nil {
			api.POST("/artifacts/:id/send", handlers.SendArtifactHandler(s.builder, s.sender))
		}
	}

	if s.schedules != nil {
		api.GET("/schedules/:id", handlers.GetScheduleHandler(s.schedules))
	}

	if s.inbox != nil {
		api.POST("/inbox/check", handlers.CheckInboxHandler(s.inbox))
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
