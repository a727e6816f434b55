package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fifoq/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	queueHandler  *QueueHandler
	healthHandler *HealthHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config        *config.ServerConfig
	Logger        *slog.Logger
	QueueHandler  *QueueHandler
	HealthHandler *HealthHandler

	// AccessLog enables per-request logging.
	AccessLog bool
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           deps.Config.ReadTimeout,
		IdleTimeout:           deps.Config.IdleTimeout,
		BodyLimit:             deps.Config.BodyLimit,
		ErrorHandler:          customErrorHandler,

		// Must exceed the longest dequeue wait.
		WriteTimeout: deps.Config.WriteTimeout,

		// Queue names end up in metric labels and events that outlive
		// the request, so values must not alias fasthttp's buffers.
		Immutable: true,
	})

	s := &Server{
		app:           app,
		config:        deps.Config,
		logger:        deps.Logger,
		queueHandler:  deps.QueueHandler,
		healthHandler: deps.HealthHandler,
	}

	s.registerMiddleware(deps.AccessLog)
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware(accessLog bool) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	if accessLog {
		s.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${locals:requestid} | ${error}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}
}

// registerRoutes sets up all API routes. Fixed paths are registered
// before the queue routes so they take precedence over queue names.
func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.healthHandler.Check)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	s.app.Get("/queues", s.queueHandler.List)

	q := s.app.Group("/:queue")

	q.Post("/messages/bulk", s.queueHandler.BulkEnqueue)
	q.Get("/messages/peek", s.queueHandler.Peek)
	q.Get("/messages", s.queueHandler.Dequeue)
	q.Delete("/messages", s.queueHandler.Purge)
	q.Get("/stats", s.queueHandler.Stats)
	q.Get("/info", s.queueHandler.Info)

	q.Post("", s.queueHandler.Enqueue)
	q.Get("", s.queueHandler.Get)
	q.Put("", s.queueHandler.Create)
	q.Delete("", s.queueHandler.Delete)
}

// App exposes the underlying Fiber app, mainly for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers and middleware.
func customErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := ErrCodeInternalError
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = ErrCodeNotFound
		case fe.Code < fiber.StatusInternalServerError:
			code = ErrCodeBadRequest
		}
		return Error(c, fe.Code, code, fe.Message)
	}

	return FromError(c, err)
}
