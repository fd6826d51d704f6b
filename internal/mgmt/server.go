package mgmt

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/santa-bot/internal/health"
	"github.com/p-blackswan/santa-bot/internal/metrics"
	"github.com/p-blackswan/santa-bot/internal/requestid"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins []string
}

// Server is the management API Fiber application.
type Server struct {
	app     *fiber.App
	limiter *rateLimiter
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures a new management API server. runner and
// metricsCollector may be nil.
func NewServer(
	cfg ServerConfig,
	sessions Sessions,
	runner Runner,
	checker *health.Checker,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "mgmt_server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(cfg, metricsCollector)
	s.setupRoutes(NewHandlers(sessions, runner, checker, logger), metricsCollector)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, metricsCollector *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		ctx, reqID := requestid.Accept(c.UserContext(), c.Get(requestid.Header))
		c.SetUserContext(ctx)
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if metricsCollector != nil {
		s.app.Use(func(c *fiber.Ctx) error {
			err := c.Next()
			code := c.Response().StatusCode()
			if err != nil {
				code = fiber.StatusInternalServerError
				var fe *fiber.Error
				if errors.As(err, &fe) {
					code = fe.Code
				}
			}
			metricsCollector.HTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(code))
			return err
		})
	}

	if len(cfg.CORSOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit)
		s.app.Use(s.limiter.middleware())
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, s.logger))

	// Audit every request except probes.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		log := requestid.Logger(c.UserContext(), s.logger)
		log.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Msg("mgmt api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, metricsCollector *metrics.Metrics) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if metricsCollector != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metricsCollector.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/sessions", h.ListSessions)
	v1.Get("/sessions/:room", h.GetSession)
	v1.Delete("/sessions/:room", requireRole(RoleOperator), h.CancelSession)
	v1.Post("/sessions/:room/migrate", requireRole(RoleOperator), h.MigrateSession)

	v1.Get("/stats", h.Stats)
}

// Start starts the server in the background and stops it when ctx is done.
// It blocks until the listener returns.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	if s.limiter != nil {
		go s.limiter.cleanup(ctx)
	}
	go func() {
		<-ctx.Done()
		if err := s.Shutdown(); err != nil {
			s.logger.Error().Err(err).Msg("management API shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errType, title := "internal_error", "Internal Server Error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			errType, title = "request_error", fe.Message
		}

		log := requestid.Logger(c.UserContext(), logger)
		log.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     errType,
			Title:    title,
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
