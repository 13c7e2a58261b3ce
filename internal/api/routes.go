// Package api exposes the QR render service over HTTP.
package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/logging"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/metrics"
)

const requestIDKey = "requestid"

// Handlers holds all API handlers
type Handlers struct {
	Render *RenderHandler
	Health *HealthHandler
}

// AppConfig holds the Fiber settings the service cares about
type AppConfig struct {
	BodyLimit int
	// AccessLog enables one log line per request
	AccessLog bool
}

// NewApp creates the Fiber app with middleware and routes registered
func NewApp(cfg AppConfig, handlers *Handlers, m *metrics.Metrics, log hclog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "QR Render Service",
		ServerHeader:          "qr-render",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
	})

	// metrics wraps recover so recovered panics are observed as 500s
	if m != nil {
		app.Use(m.Middleware())
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}
	app.Use(recover.New(recover.Config{EnableStackTrace: true, StackTraceHandler: stackTraceHandler(log)}))
	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "${locals:requestid} ${status} ${method} ${path} ${latency}\n",
			TimeFormat: time.RFC3339,
			Output:     logging.AccessWriter(log.Named("access")),
		}))
	}

	RegisterRoutes(app, handlers)
	return app
}

// RegisterRoutes registers all API routes
func RegisterRoutes(app *fiber.App, handlers *Handlers) {
	app.Get("/", handlers.Health.Root)
	app.Get("/health", handlers.Health.Health)
	app.Get("/ready", handlers.Health.Ready)
	app.Get("/debug/image-hosts", handlers.Health.ImageHosts)

	app.Post("/render", handlers.Render.Render)
}

// ErrorHandler maps errors escaping handlers to JSON responses. Anything
// that is not a *fiber.Error, recovered panics included, is reported as a
// render failure since rendering is the only operation that can fail.
func ErrorHandler(log hclog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
		}
		log.Error("request failed", "request_id", requestID(c), "path", c.Path(), "error", err)
		return renderFailed(c, err)
	}
}

func stackTraceHandler(log hclog.Logger) func(*fiber.Ctx, interface{}) {
	return func(c *fiber.Ctx, e interface{}) {
		log.Error("panic recovered", "request_id", requestID(c), "panic", fmt.Sprint(e))
	}
}
