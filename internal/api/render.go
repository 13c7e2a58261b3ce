package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/metrics"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/render"
)

// ErrCodeRenderFailed is reported for every failed render
const ErrCodeRenderFailed = "render_failed"

// RenderHandler handles POST /render
type RenderHandler struct {
	normalizer *options.Normalizer
	engine     render.Engine
	metrics    *metrics.Metrics
	logger     hclog.Logger
}

// NewRenderHandler creates a new render handler
func NewRenderHandler(normalizer *options.Normalizer, engine render.Engine, m *metrics.Metrics, logger hclog.Logger) *RenderHandler {
	return &RenderHandler{
		normalizer: normalizer,
		engine:     engine,
		metrics:    m,
		logger:     logger,
	}
}

// Render normalizes the body, renders it and replies inline or as binary
func (h *RenderHandler) Render(c *fiber.Ctx) error {
	env := h.normalizer.Parse(c.Body())
	cfg := env.Config

	start := time.Now()
	out, err := h.engine.Render(c.Context(), cfg)
	if h.metrics != nil {
		h.metrics.ObserveRender(cfg.Type, err, time.Since(start))
	}
	if err != nil {
		h.logger.Error("render failed",
			"request_id", requestID(c),
			"format", cfg.Type,
			"as_base64", env.AsBase64,
			"error", err,
		)
		return renderFailed(c, err)
	}

	if env.AsBase64 {
		return c.JSON(RenderResponse{
			Format: render.Extension(cfg.Type),
			Base64: render.DataURL(cfg.Type, out),
		})
	}

	c.Set(fiber.HeaderContentType, render.ContentType(cfg.Type))
	if env.Download {
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="qr.`+render.Extension(cfg.Type)+`"`)
	}
	return c.Send(out)
}

func renderFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:  ErrCodeRenderFailed,
		Detail: err.Error(),
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}
