package api

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/circuitbreaker"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
)

// HealthHandler serves liveness, readiness and service info
type HealthHandler struct {
	profile      options.Profile
	breakers     *circuitbreaker.Registry
	shuttingDown *atomic.Bool
}

// NewHealthHandler creates a new health handler. breakers may be nil.
func NewHealthHandler(profile options.Profile, breakers *circuitbreaker.Registry, shuttingDown *atomic.Bool) *HealthHandler {
	if shuttingDown == nil {
		shuttingDown = &atomic.Bool{}
	}
	return &HealthHandler{
		profile:      profile,
		breakers:     breakers,
		shuttingDown: shuttingDown,
	}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "QR Render Service",
		"version": "1.0.0",
		"status":  "running",
		"render":  "POST /render",
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "healthy"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.shuttingDown.Load() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:  "draining",
			Detail: "Server shutting down, not accepting new requests",
		})
	}
	return c.JSON(ReadyResponse{Status: "ready", FormatProfile: string(h.profile)})
}

// ImageHosts handles GET /debug/image-hosts
func (h *HealthHandler) ImageHosts(c *fiber.Ctx) error {
	if h.breakers == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(h.breakers.Statuses())
}
