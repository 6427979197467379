package handler

import (
	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports liveness and which configuration keys are missing.
type HealthHandler struct {
	provider string
	model    string
	missing  []string
}

func NewHealthHandler(provider, model string, missing []string) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		model:    model,
		missing:  missing,
	}
}

func (h *HealthHandler) Register(r fiber.Router) {
	r.Get("/health", h.health)
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":   "ok",
		"provider": h.provider,
		"model":    h.model,
		"config":   h.checkConfig(),
	}

	return c.JSON(status)
}

func (h *HealthHandler) checkConfig() fiber.Map {
	if len(h.missing) == 0 {
		return fiber.Map{"status": "configured"}
	}
	return fiber.Map{"status": "incomplete", "missing": h.missing}
}
