package ai

import (
	"github.com/gofiber/fiber/v2"

	"rulegen-backend/internal/config"
)

// Handler reports the inference backend status.
type Handler struct {
	cfg        config.LLMConfig
	configured bool
}

// NewHandler creates a new status handler.
func NewHandler(cfg config.LLMConfig, configured bool) *Handler {
	return &Handler{cfg: cfg, configured: configured}
}

// Status returns whether an LLM is configured and which one. The API key is
// never echoed.
func (h *Handler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"configured":          h.configured,
			"provider":            h.cfg.Provider,
			"model":               h.cfg.Model,
			"max_tokens":          h.cfg.MaxTokens,
			"temperature":         h.cfg.Temperature,
			"requests_per_minute": h.cfg.RequestsPerMinute,
		},
	})
}

// RegisterRoutes mounts the status endpoint.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/api/llm/status", h.Status)
}
