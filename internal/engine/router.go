package engine

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api")

	api.Get("/", h.Index)
	api.Post("/upload", h.Upload)
	api.Get("/upload/get", h.ListUploads)
	api.Post("/extract-rules", h.ExtractRules)
	api.Get("/rules", h.ListRules)
	api.Post("/validate", h.Compile)
	api.Post("/data/validate", h.ValidateData)
	api.Get("/flagged", h.ListFlagged)
	api.Get("/flagged/summary", h.FlaggedSummary)
	api.Post("/flagged/:id/status", h.SetFlaggedStatus)
	api.Post("/remediation/generate", h.GenerateRemediation)
}
