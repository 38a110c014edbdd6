package instrument

import (
	"math"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// EventHandler exposes the buffered events over REST.
type EventHandler struct {
	buffer *EventBuffer
}

// NewEventHandler creates an EventHandler backed by the given buffer.
func NewEventHandler(buffer *EventBuffer) *EventHandler {
	return &EventHandler{buffer: buffer}
}

// List handles GET /api/events with optional trace_id, source, action,
// status and limit filters.
func (h *EventHandler) List(c *fiber.Ctx) error {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "limit must be a positive integer"}})
		}
		limit = n
	}
	traceID, source, action, status := c.Query("trace_id"), c.Query("source"), c.Query("action"), c.Query("status")

	events := h.buffer.Recent(limit, func(e Event) bool {
		return (traceID == "" || e.TraceID == traceID) &&
			(source == "" || e.Source == source) &&
			(action == "" || e.Action == action) &&
			(status == "" || e.Status == status)
	})
	return c.JSON(fiber.Map{"data": events})
}

// ActionStats summarises system spans for one source/component/action.
type ActionStats struct {
	Source    string  `json:"source"`
	Component string  `json:"component"`
	Action    string  `json:"action"`
	Count     int     `json:"count"`
	Errors    int     `json:"errors"`
	AvgMs     float64 `json:"avg_ms"`
	P95Ms     float64 `json:"p95_ms"`
}

// Stats handles GET /api/events/stats.
func (h *EventHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": Summarize(h.buffer.Recent(0, nil))})
}

// Summarize groups system events by source, component and action.
func Summarize(events []Event) []ActionStats {
	type key struct{ source, component, action string }
	durations := make(map[key][]float64)
	errs := make(map[key]int)
	for _, e := range events {
		if e.EventType != "system" {
			continue
		}
		k := key{e.Source, e.Component, e.Action}
		durations[k] = append(durations[k], e.DurationMs)
		if e.Status == "error" {
			errs[k]++
		}
	}

	out := make([]ActionStats, 0, len(durations))
	for k, ds := range durations {
		sort.Float64s(ds)
		sum := 0.0
		for _, d := range ds {
			sum += d
		}
		p95 := ds[int(math.Ceil(0.95*float64(len(ds))))-1]
		out = append(out, ActionStats{
			Source:    k.source,
			Component: k.component,
			Action:    k.action,
			Count:     len(ds),
			Errors:    errs[k],
			AvgMs:     math.Round(sum/float64(len(ds))*100) / 100,
			P95Ms:     p95,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// RegisterRoutes mounts the event endpoints.
func RegisterRoutes(app *fiber.App, h *EventHandler) {
	app.Get("/api/events", h.List)
	app.Get("/api/events/stats", h.Stats)
}
