package instrument

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Middleware returns a Fiber middleware that sets up tracing for each request.
// It generates (or propagates) a trace ID, creates a root HTTP span, and injects
// the instrumenter into the request context for downstream handlers.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get or generate trace ID from incoming header
		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := WithTraceID(c.UserContext(), traceID)
		ctx = WithInstrumenter(ctx, inst)

		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		// The error handler has not run yet, so an error means a failed request
		// even when the status code is still 200.
		statusCode := c.Response().StatusCode()
		span.SetMetadata("status_code", statusCode)
		if err != nil {
			span.SetError(err)
		} else if statusCode >= 400 {
			span.SetStatus("error")
		}
		span.End()

		return err
	}
}
