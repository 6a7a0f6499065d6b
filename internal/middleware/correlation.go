package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/canvas-sync/pkg/canvas"
)

const correlationLocal = "correlation_id"

// CorrelationID tags every request with an identifier. The same id is forwarded to Canvas by any
// sync the request triggers.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get("X-Correlation-ID"))
		if id == "" {
			id = strings.TrimSpace(c.Get(canvas.RequestIDHeader))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set("X-Correlation-ID", id)
		c.SetUserContext(canvas.WithRequestID(c.UserContext(), id))

		return c.Next()
	}
}

// CorrelationIDFromContext extracts the identifier bound by CorrelationID.
func CorrelationIDFromContext(ctx context.Context) string {
	return canvas.RequestIDFromContext(ctx)
}

// GetCorrelationID returns the identifier of the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}
