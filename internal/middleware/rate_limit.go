package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/canvas-sync/internal/utils"
)

// RateLimit creates a per-caller rate limiter. Callers are keyed by token subject, or by IP when
// authentication is disabled. A nil storage keeps counters in process memory.
func RateLimit(identifier string, max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller, _ := c.Locals("user_id").(string)
			if caller == "" {
				caller = c.IP()
			}
			return fmt.Sprintf("%s:%s", identifier, caller)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many sync requests, try again later")
		},
	})
}
