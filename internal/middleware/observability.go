package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canvas-sync/internal/observability"
)

// streamRoutes hold the connection open for the lifetime of the subscriber, so their duration says
// nothing about latency.
var streamRoutes = map[string]struct{}{
	"/api/v1/sync/events": {},
	"/api/v1/sync/ws":     {},
}

// Observability records request metrics for API routes and emits one structured log line per request.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if !strings.HasPrefix(c.Path(), "/api/") {
			return err
		}

		duration := time.Since(start)
		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(method, route, statusLabel).Inc()
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		event := logger.Debug()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status)

		if _, streaming := streamRoutes[route]; streaming {
			event.Msg("stream opened")
			return err
		}

		observability.APILatency().WithLabelValues(method, route).Observe(duration.Seconds())
		event.
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(duration)).
			Msg("request completed")

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 25*time.Millisecond:
		return "<=25ms"
	case duration <= 100*time.Millisecond:
		return "<=100ms"
	case duration <= 250*time.Millisecond:
		return "<=250ms"
	case duration <= time.Second:
		return "<=1s"
	default:
		return ">1s"
	}
}
