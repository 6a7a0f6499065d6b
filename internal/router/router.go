package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/canvas-sync/internal/config"
	"github.com/noah-isme/canvas-sync/internal/handler"
	"github.com/noah-isme/canvas-sync/internal/observability"
	"github.com/noah-isme/canvas-sync/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SyncHandler   *handler.SyncHandler
	CacheHandler  *handler.CacheHandler
	SyncService   service.SyncService
	JWTMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	var lastSync observability.LastSyncFunc
	if deps.SyncService != nil {
		lastSync = func() *time.Time { return deps.SyncService.Status().LastFullSyncAt }
	}
	app.Get("/metrics", observability.MetricsHandler(lastSync))

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.SyncService))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("", jwtMiddleware)

	if deps.SyncHandler != nil {
		deps.SyncHandler.Register(protected)
	}

	if deps.CacheHandler != nil {
		deps.CacheHandler.Register(protected)
	}
}
