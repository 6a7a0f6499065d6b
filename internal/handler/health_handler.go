package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/canvas-sync/internal/config"
	"github.com/noah-isme/canvas-sync/internal/service"
	"github.com/noah-isme/canvas-sync/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status         string     `json:"status"`
	Timestamp      time.Time  `json:"timestamp"`
	Service        string     `json:"service"`
	Environment    string     `json:"environment"`
	CanvasBaseURL  string     `json:"canvas_base_url"`
	Syncing        bool       `json:"syncing"`
	LastFullSyncAt *time.Time `json:"last_full_sync_at"`
}

// HealthCheck returns a handler that reports application health information. syncer may be nil.
func HealthCheck(cfg config.Config, syncer service.SyncService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:        "ok",
			Timestamp:     time.Now().UTC(),
			Service:       cfg.AppName,
			Environment:   cfg.AppEnv,
			CanvasBaseURL: cfg.CanvasBaseURL,
		}
		if syncer != nil {
			status := syncer.Status()
			payload.Syncing = status.IsSyncing
			payload.LastFullSyncAt = status.LastFullSyncAt
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
