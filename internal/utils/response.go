package utils

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// CacheStatusHeader reports whether a cached payload is fresh or stale.
	CacheStatusHeader = "X-Cache-Status"

	cacheFresh = "fresh"
	cacheStale = "stale"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

// SendSuccess sends a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success envelope with the provided status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return send(c, status, true, message, data)
}

// SendCached sends a cache read. Last-Modified carries syncedAt; it is omitted for collections that
// were never synced, which are always reported stale.
func SendCached(c *fiber.Ctx, message string, syncedAt *time.Time, stale bool, data interface{}) error {
	if syncedAt != nil {
		c.Set(fiber.HeaderLastModified, syncedAt.UTC().Format(http.TimeFormat))
	}
	if stale || syncedAt == nil {
		c.Set(CacheStatusHeader, cacheStale)
	} else {
		c.Set(CacheStatusHeader, cacheFresh)
	}
	return SendSuccess(c, message, data)
}

// SendError sends a failure envelope without data.
func SendError(c *fiber.Ctx, status int, message string) error {
	return send(c, status, false, message, nil)
}

func send(c *fiber.Ctx, status int, success bool, message string, data interface{}) error {
	if message == "" {
		message = "success"
		if !success {
			message = "error"
		}
	}

	return c.Status(status).JSON(APIResponse{
		Success: success,
		Data:    data,
		Message: message,
	})
}
