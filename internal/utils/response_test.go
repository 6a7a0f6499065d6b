package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canvas-sync/internal/utils"
)

func TestSendSuccessDefaultsMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "", map[string]string{"course": "101"})
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
	}
	decode(t, resp, &payload)

	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "101", payload.Data["course"])
}

func TestSendSuccessWithStatusKeepsStatus(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "sync started", nil)
	})

	resp := performRequest(t, app, http.MethodPost, "/")
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var payload map[string]interface{}
	decode(t, resp, &payload)

	require.Equal(t, true, payload["success"])
	require.Equal(t, "sync started", payload["message"])
	require.NotContains(t, payload, "data")
}

func TestSendErrorOmitsData(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusConflict, "")
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var payload map[string]interface{}
	decode(t, resp, &payload)

	require.Equal(t, false, payload["success"])
	require.Equal(t, "error", payload["message"])
	require.NotContains(t, payload, "data")
}

func TestSendCachedSetsFreshnessHeaders(t *testing.T) {
	syncedAt := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	app := fiber.New()
	app.Get("/fresh", func(c *fiber.Ctx) error {
		return utils.SendCached(c, "courses", &syncedAt, false, []string{"101"})
	})
	app.Get("/never", func(c *fiber.Ctx) error {
		return utils.SendCached(c, "courses", nil, false, []string{})
	})

	resp := performRequest(t, app, http.MethodGet, "/fresh")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "fresh", resp.Header.Get(utils.CacheStatusHeader))
	require.Equal(t, "Mon, 02 Sep 2024 08:00:00 GMT", resp.Header.Get("Last-Modified"))

	resp = performRequest(t, app, http.MethodGet, "/never")
	require.Equal(t, "stale", resp.Header.Get(utils.CacheStatusHeader))
	require.Empty(t, resp.Header.Get("Last-Modified"))
}

func performRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
