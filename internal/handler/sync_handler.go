package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canvas-sync/internal/dto"
	"github.com/noah-isme/canvas-sync/internal/service"
	"github.com/noah-isme/canvas-sync/internal/utils"
)

// SyncHandler exposes sync control and the live status streams.
type SyncHandler struct {
	service   service.SyncService
	validator *validator.Validate
	logger    zerolog.Logger
	keepAlive time.Duration
	limiter   fiber.Handler
	timeout   time.Duration
}

// NewSyncHandler constructs a handler. limiter guards the routes that start remote work; nil disables it.
func NewSyncHandler(service service.SyncService, validator *validator.Validate, logger zerolog.Logger, keepAlive time.Duration, limiter fiber.Handler) *SyncHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	return &SyncHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "sync_handler").Logger(),
		keepAlive: keepAlive,
		limiter:   limiter,
		timeout:   30 * time.Minute,
	}
}

// Register binds the sync routes.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/sync", h.limiter, h.syncAll)
	router.Post("/sync/if-needed", h.limiter, h.syncIfNeeded)
	router.Post("/sync/courses", h.limiter, h.syncCourses)
	router.Post("/sync/courses/:id/assignments", h.limiter, h.syncAssignments)
	router.Post("/sync/courses/:id/grades", h.limiter, h.syncGrades)
	router.Post("/sync/courses/:id/discussions", h.limiter, h.syncDiscussions)
	router.Post("/sync/profile", h.limiter, h.syncProfile)
	router.Post("/sync/conflicts", h.limiter, h.resolveConflicts)

	router.Get("/sync/status", h.status)
	router.Delete("/sync/error", h.clearError)
	router.Delete("/cache", h.clearCache)

	router.Get("/sync/events", h.events)
	router.Use("/sync/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/sync/ws", websocket.New(h.handleConnection))
}

func (h *SyncHandler) syncAll(c *fiber.Ctx) error {
	req := dto.SyncRequest{Wait: true}
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid wait flag")
	}

	if !req.Wait {
		if h.service.Status().IsSyncing {
			return h.fail(c, service.ErrSyncInProgress)
		}

		ctx := context.WithoutCancel(requestContext(c))
		go func() {
			ctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			if err := h.service.SyncAll(ctx); err != nil && !errors.Is(err, service.ErrSyncInProgress) {
				h.logger.Warn().Err(err).Msg("background sync failed")
			}
		}()

		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "sync started", dto.SyncResult{
			Triggered: true,
			Status:    h.service.Status(),
		})
	}

	if err := h.service.SyncAll(requestContext(c)); err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "sync completed", dto.SyncResult{Triggered: true, Status: h.service.Status()})
}

func (h *SyncHandler) syncIfNeeded(c *fiber.Ctx) error {
	triggered, err := h.service.SyncIfNeeded(requestContext(c))
	if err != nil {
		return h.fail(c, err)
	}

	message := "cache is fresh"
	if triggered {
		message = "sync completed"
	}
	return utils.SendSuccess(c, message, dto.SyncResult{Triggered: triggered, Status: h.service.Status()})
}

func (h *SyncHandler) syncCourses(c *fiber.Ctx) error {
	return h.partial(c, "courses synced", h.service.SyncCourses)
}

func (h *SyncHandler) syncProfile(c *fiber.Ctx) error {
	return h.partial(c, "user profile synced", h.service.SyncUserProfile)
}

func (h *SyncHandler) resolveConflicts(c *fiber.Ctx) error {
	return h.partial(c, "conflicts resolved", h.service.ResolveConflicts)
}

func (h *SyncHandler) syncAssignments(c *fiber.Ctx) error {
	return h.partialForCourse(c, "assignments synced", h.service.SyncAssignments)
}

func (h *SyncHandler) syncGrades(c *fiber.Ctx) error {
	return h.partialForCourse(c, "grades synced", h.service.SyncGrades)
}

func (h *SyncHandler) syncDiscussions(c *fiber.Ctx) error {
	return h.partialForCourse(c, "discussions synced", h.service.SyncDiscussions)
}

func (h *SyncHandler) partial(c *fiber.Ctx, message string, fn func(context.Context) error) error {
	if err := fn(requestContext(c)); err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, message, dto.SyncResult{Triggered: true, Status: h.service.Status()})
}

func (h *SyncHandler) partialForCourse(c *fiber.Ctx, message string, fn func(context.Context, string) error) error {
	courseID, err := courseIDParam(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}
	return h.partial(c, message, func(ctx context.Context) error {
		return fn(ctx, courseID)
	})
}

func (h *SyncHandler) status(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "sync status", h.service.Status())
}

func (h *SyncHandler) clearError(c *fiber.Ctx) error {
	h.service.ClearError()
	return utils.SendSuccess(c, "sync error cleared", h.service.Status())
}

func (h *SyncHandler) clearCache(c *fiber.Ctx) error {
	if err := h.service.ClearCache(requestContext(c)); err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "cache cleared", h.service.Status())
}

func (h *SyncHandler) fail(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	logger := requestLogger(h.logger, c)
	if status >= fiber.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Path()).Msg("sync request failed")
	} else {
		logger.Warn().Err(err).Str("path", c.Path()).Msg("sync request rejected")
	}
	return utils.SendError(c, status, err.Error())
}

func (h *SyncHandler) events(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	stream, cleanup := h.service.Subscribe()
	snapshot := h.snapshot()
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		if err := writeSyncEvent(w, snapshot); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				if err := writeSyncEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write sync event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write sync keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

// handleConnection streams status events as JSON frames. Inbound frames are ignored; reading only
// detects the client going away.
func (h *SyncHandler) handleConnection(conn *websocket.Conn) {
	stream, cleanup := h.service.Subscribe()
	defer cleanup()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Msg("sync websocket connected")
	defer h.logger.Debug().Msg("sync websocket disconnected")

	if err := conn.WriteJSON(h.snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *SyncHandler) snapshot() dto.SyncStatusEvent {
	return dto.SyncStatusEvent{
		Type:      dto.SyncEventSnapshot,
		Status:    h.service.Status(),
		EmittedAt: time.Now().UTC(),
	}
}

func writeSyncEvent(w *bufio.Writer, event dto.SyncStatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
