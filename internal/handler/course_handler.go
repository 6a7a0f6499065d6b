package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canvas-sync/internal/service"
	"github.com/noah-isme/canvas-sync/internal/utils"
)

// CacheHandler serves cached Canvas data. It never blocks on Canvas.
type CacheHandler struct {
	service   service.CacheQueryService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewCacheHandler constructs a handler instance.
func NewCacheHandler(service service.CacheQueryService, validator *validator.Validate, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "cache_handler").Logger(),
	}
}

// Register binds the read routes.
func (h *CacheHandler) Register(router fiber.Router) {
	router.Get("/courses", h.listCourses)
	router.Get("/courses/:id", h.getCourse)
	router.Get("/courses/:id/assignments", h.listAssignments)
	router.Get("/courses/:id/grades", h.listGrades)
	router.Get("/courses/:id/discussions", h.listDiscussions)
	router.Get("/profile", h.profile)
	router.Get("/statistics", h.statistics)
}

func (h *CacheHandler) listCourses(c *fiber.Ctx) error {
	resp, err := h.service.ListCourses(requestContext(c))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendCached(c, "courses", resp.SyncedAt, resp.Stale, resp)
}

func (h *CacheHandler) getCourse(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	resp, err := h.service.GetCourse(requestContext(c), courseID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendCached(c, "course", resp.SyncedAt, resp.Stale, resp)
}

func (h *CacheHandler) listAssignments(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	resp, err := h.service.ListAssignments(requestContext(c), courseID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendCached(c, "assignments", resp.SyncedAt, resp.Stale, resp)
}

func (h *CacheHandler) listGrades(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	resp, err := h.service.ListGrades(requestContext(c), courseID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendCached(c, "grades", resp.SyncedAt, resp.Stale, resp)
}

func (h *CacheHandler) listDiscussions(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	resp, err := h.service.ListDiscussions(requestContext(c), courseID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendCached(c, "discussions", resp.SyncedAt, resp.Stale, resp)
}

func (h *CacheHandler) profile(c *fiber.Ctx) error {
	resp, err := h.service.CurrentUser(requestContext(c))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendCached(c, "user profile", resp.SyncedAt, resp.Stale, resp)
}

func (h *CacheHandler) statistics(c *fiber.Ctx) error {
	resp, err := h.service.Statistics(requestContext(c))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SendSuccess(c, "statistics", resp)
}

func (h *CacheHandler) fail(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(h.logger, c).Error().Err(err).Str("path", c.Path()).Msg("cache read failed")
	}
	return utils.SendError(c, status, err.Error())
}
