package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canvas-sync/internal/middleware"
	"github.com/noah-isme/canvas-sync/internal/repository"
	"github.com/noah-isme/canvas-sync/internal/service"
	"github.com/noah-isme/canvas-sync/pkg/canvas"
)

type courseParams struct {
	ID string `validate:"required,max=64,printascii,excludesall=/?#"`
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return canvas.WithRequestID(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func courseIDParam(c *fiber.Ctx, validate *validator.Validate) (string, error) {
	params := courseParams{ID: strings.TrimSpace(c.Params("id"))}
	if err := validate.Struct(params); err != nil {
		return "", err
	}
	return params.ID, nil
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// statusForError maps service and Canvas failures onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case isValidationError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrSyncInProgress):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrCourseNotCached), errors.Is(err, service.ErrProfileNotCached):
		return fiber.StatusNotFound
	case errors.Is(err, repository.ErrInvalidRecord):
		return fiber.StatusBadRequest
	case errors.Is(err, repository.ErrLocalStore):
		return fiber.StatusInternalServerError
	case errors.Is(err, canvas.ErrUnauthorized), errors.Is(err, canvas.ErrMissingCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, canvas.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, canvas.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, canvas.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, canvas.ErrNetworkUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, canvas.ErrServerError), errors.Is(err, canvas.ErrUnknownStatus),
		errors.Is(err, canvas.ErrDecoding), errors.Is(err, canvas.ErrPaginationOverrun):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
