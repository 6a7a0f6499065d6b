package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// API exposes the typed Canvas endpoints consumed by the sync engine.
type API struct {
	fetcher   Fetcher
	paginator *Paginator
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAPI wraps a fetcher with typed endpoint helpers.
func NewAPI(fetcher Fetcher, paginator *Paginator, validate *validator.Validate, logger zerolog.Logger) *API {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if paginator == nil {
		paginator = NewPaginator(fetcher, DefaultPageSize, DefaultMaxPages, logger)
	}

	return &API{
		fetcher:   fetcher,
		paginator: paginator,
		validator: validate,
		logger:    logger.With().Str("component", "canvas_api").Logger(),
	}
}

// ListCourses returns every course visible to the current user.
func (a *API) ListCourses(ctx context.Context) ([]Course, error) {
	query := url.Values{}
	query.Add("include[]", "enrollments")
	query.Add("include[]", "term")

	courses, err := FetchAll[Course](ctx, a.paginator, "api/v1/courses", query)
	if err != nil {
		return nil, err
	}
	return keepValid(a, "course", courses), nil
}

// GetCourse fetches a single course.
func (a *API) GetCourse(ctx context.Context, id string) (Course, error) {
	query := url.Values{}
	query.Add("include[]", "enrollments")
	query.Add("include[]", "term")

	var course Course
	if err := a.getJSON(ctx, "api/v1/courses/"+url.PathEscape(id), query, &course); err != nil {
		return Course{}, err
	}
	return course, nil
}

// ListAssignments returns all assignments of a course.
func (a *API) ListAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	path := fmt.Sprintf("api/v1/courses/%s/assignments", url.PathEscape(courseID))
	assignments, err := FetchAll[Assignment](ctx, a.paginator, path, nil)
	if err != nil {
		return nil, err
	}
	return keepValid(a, "assignment", assignments), nil
}

// GetOwnSubmission fetches the current user's submission. A 404 means "not submitted" and is
// reported as found=false with a nil error.
func (a *API) GetOwnSubmission(ctx context.Context, courseID, assignmentID string) (Submission, bool, error) {
	path := fmt.Sprintf("api/v1/courses/%s/assignments/%s/submissions/self", url.PathEscape(courseID), url.PathEscape(assignmentID))

	var submission Submission
	if err := a.getJSON(ctx, path, nil, &submission); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Submission{}, false, nil
		}
		return Submission{}, false, err
	}

	if err := a.validator.Struct(submission); err != nil {
		a.logger.Debug().Str("course_id", courseID).Str("assignment_id", assignmentID).Msg("submission without id treated as not submitted")
		return Submission{}, false, nil
	}
	return submission, true, nil
}

// ListDiscussions returns the discussion topics of a course.
func (a *API) ListDiscussions(ctx context.Context, courseID string) ([]Discussion, error) {
	path := fmt.Sprintf("api/v1/courses/%s/discussion_topics", url.PathEscape(courseID))
	discussions, err := FetchAll[Discussion](ctx, a.paginator, path, nil)
	if err != nil {
		return nil, err
	}
	return keepValid(a, "discussion", discussions), nil
}

// GetCurrentUser fetches the authenticated user's profile; it doubles as token validation.
func (a *API) GetCurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := a.getJSON(ctx, "api/v1/users/self", nil, &user); err != nil {
		return User{}, err
	}
	if err := a.validator.Struct(user); err != nil {
		return User{}, newAPIError(ErrDecoding, http.StatusOK, "api/v1/users/self", err)
	}
	return user, nil
}

func (a *API) getJSON(ctx context.Context, path string, query url.Values, target interface{}) error {
	body, status, err := a.fetcher.Fetch(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return newAPIError(ErrDecoding, status, path, err)
	}
	return nil
}

func keepValid[T any](a *API, kind string, items []T) []T {
	valid := items[:0]
	for _, item := range items {
		if err := a.validator.Struct(item); err != nil {
			a.logger.Warn().Err(err).Str("kind", kind).Msg("dropping remote record that failed validation")
			continue
		}
		valid = append(valid, item)
	}
	return valid
}
