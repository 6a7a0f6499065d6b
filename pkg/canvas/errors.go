package canvas

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable covers transport failures and request timeouts.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrUnauthorized maps HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden maps HTTP 403.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound maps HTTP 404.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited maps HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrServerError maps HTTP 5xx.
	ErrServerError = errors.New("server error")
	// ErrUnknownStatus maps every other non-2xx status.
	ErrUnknownStatus = errors.New("unknown error")
	// ErrPaginationOverrun is returned when a collection never produces a terminating page.
	ErrPaginationOverrun = errors.New("pagination overrun")
	// ErrDecoding indicates the response body could not be decoded.
	ErrDecoding = errors.New("decoding error")
	// ErrMissingCredentials indicates the auth collaborator has no base URL or token.
	ErrMissingCredentials = errors.New("canvas credentials not configured")
)

// APIError carries the taxonomy kind together with request details.
type APIError struct {
	Kind       error
	StatusCode int
	Path       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.StatusCode)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newAPIError(kind error, status int, path string, cause error) *APIError {
	return &APIError{Kind: kind, StatusCode: status, Path: path, Err: cause}
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// KindOf returns a short label for the taxonomy kind of err, used for metrics and status payloads.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetworkUnavailable):
		return "network_unavailable"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServerError):
		return "server_error"
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_error"
	case errors.Is(err, ErrPaginationOverrun):
		return "pagination_overrun"
	case errors.Is(err, ErrDecoding):
		return "decoding_error"
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// IsRetryable reports whether a failed call may succeed when repeated.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError)
}
