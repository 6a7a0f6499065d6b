package canvas

import (
	"context"
	"strings"
)

// RequestIDHeader is forwarded on every Canvas call so remote logs line up with ours.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID tags ctx with a request identifier. Blank ids leave ctx untouched.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the identifier set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
