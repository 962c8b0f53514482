// Package requestid carries the per-request correlation id through contexts
// and across service boundaries via the X-Request-ID header.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header used for request id propagation.
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a fresh request id.
func New() string {
	return uuid.NewString()
}

// WithContext returns a child context carrying id.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request id carried by ctx, or "" when absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
