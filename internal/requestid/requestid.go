// Package requestid provides request ID propagation via context.
package requestid

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header carries the request id on HTTP requests and responses.
const Header = "X-Request-ID"

// maxLen bounds ids accepted from clients.
const maxLen = 128

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New generates a new request ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// Accept reuses a client supplied id when it is usable and generates one otherwise.
func Accept(ctx context.Context, id string) (context.Context, string) {
	if id == "" || len(id) > maxLen {
		return New(ctx)
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return New(ctx)
		}
	}
	return WithRequestID(ctx, id), id
}

// Logger returns logger tagged with the request id of ctx, if any.
func Logger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return logger.With().Str("request_id", id).Logger()
	}
	return logger
}
