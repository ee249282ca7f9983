package session

import (
	"context"

	"dreampuff/internal/domain"
)

type contextKey string

const infoContextKey contextKey = "session_info"

// WithInfo returns a copy of ctx carrying the active session info
func WithInfo(ctx context.Context, info domain.SessionInfo) context.Context {
	return context.WithValue(ctx, infoContextKey, info)
}

// InfoFromContext returns the session info injected by the session gate
func InfoFromContext(ctx context.Context) (domain.SessionInfo, bool) {
	info, ok := ctx.Value(infoContextKey).(domain.SessionInfo)
	return info, ok
}
