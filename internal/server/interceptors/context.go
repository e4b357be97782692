package interceptors

import (
	"context"

	"lms-sessions/internal/session/domain"
)

type contextKey struct{ name string }

var sessionContextKey = contextKey{"session_context"}

// WithSessionContext returns a context carrying sc. Handlers read it back with SessionContextFrom.
func WithSessionContext(ctx context.Context, sc *domain.SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey, sc)
}

// SessionContextFrom returns the session context set by SessionUnary and true if set; otherwise nil, false.
func SessionContextFrom(ctx context.Context) (*domain.SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey).(*domain.SessionContext)
	return sc, ok && sc != nil
}
