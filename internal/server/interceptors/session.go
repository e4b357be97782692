package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"lms-sessions/internal/session/domain"
)

// SessionHeader is the metadata key carrying the session id in both directions.
const SessionHeader = "x-session-id"

// SessionResolver resolves the sid a caller presents into a session context.
// *service.Manager implements it.
type SessionResolver interface {
	Resume(ctx context.Context, sid, remoteAddr string) (*domain.SessionContext, error)
}

// SessionUnary returns a unary server interceptor that resolves the caller's session from the
// x-session-id metadata, touches it when live, and stores the result with WithSessionContext.
// The resolved sid is echoed back as a response header so clients can adopt a fresh one.
// skipMethods is the set of full method names that bypass session handling (e.g. health checks).
func SessionUnary(resolver SessionResolver, logger *slog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if resolver == nil || skipMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		sc, err := resolver.Resume(ctx, incomingSID(ctx), ClientIP(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "resolve session failed", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unavailable, "session store unavailable")
		}
		if err := grpc.SetHeader(ctx, metadata.Pairs(SessionHeader, sc.SID)); err != nil {
			logger.DebugContext(ctx, "set session header failed", "error", err)
		}
		return handler(WithSessionContext(ctx, sc), req)
	}
}

func incomingSID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(SessionHeader); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
