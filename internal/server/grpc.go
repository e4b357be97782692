package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"lms-sessions/internal/server/interceptors"
	sessionhandler "lms-sessions/internal/session/handler"
)

// HealthCheckMethod is the full method name of the standard health check RPC.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds optional service dependencies for the gRPC server.
type Deps struct {
	// Health is the standard health server updated by the readiness checker. If nil, a fresh
	// server reporting SERVING is registered.
	Health *health.Server
	// Sessions resolves x-session-id metadata into a session context. If nil, calls carry no session.
	Sessions interceptors.SessionResolver
	// Killer backs SessionService.Logout. If nil, Logout returns Unimplemented.
	Killer sessionhandler.Killer
	// Logger receives one line per RPC. If nil, slog.Default is used.
	Logger *slog.Logger
	// Reflection registers the reflection service. Set only outside production.
	Reflection bool
}

// skipMethods are not session-resolved or logged.
var skipMethods = map[string]bool{
	HealthCheckMethod:              true,
	"/grpc.health.v1.Health/Watch": true,
}

// ServerOptions returns the stats handler and interceptor chain for grpc.NewServer.
// The session interceptor runs outermost so the logging interceptor sees the resolved session.
func ServerOptions(deps Deps) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.SessionUnary(deps.Sessions, deps.Logger, skipMethods),
			interceptors.LoggingUnary(deps.Logger, skipMethods),
		),
	}
}

// RegisterServices registers the health service, SessionService and, when enabled, reflection.
//
//   - grpc.health.v1.Health          → internal/health/handler (Checker publishes status)
//   - lms.sessions.v1.SessionService → internal/session/handler
func RegisterServices(s reflection.GRPCServer, deps Deps) {
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
	sessionhandler.RegisterSessionServiceServer(s, sessionhandler.NewServer(deps.Killer))
	if deps.Reflection {
		reflection.Register(s)
	}
}
