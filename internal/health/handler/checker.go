// Package handler reports readiness through the standard gRPC health service.
package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "lms.sessions"

const checkTimeout = 2 * time.Second

// Pinger checks connectivity to the session store (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger (e.g. a Redis client's Ping).
type PingerFunc func(ctx context.Context) error

// PingContext calls f(ctx).
func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PolicyChecker checks that the timeout policy compiled (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker checks the store and the policy engine and publishes the result on a health.Server.
type Checker struct {
	srv    *health.Server
	pinger Pinger
	policy PolicyChecker
	logger *slog.Logger
}

// NewChecker returns a Checker publishing to srv. Nil pinger or policy skips that check.
func NewChecker(srv *health.Server, pinger Pinger, policy PolicyChecker, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{srv: srv, pinger: pinger, policy: policy, logger: logger}
}

// Check runs every check once, updates the health server and returns the published status.
// A failed check is logged and yields NOT_SERVING; it is never returned as an error.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			c.logger.WarnContext(ctx, "health: store ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			c.logger.WarnContext(ctx, "health: policy check failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	c.srv.SetServingStatus("", st)
	c.srv.SetServingStatus(ServiceName, st)
	return st
}

// Run checks immediately and then every interval until ctx is done, after which every
// service is marked NOT_SERVING.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}
