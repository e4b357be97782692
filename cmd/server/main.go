// Server exposes the gRPC health service for the session store and resolves x-session-id
// metadata on every other RPC. Set DATABASE_URL, and REDIS_ADDR when SESSION_BACKEND=redis.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"lms-sessions/internal/app"
	"lms-sessions/internal/config"
	"lms-sessions/internal/health/handler"
	"lms-sessions/internal/logger"
	"lms-sessions/internal/server"
	"lms-sessions/internal/telemetry"
)

const healthInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("listen failed", "addr", cfg.GRPCAddr, "error", err)
		_ = a.Close(context.Background())
		os.Exit(1)
	}

	hs := health.NewServer()
	deps := server.Deps{
		Health:     hs,
		Sessions:   a.Manager,
		Killer:     a.Manager,
		Logger:     log,
		Reflection: cfg.Env != "production",
	}
	s := grpc.NewServer(server.ServerOptions(deps)...)
	server.RegisterServices(s, deps)

	checker := handler.NewChecker(hs, a.Infra.Pinger(), a.Policy, log)
	go checker.Run(ctx, healthInterval)

	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Error("serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gRPC server")
	s.GracefulStop()

	// Let in-flight session events reach the exporter before the providers shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
	log.Info("gRPC server stopped")
}
