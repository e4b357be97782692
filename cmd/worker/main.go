// Worker sweeps expired sessions every GC_INTERVAL. GC_TIMEOUT bounds a single sweep.
// GRPC_ADDR is required by config but unused.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lms-sessions/internal/app"
	"lms-sessions/internal/config"
	"lms-sessions/internal/logger"
	"lms-sessions/internal/session/service"
	"lms-sessions/internal/telemetry"
)

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
		log.Error("worker: startup failed", "error", err)
		os.Exit(1)
	}

	interval := cfg.GCInterval()
	log.Info("worker: sweeping sessions", "interval", interval, "timeout", cfg.GCTimeout())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweep(ctx, a.Store, cfg.GCTimeout())
		select {
		case <-ctx.Done():
			log.Info("worker: shutting down")
			time.Sleep(telemetry.ShutdownDrainDuration)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.Close(shutdownCtx); err != nil {
				log.Warn("worker: shutdown", "error", err)
			}
			cancel()
			log.Info("worker: stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweep runs one gc pass under the optional timeout. GC logs its own report.
func sweep(ctx context.Context, store *service.Store, timeout time.Duration) {
	if ctx.Err() != nil {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	store.GC(ctx)
}
