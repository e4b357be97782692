// Migrate applies the users and sessions schema from embedded SQL.
//
//	go run ./cmd/migrate                  # all the way up
//	go run ./cmd/migrate -direction down  # all the way down
//	go run ./cmd/migrate -steps -1        # roll back one migration
package main

import (
	"flag"
	"log/slog"
	"os"

	"lms-sessions/internal/config"
	"lms-sessions/internal/db/migrate"
	"lms-sessions/internal/logger"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Apply n migrations (negative rolls back); overrides -direction")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	if *steps != 0 {
		err = migrate.Steps(cfg.DatabaseURL, *steps)
	} else {
		err = migrate.Run(cfg.DatabaseURL, *direction)
	}
	if err != nil {
		log.Error("migrate failed", "direction", *direction, "steps", *steps, "error", err)
		os.Exit(1)
	}

	version, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
	switch {
	case err != nil:
		log.Warn("migrate: read version", "error", err)
	case !ok:
		log.Info("migrate done", "version", "none")
	default:
		log.Info("migrate done", "version", version, "dirty", dirty)
	}
}
