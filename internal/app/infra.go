package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"lms-sessions/internal/config"
	"lms-sessions/internal/db"
	"lms-sessions/internal/health/handler"
)

// Infra holds the external connections the session service runs on.
// Redis is nil unless SESSION_BACKEND=redis.
type Infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func setupInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, error) {
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database ready")

	infra := &Infra{DB: sqlDB}
	if cfg.SessionBackend != config.BackendRedis {
		return infra, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis ready", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	infra.Redis = rdb
	return infra, nil
}

// Pinger checks every connection the infra holds.
func (i *Infra) Pinger() handler.Pinger {
	return handler.PingerFunc(func(ctx context.Context) error {
		var errs []error
		if i.DB != nil {
			if err := i.DB.PingContext(ctx); err != nil {
				errs = append(errs, fmt.Errorf("database: %w", err))
			}
		}
		if i.Redis != nil {
			if err := i.Redis.Ping(ctx).Err(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		return errors.Join(errs...)
	})
}

// Close closes every connection the infra holds.
func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	return errors.Join(errs...)
}
