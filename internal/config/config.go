// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session storage backends accepted by SESSION_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Required for the postgres backend, migrations and seeding.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionBackend selects where session records live: "postgres" (default) or "redis".
	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	// RedisAddr is host:port of the Redis server when SessionBackend is "redis".
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database index.
	RedisDB int `mapstructure:"REDIS_DB"`

	// SessionTimeoutRaw is the idle lifetime of a logged-in session: a Go duration ("8h") or
	// whole seconds ("28800"). Must be at least one second.
	SessionTimeoutRaw string `mapstructure:"SESSION_TIMEOUT"`
	// LimitConcurrentLogins caps active sessions per user; <=0 disables the limit.
	LimitConcurrentLogins int `mapstructure:"LIMIT_CONCURRENT_LOGINS"`
	// SiteGuestID is the user id of the shared guest account.
	SiteGuestID int64 `mapstructure:"SITE_GUEST_ID"`
	// AuthPlugins is a comma-separated list of enabled auth plugins. manual and nologin are always enabled.
	AuthPlugins string `mapstructure:"AUTH_PLUGINS"`
	// AuthTimeoutPolicyFile is an optional path to a Rego module for the "policy" auth plugin.
	AuthTimeoutPolicyFile string `mapstructure:"AUTH_TIMEOUT_POLICY_FILE"`

	// GCIntervalRaw is how often the worker sweeps expired sessions (e.g. "10m").
	GCIntervalRaw string `mapstructure:"GC_INTERVAL"`
	// GCTimeoutRaw bounds a single sweep; "0" or empty means no limit.
	GCTimeoutRaw string `mapstructure:"GC_TIMEOUT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name on all telemetry.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production"). Production logs JSON.
	Env string `mapstructure:"APP_ENV"`
	// BcryptCost is the bcrypt cost factor (4-31) used when seeding user passwords; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_BACKEND", BackendPostgres)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TIMEOUT", "8h")
	v.SetDefault("LIMIT_CONCURRENT_LOGINS", 0)
	v.SetDefault("SITE_GUEST_ID", 1)
	v.SetDefault("AUTH_PLUGINS", "")
	v.SetDefault("AUTH_TIMEOUT_POLICY_FILE", "")
	v.SetDefault("GC_INTERVAL", "10m")
	v.SetDefault("GC_TIMEOUT", "0")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "lms-sessions")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("BCRYPT_COST", 12)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	switch cfg.SessionBackend {
	case "":
		cfg.SessionBackend = BackendPostgres
	case BackendPostgres, BackendRedis:
	default:
		return nil, errors.New("config: SESSION_BACKEND must be postgres or redis")
	}
	if cfg.SessionBackend == BackendRedis && cfg.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set when SESSION_BACKEND=redis")
	}

	if d, ok := parseSessionTimeout(cfg.SessionTimeoutRaw); !ok || d < time.Second {
		return nil, errors.New("config: SESSION_TIMEOUT must be a duration or whole seconds of at least 1s")
	}

	if cfg.SiteGuestID <= 0 {
		return nil, errors.New("config: SITE_GUEST_ID must be a positive user id")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// SessionTimeout parses SessionTimeoutRaw. Returns 8h if unset or invalid.
func (c *Config) SessionTimeout() time.Duration {
	d, ok := parseSessionTimeout(c.SessionTimeoutRaw)
	if !ok || d <= 0 {
		return 8 * time.Hour
	}
	return d
}

// parseSessionTimeout accepts a Go duration or a bare integer number of seconds.
func parseSessionTimeout(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	d, err := time.ParseDuration(raw)
	return d, err == nil
}

// GCInterval parses GCIntervalRaw. Returns 10m if unset or invalid.
func (c *Config) GCInterval() time.Duration {
	d, err := time.ParseDuration(c.GCIntervalRaw)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// GCTimeout parses GCTimeoutRaw. Zero means a sweep may run as long as it needs.
func (c *Config) GCTimeout() time.Duration {
	d, err := time.ParseDuration(c.GCTimeoutRaw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// AuthPluginList returns the configured auth plugin names, trimmed and without empties.
func (c *Config) AuthPluginList() []string {
	if c == nil || c.AuthPlugins == "" {
		return nil
	}
	parts := strings.Split(c.AuthPlugins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
