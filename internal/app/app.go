// Package app assembles the session store, lifecycle manager and their infrastructure from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lms-sessions/internal/auth"
	"lms-sessions/internal/config"
	"lms-sessions/internal/policy/engine"
	"lms-sessions/internal/session/repository"
	"lms-sessions/internal/session/service"
	telemetryotel "lms-sessions/internal/telemetry/otel"
	userrepo "lms-sessions/internal/user/repository"
)

// App is a fully wired session service.
type App struct {
	Infra     *Infra
	Providers *telemetryotel.Providers
	Policy    *engine.OPAEvaluator
	Plugins   *auth.Registry
	Store     *service.Store
	Manager   *service.Manager
}

// New opens the infrastructure, installs the telemetry providers globally and builds the
// store and manager. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()

	policy, plugins, err := newPlugins(ctx, cfg, logger)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	infra, err := setupInfra(ctx, cfg, logger)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	sessions := newSessionRepository(cfg, infra)
	store := service.NewStore(sessions, userrepo.NewPostgresRepository(infra.DB), plugins, Settings(cfg), logger)
	manager := service.NewManager(store, telemetryotel.NewEventEmitter(providers.LoggerProvider))

	logger.Info("session service ready",
		"backend", cfg.SessionBackend,
		"timeout", cfg.SessionTimeout(),
		"limit_concurrent_logins", cfg.LimitConcurrentLogins,
		"auth_plugins", plugins.Enabled(),
	)
	return &App{
		Infra:     infra,
		Providers: providers,
		Policy:    policy,
		Plugins:   plugins,
		Store:     store,
		Manager:   manager,
	}, nil
}

// Settings maps config onto the store settings.
func Settings(cfg *config.Config) service.Settings {
	return service.Settings{
		Timeout:               cfg.SessionTimeout(),
		GuestID:               cfg.SiteGuestID,
		LimitConcurrentLogins: cfg.LimitConcurrentLogins,
	}
}

// newPlugins compiles the timeout policy and registers it as the "policy" plugin next to the
// built-ins. The plugin only vetoes when "policy" is listed in AUTH_PLUGINS.
func newPlugins(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.OPAEvaluator, *auth.Registry, error) {
	policy, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.AuthTimeoutPolicyFile)
	if err != nil {
		return nil, nil, err
	}
	now := func() int64 { return time.Now().Unix() }
	plugins := auth.NewRegistry(logger, cfg.AuthPluginList(), auth.NewPolicyPlugin(policy, now))
	return policy, plugins, nil
}

func newSessionRepository(cfg *config.Config, infra *Infra) repository.Repository {
	if cfg.SessionBackend == config.BackendRedis && infra.Redis != nil {
		return repository.NewRedisRepository(infra.Redis, "")
	}
	return repository.NewPostgresRepository(infra.DB)
}

// Close flushes telemetry and closes the infrastructure.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Providers.Shutdown(ctx), a.Infra.Close())
}
