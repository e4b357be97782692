package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lms-sessions/internal/auth"
	"lms-sessions/internal/logger"
	"lms-sessions/internal/session/domain"
	"lms-sessions/internal/session/repository"
	"lms-sessions/internal/telemetry"
	userdomain "lms-sessions/internal/user/domain"
	userrepo "lms-sessions/internal/user/repository"
)

const (
	guestID = int64(1)
	adminID = int64(2)
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	sessions repository.Repository
	users    *userrepo.MemoryRepository
	store    *Store
	manager  *Manager
	mock     *MockHandler
	events   *captureEmitter
	now      int64
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	settings Settings
	enabled  []string
	plugins  []auth.Plugin
	sessions repository.Repository
}

func withTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.settings.Timeout = d }
}

func withLimit(n int) fixtureOption {
	return func(c *fixtureConfig) { c.settings.LimitConcurrentLogins = n }
}

func withPlugins(enabled []string, plugins ...auth.Plugin) fixtureOption {
	return func(c *fixtureConfig) {
		c.enabled = enabled
		c.plugins = plugins
	}
}

func withSessions(r repository.Repository) fixtureOption {
	return func(c *fixtureConfig) { c.sessions = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		settings: Settings{Timeout: 10 * time.Minute, GuestID: guestID},
		sessions: repository.NewMemoryRepository(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	users := userrepo.NewMemoryRepository()
	_, err := users.Create(ctx, &userdomain.User{ID: guestID, Username: "guest"})
	require.NoError(t, err)
	_, err = users.Create(ctx, &userdomain.User{ID: adminID, Username: "admin"})
	require.NoError(t, err)

	log := logger.Discard()
	store := NewStore(cfg.sessions, users, auth.NewRegistry(log, cfg.enabled, cfg.plugins...), cfg.settings, log)
	store.now = func() time.Time { return fixedNow }
	events := &captureEmitter{}

	return &fixture{
		ctx:      ctx,
		sessions: cfg.sessions,
		users:    users,
		store:    store,
		manager:  NewManager(store, events),
		mock:     NewMockHandler(store),
		events:   events,
		now:      fixedNow.Unix(),
	}
}

// seed inserts a session through the mock handler and returns its id.
func (f *fixture) seed(t *testing.T, opts ...domain.RecordOption) int64 {
	t.Helper()
	sc := &domain.SessionContext{SID: domain.NewSID(), RemoteAddr: "10.0.0.1"}
	id, err := f.mock.AddTestSession(f.ctx, sc, opts...)
	require.NoError(t, err)
	return id
}

func (f *fixture) createUser(t *testing.T, username, authName string) int64 {
	t.Helper()
	id, err := f.users.Create(f.ctx, &userdomain.User{Username: username, Auth: authName})
	require.NoError(t, err)
	return id
}

func (f *fixture) existsID(t *testing.T, id int64) bool {
	t.Helper()
	for rec, err := range f.store.AllSessions(f.ctx) {
		require.NoError(t, err)
		if rec.ID == id {
			return true
		}
	}
	return false
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.mock.CountSessions(f.ctx)
	require.NoError(t, err)
	return n
}

// captureEmitter records events emitted by the manager.
type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
}

func (c *captureEmitter) Emit(ctx context.Context, ev *telemetry.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureEmitter) ofType(eventType string) []*telemetry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*telemetry.Event
	for _, ev := range c.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
