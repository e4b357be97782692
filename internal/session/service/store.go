// Package service implements the session store and lifecycle manager on top of a session
// repository, a user repository and the auth plugin registry.
package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"lms-sessions/internal/auth"
	"lms-sessions/internal/session/domain"
	"lms-sessions/internal/session/repository"
	userrepo "lms-sessions/internal/user/repository"
)

// Settings are the read-only site settings the store consults.
type Settings struct {
	// Timeout is the idle lifetime of a logged-in session.
	Timeout time.Duration
	// GuestID is the user id of the shared guest account.
	GuestID int64
	// LimitConcurrentLogins caps sessions per user; <= 0 disables the limit.
	LimitConcurrentLogins int
}

// Store owns session records. Every operation except GC returns storage failures to the caller.
type Store struct {
	sessions repository.Repository
	users    userrepo.Repository
	plugins  *auth.Registry
	settings Settings
	logger   *slog.Logger
	inst     *instruments
	now      func() time.Time
}

// NewStore returns a store over the given repositories. A nil logger discards output.
func NewStore(sessions repository.Repository, users userrepo.Repository, plugins *auth.Registry, settings Settings, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if plugins == nil {
		plugins = auth.NewRegistry(logger, nil)
	}
	return &Store{
		sessions: sessions,
		users:    users,
		plugins:  plugins,
		settings: settings,
		logger:   logger,
		inst:     newInstruments(),
		now:      time.Now,
	}
}

// Settings returns the settings the store was built with.
func (s *Store) Settings() Settings { return s.settings }

// AllSessions streams every session. Ranging again re-reads storage.
func (s *Store) AllSessions(ctx context.Context) iter.Seq2[*domain.Record, error] {
	return s.sessions.All(ctx)
}

// SessionBySID returns the session for sid, or nil if there is none.
func (s *Store) SessionBySID(ctx context.Context, sid string) (*domain.Record, error) {
	return s.sessions.GetBySID(ctx, sid)
}

// SessionsByUserID returns all sessions of userID.
func (s *Store) SessionsByUserID(ctx context.Context, userID int64) ([]*domain.Record, error) {
	return s.sessions.ListByUserID(ctx, userID)
}

// AddSession inserts a fresh record for the context's sid owned by userID and returns it with
// its id set. A sid already in use yields repository.ErrDuplicateSID; the caller picks a new
// sid and retries.
func (s *Store) AddSession(ctx context.Context, sc *domain.SessionContext, userID int64) (*domain.Record, error) {
	rec := domain.NewRecord(sc, userID, s.now())
	id, err := s.sessions.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("add session: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// UpdateSession writes every field of rec. When rec.ID is 0 it is resolved from rec.SID and
// stored back into rec. Returns false without error for a nil record or a sid that has no row.
func (s *Store) UpdateSession(ctx context.Context, rec *domain.Record) (bool, error) {
	if rec == nil {
		return false, nil
	}
	if rec.ID == 0 {
		if rec.SID == "" {
			return false, nil
		}
		id, err := s.sessions.IDBySID(ctx, rec.SID)
		if err != nil {
			return false, fmt.Errorf("update session: %w", err)
		}
		if id == 0 {
			return false, nil
		}
		rec.ID = id
	}
	ok, err := s.sessions.Update(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	return ok, nil
}

// DeleteAllSessions removes every session.
func (s *Store) DeleteAllSessions(ctx context.Context) error {
	return s.sessions.DeleteAll(ctx)
}

// DeleteSessionBySID removes the session for sid. Unknown sids succeed.
func (s *Store) DeleteSessionBySID(ctx context.Context, sid string) error {
	return s.sessions.DeleteBySID(ctx, sid)
}

// KillSessionsForAuthPlugin deletes every session of every user authenticated by the named
// plugin. Used when a plugin is disabled.
func (s *Store) KillSessionsForAuthPlugin(ctx context.Context, name string) error {
	for userID, err := range s.users.IDsByAuth(ctx, name) {
		if err != nil {
			return fmt.Errorf("kill sessions for %s: %w", name, err)
		}
		sessions, err := s.sessions.ListByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("kill sessions for %s: %w", name, err)
		}
		for _, rec := range sessions {
			if err := s.sessions.DeleteBySID(ctx, rec.SID); err != nil {
				return fmt.Errorf("kill sessions for %s: %w", name, err)
			}
		}
	}
	return nil
}

// CountSessions returns the number of stored sessions.
func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	return s.sessions.Count(ctx)
}

func (s *Store) isRealUser(userID int64) bool {
	return userID != domain.NotLoggedIn && userID != s.settings.GuestID
}

// timeoutSeconds is the idle timeout in whole seconds, never less than one.
func (s *Store) timeoutSeconds() int64 {
	return max(int64(s.settings.Timeout/time.Second), 1)
}

// live reports whether rec counts as a live session now. Only real users time out.
func (s *Store) live(rec *domain.Record) bool {
	return !s.isRealUser(rec.UserID) || rec.TimeModified >= s.now().Unix()-s.timeoutSeconds()
}
