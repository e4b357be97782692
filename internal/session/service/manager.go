package service

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"lms-sessions/internal/session/domain"
	"lms-sessions/internal/telemetry"
)

const eventSource = "session.manager"

// Manager applies session lifecycle policy on top of a Store: liveness checks, kills and the
// concurrent login limit. Kills are reported as telemetry events.
type Manager struct {
	store   *Store
	emitter telemetry.EventEmitter
}

// NewManager returns a manager over store. emitter may be nil.
func NewManager(store *Store, emitter telemetry.EventEmitter) *Manager {
	return &Manager{store: store, emitter: emitter}
}

// Store returns the underlying store.
func (m *Manager) Store() *Store { return m.store }

// SessionExists reports whether sid names a live session. Sessions of real users must also have
// been modified within the timeout; guest and anonymous sessions never time out here.
func (m *Manager) SessionExists(ctx context.Context, sid string) (bool, error) {
	rec, err := m.store.sessions.GetBySID(ctx, sid)
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return rec != nil && m.store.live(rec), nil
}

// TouchSession marks the session as used now. Unknown sids are ignored.
func (m *Manager) TouchSession(ctx context.Context, sid string) error {
	return m.store.sessions.Touch(ctx, sid, m.store.now().Unix())
}

// KillSession deletes one session.
func (m *Manager) KillSession(ctx context.Context, sid string) error {
	rec, err := m.store.sessions.GetBySID(ctx, sid)
	if err != nil {
		return fmt.Errorf("kill session: %w", err)
	}
	if rec == nil {
		return nil
	}
	if err := m.store.sessions.DeleteBySID(ctx, sid); err != nil {
		return fmt.Errorf("kill session: %w", err)
	}
	m.emit(ctx, telemetry.EventSessionKilled, rec, nil)
	return nil
}

// KillUserSessions deletes all sessions of userID except keepSID, which may be empty.
func (m *Manager) KillUserSessions(ctx context.Context, userID int64, keepSID string) error {
	sessions, err := m.store.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("kill user sessions: %w", err)
	}
	for _, rec := range sessions {
		if keepSID != "" && rec.SID == keepSID {
			continue
		}
		if err := m.store.sessions.DeleteBySID(ctx, rec.SID); err != nil {
			return fmt.Errorf("kill user sessions: %w", err)
		}
		m.emit(ctx, telemetry.EventSessionKilled, rec, nil)
	}
	return nil
}

// KillAllSessions deletes every session.
func (m *Manager) KillAllSessions(ctx context.Context) error {
	if err := m.store.sessions.DeleteAll(ctx); err != nil {
		return fmt.Errorf("kill all sessions: %w", err)
	}
	m.emit(ctx, telemetry.EventSessionsPurged, nil, nil)
	return nil
}

// ApplyConcurrentLoginLimit deletes the oldest sessions of userID beyond the configured limit.
// keepSID, when it names one of the user's sessions, is never deleted and takes one of the
// slots. The rest are kept newest first by timecreated; equal timecreated keeps the higher id.
// Guest and anonymous sessions are never limited.
func (m *Manager) ApplyConcurrentLoginLimit(ctx context.Context, userID int64, keepSID string) error {
	limit := m.store.settings.LimitConcurrentLogins
	if limit <= 0 || !m.store.isRealUser(userID) {
		return nil
	}
	n, err := m.store.sessions.CountByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("apply concurrent login limit: %w", err)
	}
	if n <= int64(limit) {
		return nil
	}
	sessions, err := m.store.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("apply concurrent login limit: %w", err)
	}
	if len(sessions) <= limit {
		return nil
	}

	slots := limit
	candidates := make([]*domain.Record, 0, len(sessions))
	for _, rec := range sessions {
		if keepSID != "" && rec.SID == keepSID {
			slots--
			continue
		}
		candidates = append(candidates, rec)
	}
	slices.SortFunc(candidates, func(a, b *domain.Record) int {
		if c := cmp.Compare(b.TimeCreated, a.TimeCreated); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	slots = max(slots, 0)
	if slots >= len(candidates) {
		return nil
	}
	meta, _ := json.Marshal(map[string]int{"limit": limit})
	for _, rec := range candidates[slots:] {
		if err := m.store.sessions.DeleteBySID(ctx, rec.SID); err != nil {
			return fmt.Errorf("apply concurrent login limit: %w", err)
		}
		m.store.inst.evicted.Add(ctx, 1)
		m.emit(ctx, telemetry.EventSessionEvicted, rec, meta)
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, eventType string, rec *domain.Record, meta []byte) {
	ev := &telemetry.Event{
		EventType: eventType,
		Source:    eventSource,
		Metadata:  meta,
		CreatedAt: m.store.now().UTC().Truncate(time.Second),
	}
	if rec != nil {
		ev.UserID = rec.UserID
		ev.SessionID = rec.SID
	}
	telemetry.EmitAsync(m.emitter, ctx, ev)
}

// Resume returns the session context for a request presenting sid from remoteAddr. A live
// session is touched and its owner carried into the context. An unknown, expired or empty sid
// yields a fresh anonymous context with a new sid; no record is written until AddSession.
func (m *Manager) Resume(ctx context.Context, sid, remoteAddr string) (*domain.SessionContext, error) {
	if sid == "" {
		return domain.NewSessionContext(remoteAddr), nil
	}
	rec, err := m.store.sessions.GetBySID(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	if rec == nil || !m.store.live(rec) {
		return domain.NewSessionContext(remoteAddr), nil
	}
	if err := m.TouchSession(ctx, sid); err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return &domain.SessionContext{SID: sid, UserID: rec.UserID, RemoteAddr: remoteAddr}, nil
}
