package telemetry

import (
	"context"
	"time"
)

// Session lifecycle event types.
const (
	EventSessionKilled  = "session_killed"
	EventSessionEvicted = "session_evicted"
	EventSessionsPurged = "sessions_purged"
)

// Event is a session lifecycle event. UserID 0 means the session was not logged in.
type Event struct {
	EventType string
	Source    string
	UserID    int64
	SessionID string
	Metadata  []byte // JSON; optional
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
