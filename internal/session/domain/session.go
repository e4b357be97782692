package domain

import (
	"errors"
	"time"
)

// NotLoggedIn is the user id carried by browser sessions that have not authenticated yet.
const NotLoggedIn int64 = 0

// Record is one row of the sessions table. Timestamps are unix seconds.
type Record struct {
	ID           int64 // assigned by storage on insert, never reused
	SID          string
	UserID       int64
	SessData     *string // opaque payload; nil is stored as NULL
	State        int
	TimeCreated  int64
	TimeModified int64
	FirstIP      string
	LastIP       string
}

// Validate checks the invariants enforced on insert.
func (r *Record) Validate() error {
	if r.SID == "" {
		return errors.New("session: sid is required")
	}
	if r.TimeCreated > r.TimeModified {
		return errors.New("session: timecreated must not be after timemodified")
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.SessData != nil {
		data := *r.SessData
		cp.SessData = &data
	}
	return &cp
}

// NewRecord builds the record inserted for a fresh session of userID: state 0, the current
// sid, no payload, both timestamps set to now and both addresses set to the client address.
func NewRecord(sc *SessionContext, userID int64, now time.Time) *Record {
	ts := now.Unix()
	r := &Record{
		UserID:       userID,
		State:        0,
		TimeCreated:  ts,
		TimeModified: ts,
	}
	if sc != nil {
		r.SID = sc.SID
		r.FirstIP = sc.RemoteAddr
		r.LastIP = sc.RemoteAddr
	}
	return r
}

// RecordOption overrides one field of a record built by NewTestRecord.
type RecordOption func(*Record)

// NewTestRecord computes the same defaults as NewRecord for the context's user and then applies opts.
func NewTestRecord(sc *SessionContext, now time.Time, opts ...RecordOption) *Record {
	var userID int64
	if sc != nil {
		userID = sc.UserID
	}
	r := NewRecord(sc, userID, now)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithSID overrides the session id.
func WithSID(sid string) RecordOption {
	return func(r *Record) { r.SID = sid }
}

// WithUserID sets the owner. 0 is anonymous.
func WithUserID(userID int64) RecordOption {
	return func(r *Record) { r.UserID = userID }
}

// WithState sets the state column.
func WithState(state int) RecordOption {
	return func(r *Record) { r.State = state }
}

// WithSessData sets the opaque payload. Without it sessdata stays NULL.
func WithSessData(data string) RecordOption {
	return func(r *Record) { r.SessData = &data }
}

// WithTimeCreated sets the creation time in unix seconds.
func WithTimeCreated(ts int64) RecordOption {
	return func(r *Record) { r.TimeCreated = ts }
}

// WithTimeModified sets the last-use time in unix seconds. The gc passes compare against it.
func WithTimeModified(ts int64) RecordOption {
	return func(r *Record) { r.TimeModified = ts }
}

// WithFirstIP sets the address the session was created from.
func WithFirstIP(ip string) RecordOption {
	return func(r *Record) { r.FirstIP = ip }
}

// WithLastIP sets the address of the latest request.
func WithLastIP(ip string) RecordOption {
	return func(r *Record) { r.LastIP = ip }
}
