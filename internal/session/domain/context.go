package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SessionContext is the request-scoped identity of the caller: which session cookie it
// presented, who is logged in on it and where the request came from. The request layer
// owns one value per request and passes it explicitly to anything that needs it.
type SessionContext struct {
	SID        string
	UserID     int64
	RemoteAddr string
}

// NewSessionContext returns a context for an anonymous request with a freshly generated sid.
func NewSessionContext(remoteAddr string) *SessionContext {
	return &SessionContext{SID: NewSID(), UserID: NotLoggedIn, RemoteAddr: remoteAddr}
}

// LoggedIn reports whether the context belongs to an authenticated user (guest included).
func (c *SessionContext) LoggedIn() bool {
	return c != nil && c.UserID != NotLoggedIn
}

// NewSID returns a random 32 character lowercase hex session id.
func NewSID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
