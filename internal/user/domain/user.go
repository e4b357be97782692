package domain

import (
	"errors"
	"time"
)

// AuthManual is the auth plugin assigned to users created without an explicit method.
const AuthManual = "manual"

// User is the account a session belongs to. Auth names the plugin that authenticates it.
type User struct {
	ID        int64
	Username  string
	Auth      string
	Password  string // bcrypt hash; empty for accounts that cannot log in locally
	Suspended bool
	Deleted   bool
	CreatedAt time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Auth == "" {
		u.Auth = AuthManual
	}
	return nil
}
