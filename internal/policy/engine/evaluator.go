package engine

import (
	"context"

	userdomain "lms-sessions/internal/user/domain"
)

// TimeoutInput is the session state handed to the timeout policy.
type TimeoutInput struct {
	User         *userdomain.User
	SID          string
	TimeCreated  int64
	TimeModified int64
	Now          int64
}

// Evaluator decides whether an idle session should survive the timeout sweep.
type Evaluator interface {
	// IgnoreTimeout returns true when the session must be kept even though it is past the timeout.
	IgnoreTimeout(ctx context.Context, in TimeoutInput) (bool, error)
}
