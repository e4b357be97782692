package repository

import (
	"context"
	"iter"

	"lms-sessions/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create inserts the user and returns the id assigned by storage.
	Create(ctx context.Context, u *domain.User) (int64, error)
	// IDsByAuth streams the ids of users authenticated by the named plugin, ascending.
	IDsByAuth(ctx context.Context, auth string) iter.Seq2[int64, error]
}
