package repository

import (
	"context"
	"errors"
	"iter"

	"lms-sessions/internal/session/domain"
)

// ErrDuplicateSID is returned by Create when another live session already uses the sid.
// Callers regenerate the sid and retry.
var ErrDuplicateSID = errors.New("session: duplicate sid")

// Repository defines persistence for session records.
type Repository interface {
	// All streams every record ordered by id. Each range over the result runs a new scan.
	All(ctx context.Context) iter.Seq2[*domain.Record, error]
	// GetBySID returns the record for sid, or nil if not found.
	GetBySID(ctx context.Context, sid string) (*domain.Record, error)
	// IDBySID returns the surrogate id for sid, or 0 if not found.
	IDBySID(ctx context.Context, sid string) (int64, error)
	// ListByUserID returns all records of userID ordered by id.
	ListByUserID(ctx context.Context, userID int64) ([]*domain.Record, error)
	// ListModifiedBefore streams records with timemodified < before whose userid is not in excludeUserIDs.
	ListModifiedBefore(ctx context.Context, before int64, excludeUserIDs ...int64) iter.Seq2[*domain.Record, error]
	// Create inserts r and returns the assigned id. Returns ErrDuplicateSID on a sid collision.
	Create(ctx context.Context, r *domain.Record) (int64, error)
	// Update writes every column of r to the row with r.ID. Returns false when no row matched.
	Update(ctx context.Context, r *domain.Record) (bool, error)
	// Touch sets timemodified for sid. Missing sids are ignored.
	Touch(ctx context.Context, sid string, at int64) error
	DeleteAll(ctx context.Context) error
	// DeleteBySID removes the record for sid. Missing sids are not an error.
	DeleteBySID(ctx context.Context, sid string) error
	Count(ctx context.Context) (int64, error)
	CountByUserID(ctx context.Context, userID int64) (int64, error)
}
