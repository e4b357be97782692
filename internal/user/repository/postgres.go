package repository

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"lms-sessions/internal/db/sqlc/gen"
	"lms-sessions/internal/user/domain"
)

const listUserIDsByAuth = `SELECT id FROM users WHERE auth = $1 ORDER BY id ASC`

type PostgresRepository struct {
	db      *sql.DB
	queries *gen.Queries
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, queries: gen.New(db)}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := r.queries.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genUserToDomain(&u), nil
}

// GetByUsername returns the user with the given username, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := r.queries.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genUserToDomain(&u), nil
}

// Create persists the user and returns the generated id.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	return r.queries.CreateUser(ctx, gen.CreateUserParams{
		Username:  u.Username,
		Auth:      u.Auth,
		Password:  u.Password,
		Suspended: u.Suspended,
		Deleted:   u.Deleted,
		CreatedAt: u.CreatedAt,
	})
}

// IDsByAuth streams user ids for the auth plugin. The query runs when the sequence is ranged
// and the rows are closed when iteration stops.
func (r *PostgresRepository) IDsByAuth(ctx context.Context, auth string) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		rows, err := r.db.QueryContext(ctx, listUserIDsByAuth, auth)
		if err != nil {
			yield(0, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				yield(0, err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(0, err)
		}
	}
}

func genUserToDomain(u *gen.User) *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{
		ID:        u.ID,
		Username:  u.Username,
		Auth:      u.Auth,
		Password:  u.Password,
		Suspended: u.Suspended,
		Deleted:   u.Deleted,
		CreatedAt: u.CreatedAt,
	}
}
