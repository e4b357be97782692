package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"lms-sessions/internal/db/sqlc/gen"
	"lms-sessions/internal/session/domain"
)

// pgUniqueViolation is the SQLSTATE Postgres reports for a unique index conflict.
const pgUniqueViolation = "23505"

const sessionColumns = `id, state, sid, userid, sessdata, timecreated, timemodified, firstip, lastip`

const listAllSessions = `SELECT ` + sessionColumns + ` FROM sessions ORDER BY id`

type PostgresRepository struct {
	db      *sql.DB
	queries *gen.Queries
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, queries: gen.New(db)}
}

// All streams every session ordered by id. Rows are closed when iteration stops.
func (r *PostgresRepository) All(ctx context.Context) iter.Seq2[*domain.Record, error] {
	return r.scan(ctx, listAllSessions)
}

// GetBySID returns the session for sid, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetBySID(ctx context.Context, sid string) (*domain.Record, error) {
	s, err := r.queries.GetSessionBySID(ctx, sid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genSessionToDomain(&s), nil
}

// IDBySID returns the id for sid, or 0 if not found.
func (r *PostgresRepository) IDBySID(ctx context.Context, sid string) (int64, error) {
	id, err := r.queries.GetSessionIDBySID(ctx, sid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// ListByUserID returns all sessions for the given user. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUserID(ctx context.Context, userID int64) ([]*domain.Record, error) {
	list, err := r.queries.ListSessionsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Record, len(list))
	for i := range list {
		out[i] = genSessionToDomain(&list[i])
	}
	return out, nil
}

// ListModifiedBefore streams sessions idle since before, skipping the excluded user ids.
func (r *PostgresRepository) ListModifiedBefore(ctx context.Context, before int64, excludeUserIDs ...int64) iter.Seq2[*domain.Record, error] {
	var b strings.Builder
	b.WriteString(`SELECT ` + sessionColumns + ` FROM sessions WHERE timemodified < $1`)
	args := []any{before}
	for _, id := range excludeUserIDs {
		args = append(args, id)
		fmt.Fprintf(&b, ` AND userid <> $%d`, len(args))
	}
	b.WriteString(` ORDER BY id`)
	return r.scan(ctx, b.String(), args...)
}

// Create persists the session and returns the id assigned by the sequence.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Record) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	id, err := r.queries.CreateSession(ctx, gen.CreateSessionParams{
		State:        int32(s.State),
		Sid:          s.SID,
		Userid:       s.UserID,
		Sessdata:     stringPtrToNull(s.SessData),
		Timecreated:  s.TimeCreated,
		Timemodified: s.TimeModified,
		Firstip:      s.FirstIP,
		Lastip:       s.LastIP,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSID
		}
		return 0, err
	}
	return id, nil
}

// Update overwrites the row with s.ID. Returns false if no row has that id.
func (r *PostgresRepository) Update(ctx context.Context, s *domain.Record) (bool, error) {
	n, err := r.queries.UpdateSession(ctx, gen.UpdateSessionParams{
		ID:           s.ID,
		State:        int32(s.State),
		Sid:          s.SID,
		Userid:       s.UserID,
		Sessdata:     stringPtrToNull(s.SessData),
		Timecreated:  s.TimeCreated,
		Timemodified: s.TimeModified,
		Firstip:      s.FirstIP,
		Lastip:       s.LastIP,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicateSID
		}
		return false, err
	}
	return n > 0, nil
}

// Touch sets timemodified on the session with sid.
func (r *PostgresRepository) Touch(ctx context.Context, sid string, at int64) error {
	return r.queries.TouchSession(ctx, gen.TouchSessionParams{Sid: sid, Timemodified: at})
}

// DeleteAll removes every session row.
func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	return r.queries.DeleteAllSessions(ctx)
}

// DeleteBySID removes the session with sid; deleting a missing sid succeeds.
func (r *PostgresRepository) DeleteBySID(ctx context.Context, sid string) error {
	return r.queries.DeleteSessionBySID(ctx, sid)
}

// Count returns the number of stored sessions.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	return r.queries.CountSessions(ctx)
}

// CountByUserID returns the number of sessions owned by userID.
func (r *PostgresRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	return r.queries.CountSessionsByUserID(ctx, userID)
}

func (r *PostgresRepository) scan(ctx context.Context, query string, args ...any) iter.Seq2[*domain.Record, error] {
	return func(yield func(*domain.Record, error) bool) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var s gen.Session
			if err := rows.Scan(
				&s.ID,
				&s.State,
				&s.Sid,
				&s.Userid,
				&s.Sessdata,
				&s.Timecreated,
				&s.Timemodified,
				&s.Firstip,
				&s.Lastip,
			); err != nil {
				yield(nil, err)
				return
			}
			if !yield(genSessionToDomain(&s), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func stringPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func genSessionToDomain(s *gen.Session) *domain.Record {
	if s == nil {
		return nil
	}
	var data *string
	if s.Sessdata.Valid {
		v := s.Sessdata.String
		data = &v
	}
	return &domain.Record{
		ID:           s.ID,
		SID:          s.Sid,
		UserID:       s.Userid,
		SessData:     data,
		State:        int(s.State),
		TimeCreated:  s.Timecreated,
		TimeModified: s.Timemodified,
		FirstIP:      s.Firstip,
		LastIP:       s.Lastip,
	}
}
