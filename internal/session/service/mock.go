package service

import (
	"context"
	"iter"

	"lms-sessions/internal/session/domain"
)

// MockHandler seeds and inspects session records in tests without going through the lifecycle
// policy of Store and Manager.
type MockHandler struct {
	store *Store
}

// NewMockHandler returns a mock handler writing through store's repository.
func NewMockHandler(store *Store) *MockHandler {
	return &MockHandler{store: store}
}

// AddTestSession inserts a record with the same defaults AddSession would use for sc (owned by
// sc.UserID), overridden by opts. Returns the new id.
func (h *MockHandler) AddTestSession(ctx context.Context, sc *domain.SessionContext, opts ...domain.RecordOption) (int64, error) {
	rec := domain.NewTestRecord(sc, h.store.now(), opts...)
	return h.store.sessions.Create(ctx, rec)
}

// AllSessions returns every record as a fully materialized sequence.
func (h *MockHandler) AllSessions(ctx context.Context) iter.Seq2[*domain.Record, error] {
	var (
		records []*domain.Record
		loadErr error
	)
	for rec, err := range h.store.sessions.All(ctx) {
		if err != nil {
			loadErr = err
			break
		}
		records = append(records, rec)
	}
	return func(yield func(*domain.Record, error) bool) {
		if loadErr != nil {
			yield(nil, loadErr)
			return
		}
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// CountSessions returns the number of stored records.
func (h *MockHandler) CountSessions(ctx context.Context) (int64, error) {
	return h.store.sessions.Count(ctx)
}
