package repository

import (
	"context"
	"iter"
	"slices"
	"sync"

	"lms-sessions/internal/session/domain"
)

// MemoryRepository is an in-process Repository. It keeps the same contract as the SQL
// store (unique sid, monotonic ids that are never reused) and is used by tests and the
// mock handler.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[int64]*domain.Record
	bySID  map[string]int64
	nextID int64
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[int64]*domain.Record),
		bySID: make(map[string]int64),
	}
}

// All yields copies of every record ordered by id, from a snapshot taken when ranging starts.
// Callers may delete while iterating.
func (m *MemoryRepository) All(ctx context.Context) iter.Seq2[*domain.Record, error] {
	return m.filter(ctx, func(*domain.Record) bool { return true })
}

// GetBySID returns a copy of the record for sid, or nil if not found.
func (m *MemoryRepository) GetBySID(ctx context.Context, sid string) (*domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySID[sid]
	if !ok {
		return nil, nil
	}
	return m.byID[id].Clone(), nil
}

// IDBySID returns the id for sid, or 0 if not found.
func (m *MemoryRepository) IDBySID(ctx context.Context, sid string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySID[sid], nil
}

// ListByUserID returns copies of the user's records ordered by id.
func (m *MemoryRepository) ListByUserID(ctx context.Context, userID int64) ([]*domain.Record, error) {
	var out []*domain.Record
	for r, err := range m.filter(ctx, func(r *domain.Record) bool { return r.UserID == userID }) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ListModifiedBefore yields records idle since before, skipping excluded user ids.
func (m *MemoryRepository) ListModifiedBefore(ctx context.Context, before int64, excludeUserIDs ...int64) iter.Seq2[*domain.Record, error] {
	return m.filter(ctx, func(r *domain.Record) bool {
		return r.TimeModified < before && !slices.Contains(excludeUserIDs, r.UserID)
	})
}

// Create stores a copy of r under the next id.
func (m *MemoryRepository) Create(ctx context.Context, r *domain.Record) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySID[r.SID]; exists {
		return 0, ErrDuplicateSID
	}
	m.nextID++
	cp := r.Clone()
	cp.ID = m.nextID
	m.byID[cp.ID] = cp
	m.bySID[cp.SID] = cp.ID
	return cp.ID, nil
}

// Update replaces the stored record with r.ID.
func (m *MemoryRepository) Update(ctx context.Context, r *domain.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byID[r.ID]
	if !ok {
		return false, nil
	}
	if other, taken := m.bySID[r.SID]; taken && other != r.ID {
		return false, ErrDuplicateSID
	}
	delete(m.bySID, old.SID)
	m.byID[r.ID] = r.Clone()
	m.bySID[r.SID] = r.ID
	return true, nil
}

// Touch sets timemodified for sid.
func (m *MemoryRepository) Touch(ctx context.Context, sid string, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.bySID[sid]; ok {
		m.byID[id].TimeModified = at
	}
	return nil
}

// DeleteAll removes every record. The id sequence keeps counting.
func (m *MemoryRepository) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.byID)
	clear(m.bySID)
	return nil
}

// DeleteBySID removes the record for sid if present.
func (m *MemoryRepository) DeleteBySID(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.bySID[sid]; ok {
		delete(m.byID, id)
		delete(m.bySID, sid)
	}
	return nil
}

// Count returns the number of stored records.
func (m *MemoryRepository) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byID)), nil
}

// CountByUserID returns the number of records owned by userID.
func (m *MemoryRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.byID {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) filter(ctx context.Context, keep func(*domain.Record) bool) iter.Seq2[*domain.Record, error] {
	return func(yield func(*domain.Record, error) bool) {
		m.mu.RLock()
		snapshot := make([]*domain.Record, 0, len(m.byID))
		for _, r := range m.byID {
			if keep(r) {
				snapshot = append(snapshot, r.Clone())
			}
		}
		m.mu.RUnlock()
		slices.SortFunc(snapshot, func(a, b *domain.Record) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		for _, r := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
