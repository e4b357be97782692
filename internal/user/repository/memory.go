package repository

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"lms-sessions/internal/user/domain"
)

// ErrDuplicateUsername is returned by MemoryRepository.Create for a username already in use.
var ErrDuplicateUsername = errors.New("user: duplicate username")

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[int64]*domain.User
	nextID int64
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]*domain.User)}
}

// GetByID returns a copy of the user for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetByUsername returns a copy of the user with the given username, or nil if not found.
func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// Create stores a copy of u. A non-zero u.ID is kept so tests can pin well-known ids
// (e.g. the guest account); otherwise the next sequence value is assigned.
func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Username == u.Username {
			return 0, ErrDuplicateUsername
		}
	}
	cp := *u
	if cp.ID == 0 {
		r.nextID++
		for r.byID[r.nextID] != nil {
			r.nextID++
		}
		cp.ID = r.nextID
	} else if cp.ID > r.nextID {
		r.nextID = cp.ID
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.byID[cp.ID] = &cp
	return cp.ID, nil
}

// IDsByAuth yields matching ids in ascending order from a snapshot taken when ranging starts.
func (r *MemoryRepository) IDsByAuth(ctx context.Context, auth string) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		r.mu.RLock()
		var ids []int64
		for id, u := range r.byID {
			if u.Auth == auth {
				ids = append(ids, id)
			}
		}
		r.mu.RUnlock()
		slices.Sort(ids)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}
