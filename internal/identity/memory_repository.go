package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/tenant"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]map[uuid.UUID]User // tenant -> id -> user
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]map[uuid.UUID]User)}
}

func (r *MemoryRepository) Create(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tid := tenant.FromContext(ctx)
	users := r.users[tid]
	if users == nil {
		users = make(map[uuid.UUID]User)
		r.users[tid] = users
	}
	for _, existing := range users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}

	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	users[u.ID] = *u
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[tenant.FromContext(ctx)][id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users[tenant.FromContext(ctx)] {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) ListByRole(ctx context.Context, role Role) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []User
	for _, u := range r.users[tenant.FromContext(ctx)] {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}
