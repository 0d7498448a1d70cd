package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

type memKey struct {
	tenant string
	doctor uuid.UUID
	date   time.Time
}

// MemoryRepository keeps availability in process, partitioned by the tenant in ctx.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[memKey]Availability
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[memKey]Availability),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Get(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[memKey{tenant.FromContext(ctx), doctorID, calendar.Normalize(date)}]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memKey{tenant.FromContext(ctx), doctorID, calendar.Normalize(date)}
	now := r.now()

	a, ok := r.items[key]
	if !ok {
		a = Availability{DoctorID: doctorID, Date: key.date, CreatedAt: now}
	}
	a.Slots = append([]string(nil), slots...)
	a.UpdatedAt = now
	r.items[key] = a

	return clone(a), nil
}

func (r *MemoryRepository) ListRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Availability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	from, to = calendar.Normalize(from), calendar.Normalize(to)
	tid := tenant.FromContext(ctx)

	var result []Availability
	for k, a := range r.items {
		if k.tenant != tid || k.doctor != doctorID {
			continue
		}
		if k.date.Before(from) || k.date.After(to) {
			continue
		}
		result = append(result, *clone(a))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func clone(a Availability) *Availability {
	a.Slots = append([]string(nil), a.Slots...)
	return &a
}
