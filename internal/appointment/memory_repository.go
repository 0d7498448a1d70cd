package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

type slotKey struct {
	tenant string
	doctor uuid.UUID
	date   time.Time
	label  string
}

type stored struct {
	tenant string
	Appointment
}

// MemoryRepository keeps appointments in process. Its booked index plays the
// role of the partial unique index: check and insert happen under one lock.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*stored
	booked map[slotKey]uuid.UUID
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]*stored),
		booked: make(map[slotKey]uuid.UUID),
		now:    time.Now,
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok || s.tenant != tenant.FromContext(ctx) {
		return nil, ErrAppointmentNotFound
	}
	a := s.Appointment
	return &a, nil
}

func (r *MemoryRepository) CreateBooked(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, slotLabel string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{tenant.FromContext(ctx), doctorID, calendar.Normalize(date), slotLabel}
	if _, taken := r.booked[key]; taken {
		return nil, ErrSlotAlreadyBooked
	}

	now := r.now()
	s := &stored{
		tenant: key.tenant,
		Appointment: Appointment{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			PatientID: patientID,
			Date:      key.date,
			SlotLabel: slotLabel,
			Status:    StatusBooked,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	r.byID[s.ID] = s
	r.booked[key] = s.ID

	a := s.Appointment
	return &a, nil
}

func (r *MemoryRepository) ListBookedForDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	date = calendar.Normalize(date)
	return r.filter(ctx, func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(date) && a.Status == StatusBooked
	}), nil
}

func (r *MemoryRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	list := r.filter(ctx, func(a *Appointment) bool { return a.DoctorID == doctorID })
	return page(newestFirst(list), limit, offset), nil
}

func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	list := r.filter(ctx, func(a *Appointment) bool { return a.PatientID == patientID })
	return page(newestFirst(list), limit, offset), nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.tenant != tenant.FromContext(ctx) || s.Status != from {
		return nil, ErrAppointmentNotFound
	}

	key := slotKey{s.tenant, s.DoctorID, s.Date, s.SlotLabel}
	if to == StatusBooked {
		if _, taken := r.booked[key]; taken {
			return nil, ErrSlotAlreadyBooked
		}
		r.booked[key] = s.ID
	} else if from == StatusBooked {
		delete(r.booked, key)
	}

	s.Status = to
	s.UpdatedAt = r.now()
	a := s.Appointment
	return &a, nil
}

func (r *MemoryRepository) ListBookedBefore(ctx context.Context, date time.Time) ([]Appointment, error) {
	date = calendar.Normalize(date)
	list := r.filter(ctx, func(a *Appointment) bool {
		return a.Status == StatusBooked && a.Date.Before(date)
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
	return list, nil
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(*Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tid := tenant.FromContext(ctx)
	var out []Appointment
	for _, s := range r.byID {
		if s.tenant == tid && keep(&s.Appointment) {
			out = append(out, s.Appointment)
		}
	}
	// map order is random; keep creation order for stable results
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func newestFirst(list []Appointment) []Appointment {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.After(list[j].Date)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func page(list []Appointment, limit, offset int) []Appointment {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
