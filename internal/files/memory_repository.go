package files

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/tenant"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	files map[string][]*File // tenant -> files, oldest first
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[string][]*File)}
}

func copyFile(f *File) File {
	cp := *f
	cp.SharedWith = append([]uuid.UUID{}, f.SharedWith...)
	return cp
}

func (r *MemoryRepository) Create(ctx context.Context, f *File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.UploadedAt = time.Now()
	cp := copyFile(f)
	tid := tenant.FromContext(ctx)
	r.files[tid] = append(r.files[tid], &cp)
	return nil
}

func (r *MemoryRepository) find(ctx context.Context, id uuid.UUID) *File {
	for _, f := range r.files[tenant.FromContext(ctx)] {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f := r.find(ctx, id)
	if f == nil {
		return nil, ErrFileNotFound
	}
	cp := copyFile(f)
	return &cp, nil
}

func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]File, error) {
	return r.filter(ctx, func(f *File) bool { return f.PatientID == patientID }), nil
}

func (r *MemoryRepository) ListSharedWith(ctx context.Context, patientID, doctorID uuid.UUID) ([]File, error) {
	return r.filter(ctx, func(f *File) bool {
		return f.PatientID == patientID && f.SharedWithDoctor(doctorID)
	}), nil
}

func (r *MemoryRepository) Share(ctx context.Context, id, doctorID uuid.UUID) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.find(ctx, id)
	if f == nil {
		return nil, ErrFileNotFound
	}
	if !f.SharedWithDoctor(doctorID) {
		f.SharedWith = append(f.SharedWith, doctorID)
	}
	cp := copyFile(f)
	return &cp, nil
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(*File) bool) []File {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.files[tenant.FromContext(ctx)]
	var out []File
	for i := len(all) - 1; i >= 0; i-- {
		if keep(all[i]) {
			out = append(out, copyFile(all[i]))
		}
	}
	return out
}
