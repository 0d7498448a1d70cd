package records

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/tenant"
)

type MemoryRepository struct {
	mu            sync.RWMutex
	prescriptions map[string][]Prescription
	bills         map[string][]Bill
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		prescriptions: make(map[string][]Prescription),
		bills:         make(map[string][]Bill),
	}
}

func (r *MemoryRepository) CreatePrescription(ctx context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.CreatedAt = time.Now()
	tid := tenant.FromContext(ctx)
	cp := *p
	cp.Medicines = append([]Medicine(nil), p.Medicines...)
	r.prescriptions[tid] = append(r.prescriptions[tid], cp)
	return nil
}

func (r *MemoryRepository) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// stored oldest first
	all := r.prescriptions[tenant.FromContext(ctx)]
	var out []Prescription
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].PatientID == patientID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateBill(ctx context.Context, b *Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.CreatedAt = time.Now()
	tid := tenant.FromContext(ctx)
	cp := *b
	cp.Items = append([]BillItem(nil), b.Items...)
	r.bills[tid] = append(r.bills[tid], cp)
	return nil
}

func (r *MemoryRepository) ListBillsByPatient(ctx context.Context, patientID uuid.UUID) ([]Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.bills[tenant.FromContext(ctx)]
	var out []Bill
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].PatientID == patientID {
			out = append(out, all[i])
		}
	}
	return out, nil
}
