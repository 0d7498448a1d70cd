package records

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreatePrescription(ctx context.Context, p *Prescription) error
	ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error)

	CreateBill(ctx context.Context, b *Bill) error
	ListBillsByPatient(ctx context.Context, patientID uuid.UUID) ([]Bill, error)
}
