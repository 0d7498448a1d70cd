package files

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
)

var ErrFileNotFound = apperr.NotFound("file")

type Repository interface {
	Create(ctx context.Context, f *File) error
	GetByID(ctx context.Context, id uuid.UUID) (*File, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]File, error)
	// ListSharedWith returns the patient's files shared with doctorID.
	ListSharedWith(ctx context.Context, patientID, doctorID uuid.UUID) ([]File, error)
	// Share adds doctorID to the file's share list; sharing twice is a no-op.
	Share(ctx context.Context, id, doctorID uuid.UUID) (*File, error)
}
