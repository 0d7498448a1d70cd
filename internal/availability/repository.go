package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
)

var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound, Code: "availability_not_found", Message: "No availability found"}

// Repository stores at most one Availability per doctor and date.
type Repository interface {
	Get(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error)
	// Upsert replaces the slot list wholesale.
	Upsert(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) (*Availability, error)
	// ListRange returns records with from <= date <= to, ordered by date.
	ListRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Availability, error)
}
