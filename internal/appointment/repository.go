package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment")
	ErrSlotAlreadyBooked   = apperr.Conflict("slot_already_booked", "This slot is already booked")
)

// Repository contains all DB interactions needed for appointments.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateBooked inserts a booked appointment. It fails with ErrSlotAlreadyBooked
	// when the slot already holds a booked appointment, without writing anything.
	CreateBooked(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, slotLabel string) (*Appointment, error)

	// Reconciliation
	ListBookedForDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	// Listing, newest date first
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// UpdateStatus moves id from one status to another. ErrAppointmentNotFound
	// when no appointment with that id is in status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Status worker
	ListBookedBefore(ctx context.Context, date time.Time) ([]Appointment, error)
}
