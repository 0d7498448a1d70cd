package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an appointment in s may move to next.
// Only booked appointments change status.
func (s Status) CanTransition(next Status) bool {
	return s == StatusBooked && (next == StatusCompleted || next == StatusCancelled)
}

// Appointment occupies its (doctor, date, slot label) only while booked.
type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	SlotLabel string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
