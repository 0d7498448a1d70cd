// Package scheduling reconciles declared availability with booked appointments
// and books slots without ever double-booking one.
package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

var (
	ErrMissingDoctor = apperr.Validation("doctor id is required")
	ErrMissingDate   = apperr.Validation("date is required")
)

type Engine struct {
	availability availability.Repository
	appointments appointment.Repository
	metrics      *metrics.Metrics
}

func NewEngine(avail availability.Repository, appts appointment.Repository, m *metrics.Metrics) *Engine {
	return &Engine{
		availability: avail,
		appointments: appts,
		metrics:      m,
	}
}

// ComputeAvailableSlots returns the doctor's declared labels for date minus
// the ones already booked, in declared order. Labels match by exact string.
// A doctor with no declaration for date yields availability.ErrNotFound,
// never an empty list.
func (e *Engine) ComputeAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	slots, err := e.computeAvailableSlots(ctx, doctorID, date)
	switch {
	case err == nil:
		e.metrics.ObserveSlotQuery("ok")
	case errors.Is(err, availability.ErrNotFound):
		e.metrics.ObserveSlotQuery("not_found")
	default:
		e.metrics.ObserveSlotQuery("error")
	}
	return slots, err
}

func (e *Engine) computeAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	if doctorID == uuid.Nil {
		return nil, ErrMissingDoctor
	}
	if date.IsZero() {
		return nil, ErrMissingDate
	}
	date = calendar.Normalize(date)

	avail, err := e.availability.Get(ctx, doctorID, date)
	if err != nil {
		if errors.Is(err, availability.ErrNotFound) {
			return nil, availability.ErrNotFound
		}
		return nil, apperr.Storage("load availability", err)
	}

	booked, err := e.BookedSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	free := make([]string, 0, len(avail.Slots))
	for _, label := range avail.Slots {
		if _, taken := booked[label]; !taken {
			free = append(free, label)
		}
	}
	return free, nil
}

// BookedSlots returns the set of labels held by booked appointments.
func (e *Engine) BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]struct{}, error) {
	appts, err := e.appointments.ListBookedForDoctorDate(ctx, doctorID, calendar.Normalize(date))
	if err != nil {
		return nil, apperr.Storage("load booked appointments", err)
	}

	booked := make(map[string]struct{}, len(appts))
	for _, a := range appts {
		if a.Status == appointment.StatusBooked {
			booked[a.SlotLabel] = struct{}{}
		}
	}
	return booked, nil
}
