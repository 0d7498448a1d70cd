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
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

var (
	ErrSlotAlreadyBooked = appointment.ErrSlotAlreadyBooked
	ErrSlotBeingBooked   = apperr.Conflict("slot_being_booked", "This slot is currently being booked, please retry")
	ErrSlotNotDeclared   = apperr.Conflict("slot_not_declared", "This slot is not offered by the doctor")
	ErrMissingPatient    = apperr.Validation("patient id is required")
	ErrMissingSlot       = apperr.Validation("time slot is required")
)

type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	SlotLabel string
}

// Participants resolves the doctor and patient of a booking.
type Participants interface {
	RequireRole(ctx context.Context, id uuid.UUID, role identity.Role) (*identity.User, error)
}

type BookingOptions struct {
	// RequireDeclaredSlot rejects labels the doctor has not declared for the date.
	RequireDeclaredSlot bool
}

type Booker struct {
	engine       *Engine
	appointments appointment.Repository
	locker       Locker
	people       Participants
	events       events.Recorder
	metrics      *metrics.Metrics
	opts         BookingOptions
}

// NewBooker wires the booking workflow. people, rec and m may be nil.
func NewBooker(engine *Engine, appts appointment.Repository, locker Locker, people Participants, rec events.Recorder, m *metrics.Metrics, opts BookingOptions) *Booker {
	return &Booker{
		engine:       engine,
		appointments: appts,
		locker:       locker,
		people:       people,
		events:       rec,
		metrics:      m,
		opts:         opts,
	}
}

// BookSlot books req's slot for the patient. Of any number of concurrent
// calls for the same doctor, date and label exactly one succeeds; the others
// get ErrSlotAlreadyBooked or ErrSlotBeingBooked and nothing is written for them.
func (b *Booker) BookSlot(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	start := time.Now()
	appt, err := b.bookSlot(ctx, req)
	b.metrics.ObserveBooking(outcome(err), time.Since(start))
	return appt, err
}

func (b *Booker) bookSlot(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	req.Date = calendar.Normalize(req.Date)

	if b.people != nil {
		if _, err := b.people.RequireRole(ctx, req.DoctorID, identity.RoleDoctor); err != nil {
			return nil, err
		}
		if _, err := b.people.RequireRole(ctx, req.PatientID, identity.RolePatient); err != nil {
			return nil, err
		}
	}

	var created *appointment.Appointment
	key := SlotKey(tenant.FromContext(ctx), req.DoctorID, req.Date, req.SlotLabel)

	err := b.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		// Availability writes that drop this label hold the same lock
		if b.opts.RequireDeclaredSlot {
			if err := b.checkDeclared(lockCtx, req); err != nil {
				return err
			}
		}

		// Inside the critical section re-derive the booked set
		booked, err := b.engine.BookedSlots(lockCtx, req.DoctorID, req.Date)
		if err != nil {
			return err
		}
		if _, taken := booked[req.SlotLabel]; taken {
			return ErrSlotAlreadyBooked
		}

		appt, err := b.appointments.CreateBooked(lockCtx, req.DoctorID, req.PatientID, req.Date, req.SlotLabel)
		if err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) {
				return err
			}
			return apperr.Storage("create appointment", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		return nil, lockError(err)
	}

	b.logEvent(ctx, created)
	return created, nil
}

func (b *Booker) checkDeclared(ctx context.Context, req BookingRequest) error {
	avail, err := b.engine.availability.Get(ctx, req.DoctorID, req.Date)
	if err != nil {
		if errors.Is(err, availability.ErrNotFound) {
			return ErrSlotNotDeclared
		}
		return apperr.Storage("load availability", err)
	}
	if !avail.Declares(req.SlotLabel) {
		return ErrSlotNotDeclared
	}
	return nil
}

// lockError maps a failed WithSlotLock call: a busy slot becomes
// ErrSlotBeingBooked, a cancelled wait or a Redis failure becomes a storage error.
func lockError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Storage("slot lock", err)
}

func validate(req BookingRequest) error {
	switch {
	case req.DoctorID == uuid.Nil:
		return ErrMissingDoctor
	case req.PatientID == uuid.Nil:
		return ErrMissingPatient
	case req.Date.IsZero():
		return ErrMissingDate
	case req.SlotLabel == "":
		return ErrMissingSlot
	}
	return nil
}

func (b *Booker) logEvent(ctx context.Context, appt *appointment.Appointment) {
	if b.events == nil {
		return
	}

	ev := events.Event{
		Type:        events.AppointmentBooked,
		Tenant:      tenant.FromContext(ctx),
		AggregateID: appt.ID,
		Payload: map[string]any{
			"doctor_id":  appt.DoctorID.String(),
			"patient_id": appt.PatientID.String(),
			"date":       calendar.Format(appt.Date),
			"time_slot":  appt.SlotLabel,
		},
		CreatedAt: time.Now(),
	}

	if err := b.events.Record(ctx, ev); err != nil {
		logging.FromContext(ctx).Error().Err(err).
			Str("event", ev.Type).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to record event")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrSlotAlreadyBooked):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrSlotBeingBooked):
		return metrics.OutcomeBeingBooked
	case apperr.KindOf(err) == apperr.KindStorage:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}
