package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

var (
	ErrNoSlots           = apperr.Validation("slots must contain at least one time slot")
	ErrEmptySlotLabel    = apperr.Validation("slot labels must not be empty")
	ErrMissingDoctor     = apperr.Validation("doctor id is required")
	ErrMissingDate       = apperr.Validation("date is required")
	ErrInvalidRange      = apperr.Validation("from must not be after to")
	ErrBookedSlotRemoved = apperr.Conflict("booked_slot_removed", "Cannot remove a slot that is already booked")
)

// BookedSlotSource reports the labels currently booked for a doctor on a date.
type BookedSlotSource interface {
	BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]struct{}, error)
}

// SlotGuard serializes availability writes with bookings.
type SlotGuard interface {
	// GuardDay runs fn exclusively of other guarded writes for the doctor and date.
	GuardDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error
	// GuardSlots runs fn while no booking for labels can be in flight.
	GuardSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, labels []string, fn func(ctx context.Context) error) error
}

type Options struct {
	// BlockOrphaningSlots rejects updates that drop a label which is already booked.
	BlockOrphaningSlots bool
	// Guard makes the orphan check and the write atomic with respect to
	// bookings. Without it the check is best-effort.
	Guard SlotGuard
}

type Service struct {
	repo    Repository
	booked  BookedSlotSource
	events  events.Recorder
	metrics *metrics.Metrics
	opts    Options
}

// NewService wires the availability service. booked may be nil when
// BlockOrphaningSlots is off; rec and m may be nil.
func NewService(repo Repository, booked BookedSlotSource, rec events.Recorder, m *metrics.Metrics, opts Options) *Service {
	return &Service{
		repo:    repo,
		booked:  booked,
		events:  rec,
		metrics: m,
		opts:    opts,
	}
}

// SetAvailability declares the doctor's slots for date, replacing any earlier
// declaration. Appointments already booked on dropped labels are kept, or the
// update is rejected with ErrBookedSlotRemoved when BlockOrphaningSlots is set.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) (*Availability, error) {
	if doctorID == uuid.Nil {
		return nil, ErrMissingDoctor
	}
	if date.IsZero() {
		return nil, ErrMissingDate
	}
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}
	for _, label := range slots {
		if label == "" {
			return nil, ErrEmptySlotLabel
		}
	}
	date = calendar.Normalize(date)

	var (
		a   *Availability
		err error
	)
	if s.opts.BlockOrphaningSlots && s.booked != nil {
		a, err = s.replaceChecked(ctx, doctorID, date, slots)
	} else {
		a, err = s.save(ctx, doctorID, date, slots)
	}
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	if dups := a.DuplicateLabels(); len(dups) > 0 {
		log.Warn().
			Str("doctor_id", doctorID.String()).
			Str("date", calendar.Format(date)).
			Strs("labels", dups).
			Msg("availability declares duplicate slot labels")
	}

	s.metrics.ObserveAvailabilityUpdate()
	s.logEvent(ctx, doctorID, map[string]any{
		"date":  calendar.Format(date),
		"slots": a.Slots,
	})

	return a, nil
}

func (s *Service) save(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) (*Availability, error) {
	a, err := s.repo.Upsert(ctx, doctorID, date, slots)
	if err != nil {
		return nil, apperr.Storage("save availability", err)
	}
	return a, nil
}

// replaceChecked writes slots unless that would orphan a booked appointment.
// With a guard, the day lock keeps the current declaration stable and the
// slot locks of the dropped labels keep bookings out until the write is done.
func (s *Service) replaceChecked(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) (*Availability, error) {
	var a *Availability
	replace := func(ctx context.Context) error {
		if err := s.checkOrphans(ctx, doctorID, date, slots); err != nil {
			return err
		}
		var err error
		a, err = s.save(ctx, doctorID, date, slots)
		return err
	}

	guard := s.opts.Guard
	if guard == nil {
		if err := replace(ctx); err != nil {
			return nil, err
		}
		return a, nil
	}

	err := guard.GuardDay(ctx, doctorID, date, func(ctx context.Context) error {
		dropped, err := s.droppedLabels(ctx, doctorID, date, slots)
		if err != nil {
			return err
		}
		return guard.GuardSlots(ctx, doctorID, date, dropped, replace)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// droppedLabels lists the labels of the current declaration missing from slots.
func (s *Service) droppedLabels(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) ([]string, error) {
	current, err := s.repo.Get(ctx, doctorID, date)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("load availability", err)
	}

	keep := make(map[string]struct{}, len(slots))
	for _, l := range slots {
		keep[l] = struct{}{}
	}
	var dropped []string
	for _, l := range current.Slots {
		if _, ok := keep[l]; !ok {
			dropped = append(dropped, l)
		}
	}
	return dropped, nil
}

func (s *Service) checkOrphans(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) error {
	booked, err := s.booked.BookedSlots(ctx, doctorID, date)
	if err != nil {
		return err
	}
	if len(booked) == 0 {
		return nil
	}

	keep := make(map[string]struct{}, len(slots))
	for _, l := range slots {
		keep[l] = struct{}{}
	}
	for label := range booked {
		if _, ok := keep[label]; !ok {
			return ErrBookedSlotRemoved
		}
	}
	return nil
}

// GetAvailability returns ErrNotFound when the doctor declared nothing for date.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	if doctorID == uuid.Nil {
		return nil, ErrMissingDoctor
	}
	if date.IsZero() {
		return nil, ErrMissingDate
	}

	a, err := s.repo.Get(ctx, doctorID, date)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Storage("load availability", err)
	}
	return a, nil
}

func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Availability, error) {
	if doctorID == uuid.Nil {
		return nil, ErrMissingDoctor
	}
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingDate
	}
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	list, err := s.repo.ListRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, apperr.Storage("list availability", err)
	}
	return list, nil
}

func (s *Service) logEvent(ctx context.Context, doctorID uuid.UUID, payload map[string]any) {
	if s.events == nil {
		return
	}
	ev := events.Event{
		Type:        events.AvailabilitySet,
		Tenant:      tenant.FromContext(ctx),
		AggregateID: doctorID,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
	if err := s.events.Record(ctx, ev); err != nil {
		logging.FromContext(ctx).Error().Err(err).
			Str("event", ev.Type).
			Str("doctor_id", doctorID.String()).
			Msg("failed to record event")
	}
}
