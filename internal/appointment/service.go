package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

var (
	ErrInvalidStatus           = apperr.Validation("status must be one of booked, completed, cancelled")
	ErrInvalidStatusTransition = apperr.Conflict("invalid_status_transition", "Only booked appointments can be completed or cancelled")
)

type Service struct {
	repo   Repository
	events events.Recorder
}

func NewService(repo Repository, rec events.Recorder) *Service {
	return &Service{
		repo:   repo,
		events: rec,
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, apperr.Storage("load appointment", err)
	}
	return appt, nil
}

// ListByDoctor returns a doctor's appointments, newest date first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	list, err := s.repo.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list appointments by doctor", err)
	}
	return list, nil
}

// ListByPatient returns a patient's appointments, newest date first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	list, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list appointments by patient", err)
	}
	return list, nil
}

// UpdateStatus completes or cancels a booked appointment. A cancelled
// appointment frees its slot for booking again.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransition(to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// changed underneath us
			return nil, ErrInvalidStatusTransition
		}
		return nil, apperr.Storage("update appointment status", err)
	}

	s.logEvent(ctx, updated.ID, events.AppointmentStatusChanged, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// CompletePast marks booked appointments dated before today as completed.
// Intended to be called by the status worker periodically, once per tenant.
func (s *Service) CompletePast(ctx context.Context, today time.Time) (int, error) {
	candidates, err := s.repo.ListBookedBefore(ctx, calendar.Normalize(today))
	if err != nil {
		return 0, apperr.Storage("find past booked appointments", err)
	}

	log := logging.FromContext(ctx)
	done := 0
	for _, appt := range candidates {
		_, err := s.repo.UpdateStatus(ctx, appt.ID, StatusBooked, StatusCompleted)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete appointment")
			}
			continue
		}
		done++
		s.logEvent(ctx, appt.ID, events.AppointmentStatusChanged, map[string]any{
			"from":   string(StatusBooked),
			"to":     string(StatusCompleted),
			"reason": "worker",
		})
	}

	return done, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}

	ev := events.Event{
		Type:        eventType,
		Tenant:      tenant.FromContext(ctx),
		AggregateID: appointmentID,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}

	if err := s.events.Record(ctx, ev); err != nil {
		logging.FromContext(ctx).Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to record event")
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
