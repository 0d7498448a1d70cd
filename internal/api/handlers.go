package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/scheduling"
)

const defaultAvailabilityWindow = 30 * 24 * time.Hour

func availableSlotsHandler(engine *scheduling.Engine, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gate.Authorize(access.ActorFromContext(r.Context()), access.SlotsRead, access.Resource{}); err != nil {
			writeError(w, r, err)
			return
		}

		doctorID, err := uuid.Parse(r.URL.Query().Get("doctorId"))
		if err != nil {
			writeError(w, r, apperr.Validation("doctorId must be a valid UUID"))
			return
		}
		date, err := calendar.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		slots, err := engine.ComputeAvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"slots":   slots,
		})
	}
}

func setAvailabilityHandler(svc *availability.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.AvailabilityWrite, access.Resource{DoctorID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		var req SetAvailabilityRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}

		a, err := svc.SetAvailability(r.Context(), actor.UserID, date, req.Slots)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      "Availability set successfully",
			"availability": toAvailability(a),
		})
	}
}

func listAvailabilityHandler(svc *availability.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.AvailabilityRead, access.Resource{DoctorID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		from := calendar.Today(time.Now())
		if raw := r.URL.Query().Get("from"); raw != "" {
			d, err := calendar.ParseDate(raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			from = d
		}
		to := from.Add(defaultAvailabilityWindow)
		if raw := r.URL.Query().Get("to"); raw != "" {
			d, err := calendar.ParseDate(raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			to = d
		}

		list, err := svc.ListAvailability(r.Context(), actor.UserID, from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]AvailabilityResponse, 0, len(list))
		for i := range list {
			out = append(out, toAvailability(&list[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"availability": out,
		})
	}
}

func bookSlotHandler(booker *scheduling.Booker, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.AppointmentBook, access.Resource{PatientID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		var req BookSlotRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}

		appt, err := booker.BookSlot(r.Context(), scheduling.BookingRequest{
			DoctorID:  uuid.MustParse(req.DoctorID),
			PatientID: actor.UserID,
			Date:      date,
			SlotLabel: req.TimeSlot,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success":     true,
			"message":     "Appointment booked successfully",
			"appointment": toAppointment(appt),
		})
	}
}

// bookedSlotsHandler lists the caller's appointments: a doctor's as doctor,
// a patient's as patient. Admins name the doctor or patient in the query.
func bookedSlotsHandler(svc *appointment.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		res := access.Resource{}
		switch {
		case actor.Is(identity.RoleDoctor):
			res.DoctorID = actor.UserID
		case actor.Is(identity.RolePatient):
			res.PatientID = actor.UserID
		default:
			res.DoctorID, _ = uuid.Parse(q.Get("doctorId"))
			res.PatientID, _ = uuid.Parse(q.Get("patientId"))
		}
		if err := gate.Authorize(actor, access.AppointmentList, res); err != nil {
			writeError(w, r, err)
			return
		}

		var (
			list []appointment.Appointment
			err  error
		)
		switch {
		case res.DoctorID != uuid.Nil:
			list, err = svc.ListByDoctor(r.Context(), res.DoctorID, limit, offset)
		case res.PatientID != uuid.Nil:
			list, err = svc.ListByPatient(r.Context(), res.PatientID, limit, offset)
		default:
			err = apperr.Validation("doctorId or patientId is required")
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"appointments": toAppointments(list),
		})
	}
}

func getAppointmentHandler(svc *appointment.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, ok := loadAppointment(w, r, svc, gate, access.AppointmentRead)
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"appointment": toAppointment(appt),
		})
	}
}

func updateStatusHandler(svc *appointment.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, ok := loadAppointment(w, r, svc, gate, access.AppointmentStatus)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		updated, err := svc.UpdateStatus(r.Context(), appt.ID, appointment.Status(req.Status))
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"appointment": toAppointment(updated),
		})
	}
}

func loadAppointment(w http.ResponseWriter, r *http.Request, svc *appointment.Service, gate *access.Gate, action access.Action) (*appointment.Appointment, bool) {
	actor := access.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, r, access.ErrMissingToken)
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, errInvalidID)
		return nil, false
	}

	appt, err := svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	err = gate.Authorize(actor, action, access.Resource{DoctorID: appt.DoctorID, PatientID: appt.PatientID})
	if err != nil {
		// do not reveal appointments of other people
		if errors.Is(err, access.ErrForbidden) && action == access.AppointmentRead {
			err = appointment.ErrAppointmentNotFound
		}
		writeError(w, r, err)
		return nil, false
	}
	return appt, true
}

func actorID(a *access.Actor) uuid.UUID {
	if a == nil {
		return uuid.Nil
	}
	return a.UserID
}
