package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/records"
)

// patientParam returns the patientId query parameter, defaulting to the caller.
func patientParam(r *http.Request, actor *access.Actor) (uuid.UUID, error) {
	raw := r.URL.Query().Get("patientId")
	if raw == "" {
		return actorID(actor), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("patientId must be a valid UUID")
	}
	return id, nil
}

func createPrescriptionHandler(svc *records.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.PrescriptionWrite, access.Resource{DoctorID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		var req CreatePrescriptionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		medicines := make([]records.Medicine, 0, len(req.Medicines))
		for _, m := range req.Medicines {
			medicines = append(medicines, records.Medicine{Name: m.Name, Quantity: m.Quantity, Instructions: m.Instructions})
		}

		p, err := svc.CreatePrescription(r.Context(), actor.UserID, uuid.MustParse(req.PatientID), medicines)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success":      true,
			"prescription": toPrescription(p),
		})
	}
}

func listPrescriptionsHandler(svc *records.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		patientID, err := patientParam(r, actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := gate.Authorize(actor, access.PrescriptionRead, access.Resource{PatientID: patientID}); err != nil {
			writeError(w, r, err)
			return
		}

		list, err := svc.ListPrescriptions(r.Context(), patientID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]PrescriptionResponse, 0, len(list))
		for i := range list {
			out = append(out, toPrescription(&list[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"prescriptions": out,
		})
	}
}

func createBillHandler(svc *records.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.BillWrite, access.Resource{DoctorID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		var req CreateBillRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		items := make([]records.BillItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, records.BillItem{Name: it.Name, Quantity: it.Quantity, CostCents: it.CostCents})
		}

		b, err := svc.CreateBill(r.Context(), actor.UserID, uuid.MustParse(req.PatientID), items)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"bill":    toBill(b),
		})
	}
}

// listBillsHandler shows a patient their bills and a doctor the bills they issued.
func listBillsHandler(svc *records.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		patientID, err := patientParam(r, actor)
		if err != nil {
			writeError(w, r, err)
			return
		}

		res := access.Resource{PatientID: patientID}
		if actor.Is(identity.RoleDoctor) {
			res.DoctorID = actor.UserID
		}
		if err := gate.Authorize(actor, access.BillRead, res); err != nil {
			writeError(w, r, err)
			return
		}

		list, err := svc.ListBills(r.Context(), patientID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]BillResponse, 0, len(list))
		for i := range list {
			if res.DoctorID != uuid.Nil && list[i].DoctorID != res.DoctorID {
				continue
			}
			out = append(out, toBill(&list[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"bills":   out,
		})
	}
}
