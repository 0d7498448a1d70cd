package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/files"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/records"
)

// Requests

type SetAvailabilityRequest struct {
	Date  string   `json:"date" validate:"required"`
	Slots []string `json:"slots" validate:"required,min=1,dive,required"`
}

type BookSlotRequest struct {
	DoctorID string `json:"doctorId" validate:"required,uuid"`
	Date     string `json:"date" validate:"required"`
	TimeSlot string `json:"timeSlot" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled"`
}

type SignupRequest struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Role       string `json:"role" validate:"required,oneof=doctor patient"`
	Speciality string `json:"speciality"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type MedicineRequest struct {
	Name         string `json:"name" validate:"required"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
	Instructions string `json:"instructions"`
}

type CreatePrescriptionRequest struct {
	PatientID string            `json:"patientId" validate:"required,uuid"`
	Medicines []MedicineRequest `json:"medicines" validate:"required,min=1,dive"`
}

type BillItemRequest struct {
	Name      string `json:"name" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	CostCents int64  `json:"costCents" validate:"gte=0"`
}

type CreateBillRequest struct {
	PatientID string            `json:"patientId" validate:"required,uuid"`
	Items     []BillItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ShareFileRequest struct {
	DoctorID string `json:"doctorId" validate:"required,uuid"`
}

// Responses

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID  uuid.UUID `json:"doctorId"`
	Date      string    `json:"date"`
	Slots     []string  `json:"slots"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctorId"`
	PatientID uuid.UUID `json:"patientId"`
	Date      string    `json:"date"`
	TimeSlot  string    `json:"timeSlot"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Speciality *string   `json:"speciality,omitempty"`
}

type PrescriptionResponse struct {
	ID        uuid.UUID          `json:"id"`
	DoctorID  uuid.UUID          `json:"doctorId"`
	PatientID uuid.UUID          `json:"patientId"`
	Medicines []records.Medicine `json:"medicines"`
	CreatedAt time.Time          `json:"createdAt"`
}

type BillResponse struct {
	ID         uuid.UUID          `json:"id"`
	DoctorID   uuid.UUID          `json:"doctorId"`
	PatientID  uuid.UUID          `json:"patientId"`
	Items      []records.BillItem `json:"items"`
	TotalCents int64              `json:"totalCents"`
	Status     string             `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type FileResponse struct {
	ID          uuid.UUID   `json:"id"`
	PatientID   uuid.UUID   `json:"patientId"`
	FileName    string      `json:"fileName"`
	ContentType string      `json:"contentType"`
	SizeBytes   int64       `json:"sizeBytes"`
	Description string      `json:"description,omitempty"`
	SharedWith  []uuid.UUID `json:"sharedWith"`
	UploadedAt  time.Time   `json:"uploadedAt"`
}

func toAvailability(a *availability.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		DoctorID:  a.DoctorID,
		Date:      calendar.Format(a.Date),
		Slots:     a.Slots,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointment(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      calendar.Format(a.Date),
		TimeSlot:  a.SlotLabel,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
	}
}

func toAppointments(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointment(&list[i]))
	}
	return out
}

func toUser(u *identity.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Role:       string(u.Role),
		Speciality: u.Speciality,
	}
}

func toPrescription(p *records.Prescription) PrescriptionResponse {
	return PrescriptionResponse{
		ID:        p.ID,
		DoctorID:  p.DoctorID,
		PatientID: p.PatientID,
		Medicines: p.Medicines,
		CreatedAt: p.CreatedAt,
	}
}

func toBill(b *records.Bill) BillResponse {
	return BillResponse{
		ID:         b.ID,
		DoctorID:   b.DoctorID,
		PatientID:  b.PatientID,
		Items:      b.Items,
		TotalCents: b.TotalCents,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
	}
}

func toFile(f *files.File) FileResponse {
	shared := f.SharedWith
	if shared == nil {
		shared = []uuid.UUID{}
	}
	return FileResponse{
		ID:          f.ID,
		PatientID:   f.PatientID,
		FileName:    f.FileName,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		Description: f.Description,
		SharedWith:  shared,
		UploadedAt:  f.UploadedAt,
	}
}
