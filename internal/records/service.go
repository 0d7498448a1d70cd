package records

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/identity"
)

var (
	ErrNoMedicines  = apperr.Validation("at least one medicine is required")
	ErrBadMedicine  = apperr.Validation("each medicine needs a name and a positive quantity")
	ErrNoBillItems  = apperr.Validation("at least one bill item is required")
	ErrBadBillItem  = apperr.Validation("each bill item needs a name, a positive quantity and a non-negative cost")
	ErrMissingParty = apperr.Validation("doctor and patient ids are required")
)

// Patients confirms the patient a record is written for.
type Patients interface {
	RequireRole(ctx context.Context, id uuid.UUID, role identity.Role) (*identity.User, error)
}

type Service struct {
	repo     Repository
	patients Patients
}

func NewService(repo Repository, patients Patients) *Service {
	return &Service{repo: repo, patients: patients}
}

func (s *Service) CreatePrescription(ctx context.Context, doctorID, patientID uuid.UUID, medicines []Medicine) (*Prescription, error) {
	if doctorID == uuid.Nil || patientID == uuid.Nil {
		return nil, ErrMissingParty
	}
	if len(medicines) == 0 {
		return nil, ErrNoMedicines
	}
	for i := range medicines {
		medicines[i].Name = strings.TrimSpace(medicines[i].Name)
		if medicines[i].Name == "" || medicines[i].Quantity <= 0 {
			return nil, ErrBadMedicine
		}
	}
	if err := s.checkPatient(ctx, patientID); err != nil {
		return nil, err
	}

	p := &Prescription{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Medicines: medicines,
	}
	if err := s.repo.CreatePrescription(ctx, p); err != nil {
		return nil, apperr.Storage("create prescription", err)
	}
	return p, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, patientID uuid.UUID) ([]Prescription, error) {
	list, err := s.repo.ListPrescriptionsByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Storage("list prescriptions", err)
	}
	return list, nil
}

// CreateBill records a pending bill. The total is computed here, never taken from the caller.
func (s *Service) CreateBill(ctx context.Context, doctorID, patientID uuid.UUID, items []BillItem) (*Bill, error) {
	if doctorID == uuid.Nil || patientID == uuid.Nil {
		return nil, ErrMissingParty
	}
	if len(items) == 0 {
		return nil, ErrNoBillItems
	}
	for i := range items {
		items[i].Name = strings.TrimSpace(items[i].Name)
		if items[i].Name == "" || items[i].Quantity <= 0 || items[i].CostCents < 0 {
			return nil, ErrBadBillItem
		}
	}
	if err := s.checkPatient(ctx, patientID); err != nil {
		return nil, err
	}

	b := &Bill{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		PatientID:  patientID,
		Items:      items,
		TotalCents: Total(items),
		Status:     BillPending,
	}
	if err := s.repo.CreateBill(ctx, b); err != nil {
		return nil, apperr.Storage("create bill", err)
	}
	return b, nil
}

func (s *Service) ListBills(ctx context.Context, patientID uuid.UUID) ([]Bill, error) {
	list, err := s.repo.ListBillsByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Storage("list bills", err)
	}
	return list, nil
}

func (s *Service) checkPatient(ctx context.Context, patientID uuid.UUID) error {
	if s.patients == nil {
		return nil
	}
	_, err := s.patients.RequireRole(ctx, patientID, identity.RolePatient)
	return err
}
