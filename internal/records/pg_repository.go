package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) CreatePrescription(ctx context.Context, p *Prescription) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescriptions (id, doctor_id, patient_id, medicines, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`, p.ID, p.DoctorID, p.PatientID, p.Medicines).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *PgRepository) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, doctor_id, patient_id, medicines, created_at
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Prescription, error) {
		var p Prescription
		err := row.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.Medicines, &p.CreatedAt)
		return p, err
	})
}

func (r *PgRepository) CreateBill(ctx context.Context, b *Bill) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO bills (id, doctor_id, patient_id, items, total_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, b.ID, b.DoctorID, b.PatientID, b.Items, b.TotalCents, b.Status).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

func (r *PgRepository) ListBillsByPatient(ctx context.Context, patientID uuid.UUID) ([]Bill, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, doctor_id, patient_id, items, total_cents, status, created_at
		FROM bills
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Bill, error) {
		var b Bill
		err := row.Scan(&b.ID, &b.DoctorID, &b.PatientID, &b.Items, &b.TotalCents, &b.Status, &b.CreatedAt)
		return b, err
	})
}
