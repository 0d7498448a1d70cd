package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/db"
)

const fileColumns = `id, patient_id, file_name, object_key, content_type, size_bytes, description, shared_with, uploaded_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanFile(row pgx.Row) (*File, error) {
	var f File

	err := row.Scan(
		&f.ID,
		&f.PatientID,
		&f.FileName,
		&f.ObjectKey,
		&f.ContentType,
		&f.SizeBytes,
		&f.Description,
		&f.SharedWith,
		&f.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return &f, nil
}

func (r *PgRepository) list(ctx context.Context, sql string, args ...any) ([]File, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Create(ctx context.Context, f *File) error {
	if f.SharedWith == nil {
		f.SharedWith = []uuid.UUID{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_files (id, patient_id, file_name, object_key, content_type, size_bytes, description, shared_with, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING uploaded_at
	`, f.ID, f.PatientID, f.FileName, f.ObjectKey, f.ContentType, f.SizeBytes, f.Description, f.SharedWith).Scan(&f.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert medical file: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+fileColumns+`
		FROM medical_files
		WHERE id = $1
	`, id)
	return scanFile(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]File, error) {
	return r.list(ctx, `
		SELECT `+fileColumns+`
		FROM medical_files
		WHERE patient_id = $1
		ORDER BY uploaded_at DESC
	`, patientID)
}

func (r *PgRepository) ListSharedWith(ctx context.Context, patientID, doctorID uuid.UUID) ([]File, error) {
	return r.list(ctx, `
		SELECT `+fileColumns+`
		FROM medical_files
		WHERE patient_id = $1
		  AND $2 = ANY(shared_with)
		ORDER BY uploaded_at DESC
	`, patientID, doctorID)
}

func (r *PgRepository) Share(ctx context.Context, id, doctorID uuid.UUID) (*File, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medical_files
		SET shared_with = CASE
		        WHEN $2 = ANY(shared_with) THEN shared_with
		        ELSE array_append(shared_with, $2)
		    END
		WHERE id = $1
		RETURNING `+fileColumns, id, doctorID)
	return scanFile(row)
}
