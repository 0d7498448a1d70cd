package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability

	err := row.Scan(
		&a.DoctorID,
		&a.Date,
		&a.Slots,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Date = calendar.Normalize(a.Date)
	return &a, nil
}

func (r *PgRepository) Get(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT doctor_id, slot_date, slots, created_at, updated_at
		FROM availability
		WHERE doctor_id = $1 AND slot_date = $2
	`, doctorID, calendar.Normalize(date))
	return scanAvailability(row)
}

func (r *PgRepository) Upsert(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []string) (*Availability, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability (doctor_id, slot_date, slots, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (doctor_id, slot_date)
		DO UPDATE SET slots = EXCLUDED.slots,
		              updated_at = now()
		RETURNING doctor_id, slot_date, slots, created_at, updated_at
	`, doctorID, calendar.Normalize(date), slots)

	a, err := scanAvailability(row)
	if err != nil {
		return nil, fmt.Errorf("upsert availability: %w", err)
	}
	return a, nil
}

func (r *PgRepository) ListRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Availability, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT doctor_id, slot_date, slots, created_at, updated_at
		FROM availability
		WHERE doctor_id = $1
		  AND slot_date BETWEEN $2 AND $3
		ORDER BY slot_date
	`, doctorID, calendar.Normalize(from), calendar.Normalize(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
