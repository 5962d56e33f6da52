package schedule

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store. The unique index on
// (doctor_id, visit_date, slot_time) backs up the engine's in-lock
// conflict check at the storage layer.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Init creates the appointments table when it does not exist yet.
func (s *PgStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS appointments (
			id           BIGSERIAL PRIMARY KEY,
			user_id      BIGINT NOT NULL,
			doctor_id    BIGINT NOT NULL,
			visit_date   TEXT NOT NULL,
			slot_time    TEXT NOT NULL,
			patient_name TEXT NOT NULL,
			phone        TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS appointments_doctor_slot_idx
			ON appointments (doctor_id, visit_date, slot_time);
	`)
	if err != nil {
		return fmt.Errorf("init appointments schema: %w", err)
	}
	return nil
}

func (s *PgStore) Append(ctx context.Context, a Appointment) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO appointments (user_id, doctor_id, visit_date, slot_time, patient_name, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, a.UserID, a.DoctorID, a.Date, a.Time, a.PatientName, a.Phone, a.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert appointment: %w", err)
	}
	return id, nil
}

func (s *PgStore) BookedTimes(ctx context.Context, doctorID int64, date string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_time
		FROM appointments
		WHERE doctor_id = $1 AND visit_date = $2
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("query booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

func (s *PgStore) ByUser(ctx context.Context, userID int64) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, doctor_id, visit_date, slot_time, patient_name, phone, created_at
		FROM appointments
		WHERE user_id = $1
		ORDER BY visit_date, slot_time
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.DoctorID,
		&a.Date,
		&a.Time,
		&a.PatientName,
		&a.Phone,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
