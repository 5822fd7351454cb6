package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation  = "23505"
	appointmentSlotIdx = "appointments_slot_unique"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on pgx.
type PostgresStore struct {
	db pgxQuerier
}

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) BlockedDaysBetween(ctx context.Context, from, to string) ([]BlockedDay, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), COALESCE(reason, '')
		FROM blocked_days
		WHERE day BETWEEN $1::date AND $2::date
		ORDER BY day
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query blocked days: %w", err)
	}
	defer rows.Close()
	var out []BlockedDay
	for rows.Next() {
		var d BlockedDay
		if err := rows.Scan(&d.Date, &d.Reason); err != nil {
			return nil, fmt.Errorf("scheduling: scan blocked day: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsDayBlocked(ctx context.Context, date string) (bool, error) {
	var blocked bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blocked_days WHERE day = $1::date)`, date).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("scheduling: check blocked day: %w", err)
	}
	return blocked, nil
}

func (s *PostgresStore) BookedTimes(ctx context.Context, date string) ([]time.Time, error) {
	rows, err := s.db.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE appointment_date = $1::date AND status <> 'cancelled'
	`, date)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query booked times: %w", err)
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scheduling: scan booked time: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *PostgresStore) BlockedSlotTimes(ctx context.Context, date string, location Location) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT slot_time
		FROM blocked_slots
		WHERE day = $1::date AND location = $2
		ORDER BY slot_time
	`, date, string(location))
	if err != nil {
		return nil, fmt.Errorf("scheduling: query blocked slots: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("scheduling: scan blocked slot: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindPatientByCedula(ctx context.Context, cedula string) (*Patient, error) {
	var p Patient
	err := s.db.QueryRow(ctx, `
		SELECT id, cedula, first_name, COALESCE(middle_name, ''), last_name, COALESCE(second_last_name, ''),
		       phone, COALESCE(email, ''), COALESCE(address, ''), COALESCE(city, ''), created_at, updated_at
		FROM patients
		WHERE cedula = $1
	`, cedula).Scan(
		&p.ID, &p.Cedula, &p.FirstName, &p.MiddleName, &p.LastName, &p.SecondLastName,
		&p.Phone, &p.Email, &p.Address, &p.City, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: find patient: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GeneratePatientID(ctx context.Context, firstName, lastName string) (string, error) {
	var id string
	if err := s.db.QueryRow(ctx, `SELECT generate_patient_id($1, $2)`, firstName, lastName).Scan(&id); err != nil {
		return "", fmt.Errorf("scheduling: generate patient id: %w", err)
	}
	return id, nil
}

// UpsertPatient keeps the stored email, address and city when the new
// booking leaves them blank.
func (s *PostgresStore) UpsertPatient(ctx context.Context, p Patient) (*Patient, error) {
	out := p
	err := s.db.QueryRow(ctx, `
		INSERT INTO patients (id, cedula, first_name, middle_name, last_name, second_last_name, phone, email, address, city)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
		ON CONFLICT (cedula) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			middle_name = EXCLUDED.middle_name,
			last_name = EXCLUDED.last_name,
			second_last_name = EXCLUDED.second_last_name,
			phone = EXCLUDED.phone,
			email = COALESCE(EXCLUDED.email, patients.email),
			address = COALESCE(EXCLUDED.address, patients.address),
			city = COALESCE(EXCLUDED.city, patients.city),
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, p.ID, p.Cedula, p.FirstName, p.MiddleName, p.LastName, p.SecondLastName, p.Phone, p.Email, p.Address, p.City,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: upsert patient: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, scheduled_at, appointment_date, appointment_time, studies, location, status)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
		RETURNING created_at
	`, a.ID, a.PatientID, a.ScheduledAt, a.Date, a.Time, a.Studies, string(a.Location), a.Status).Scan(&a.CreatedAt)
	if isSlotViolation(err) {
		return nil, ErrSlotTaken
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return &a, nil
}

func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == appointmentSlotIdx
}

func (s *PostgresStore) AddBlockedDay(ctx context.Context, day BlockedDay) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocked_days (day, reason) VALUES ($1::date, NULLIF($2, ''))
		ON CONFLICT (day) DO UPDATE SET reason = EXCLUDED.reason
	`, day.Date, day.Reason)
	if err != nil {
		return fmt.Errorf("scheduling: add blocked day: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveBlockedDay(ctx context.Context, date string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM blocked_days WHERE day = $1::date`, date); err != nil {
		return fmt.Errorf("scheduling: remove blocked day: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddBlockedSlot(ctx context.Context, slot BlockedSlot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocked_slots (day, slot_time, location) VALUES ($1::date, $2, $3)
		ON CONFLICT (day, slot_time, location) DO NOTHING
	`, slot.Date, slot.Time, string(slot.Location))
	if err != nil {
		return fmt.Errorf("scheduling: add blocked slot: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveBlockedSlot(ctx context.Context, slot BlockedSlot) error {
	_, err := s.db.Exec(ctx, `DELETE FROM blocked_slots WHERE day = $1::date AND slot_time = $2 AND location = $3`,
		slot.Date, slot.Time, string(slot.Location))
	if err != nil {
		return fmt.Errorf("scheduling: remove blocked slot: %w", err)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
