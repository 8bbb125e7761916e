package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, hospital_id, patient_name, address, mobile, appointment_date,
	appointment_time, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a   Appointment
		day time.Time
	)
	err := row.Scan(&a.ID, &a.HospitalID, &a.PatientName, &a.Address, &a.Mobile, &day,
		&a.Time, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointment: %w", apperr.ErrNoRecord)
	}
	if err != nil {
		return nil, err
	}
	a.Date = day.Format(DayLayout)
	return &a, nil
}

// LockDay takes a transaction-scoped advisory lock keyed by hospital and day.
// Outside a transaction the lock would be released immediately, so callers
// must hold one.
func (r *appointmentRepoPG) LockDay(ctx context.Context, hospitalID uuid.UUID, day string) error {
	if db.TxFromContext(ctx) == nil {
		return errors.New("lock appointment day: no transaction in context")
	}
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, hospitalID.String()+"/"+day)
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, hospital_id, patient_name, address, mobile,
			appointment_date, appointment_time)
		VALUES ($1,$2,$3,$4,$5,$6::date,$7)
		RETURNING created_at, updated_at`,
		a.ID, a.HospitalID, a.PatientName, a.Address, a.Mobile, a.Date, a.Time,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("appointment slot %s %s: %w", a.Date, a.Time, apperr.ErrDuplicate)
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *appointmentRepoPG) Move(ctx context.Context, hospitalID, id uuid.UUID, day, slot string) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET appointment_date = $3::date, appointment_time = $4, updated_at = NOW()
		WHERE id = $1 AND hospital_id = $2
		RETURNING `+apptCols, id, hospitalID, day, slot))
	if db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("appointment slot %s %s: %w", day, slot, apperr.ErrDuplicate)
	}
	return a, err
}

func (r *appointmentRepoPG) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1 AND hospital_id = $2`, id, hospitalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", id, apperr.ErrNoRecord)
	}
	return nil
}

func (r *appointmentRepoPG) CountOnDay(ctx context.Context, hospitalID uuid.UUID, day string, exclude uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE hospital_id = $1 AND appointment_date = $2::date AND id <> $3`,
		hospitalID, day, exclude).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, hospitalID uuid.UUID, day, slot string, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointment
			WHERE hospital_id = $1 AND appointment_date = $2::date AND appointment_time = $3 AND id <> $4)`,
		hospitalID, day, slot, exclude).Scan(&taken)
	return taken, err
}

func (r *appointmentRepoPG) DeleteBefore(ctx context.Context, hospitalID uuid.UUID, day string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM appointment WHERE hospital_id = $1 AND appointment_date < $2::date`, hospitalID, day)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *appointmentRepoPG) ListDay(ctx context.Context, hospitalID uuid.UUID, day string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE hospital_id = $1 AND appointment_date = $2::date
		ORDER BY appointment_time`, hospitalID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) CountsBetween(ctx context.Context, hospitalID uuid.UUID, from, to string) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_date, COUNT(*) FROM appointment
		WHERE hospital_id = $1 AND appointment_date BETWEEN $2::date AND $3::date
		GROUP BY appointment_date`, hospitalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			day time.Time
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day.Format(DayLayout)] = n
	}
	return counts, rows.Err()
}
