package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/db"
)

// =========== Active Patient Repository ===========

type activeRepoPG struct{ pool *pgxpool.Pool }

func NewActiveRepoPG(pool *pgxpool.Pool) ActiveRepository { return &activeRepoPG{pool: pool} }

func (r *activeRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const activeCols = `id, patient_id, hospital_id, status, date_of_admission, assigned_doctor_name,
	name, address, mobile, treatment_records, created_at, updated_at`

func (r *activeRepoPG) scanActive(row pgx.Row) (*ActivePatient, error) {
	var (
		p       ActivePatient
		status  string
		records []byte
	)
	err := row.Scan(&p.ID, &p.PatientID, &p.HospitalID, &status, &p.DateOfAdmission, &p.AssignedDoctorName,
		&p.Name, &p.Address, &p.Mobile, &records, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active patient: %w", apperr.ErrNoRecord)
	}
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if err := json.Unmarshal(records, &p.TreatmentRecords); err != nil {
		return nil, fmt.Errorf("decode treatment records of %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *activeRepoPG) Create(ctx context.Context, p *ActivePatient) error {
	p.ID = uuid.New()
	records, err := json.Marshal(p.TreatmentRecords)
	if err != nil {
		return fmt.Errorf("encode treatment records: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO active_patient (id, patient_id, hospital_id, status, date_of_admission,
			assigned_doctor_name, name, address, mobile, treatment_records)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.HospitalID, string(p.Status), p.DateOfAdmission,
		p.AssignedDoctorName, p.Name, p.Address, p.Mobile, records,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("active patient %s: %w", p.PatientID, apperr.ErrDuplicate)
	}
	return err
}

func (r *activeRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*ActivePatient, error) {
	return r.scanActive(r.conn(ctx).QueryRow(ctx,
		`SELECT `+activeCols+` FROM active_patient WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *activeRepoPG) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*ActivePatient, error) {
	return r.scanActive(r.conn(ctx).QueryRow(ctx,
		`SELECT `+activeCols+` FROM active_patient WHERE id = $1 AND hospital_id = $2 FOR UPDATE`, id, hospitalID))
}

func (r *activeRepoPG) ExistsByPatientID(ctx context.Context, hospitalID uuid.UUID, patientID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM active_patient WHERE patient_id = $1 AND hospital_id = $2)`,
		patientID, hospitalID).Scan(&exists)
	return exists, err
}

func (r *activeRepoPG) UpdateRecords(ctx context.Context, hospitalID, id uuid.UUID, records []TreatmentRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode treatment records: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE active_patient SET treatment_records = $1, updated_at = NOW()
		WHERE id = $2 AND hospital_id = $3`, data, id, hospitalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("active patient %s: %w", id, apperr.ErrNoRecord)
	}
	return nil
}

func (r *activeRepoPG) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM active_patient WHERE id = $1 AND hospital_id = $2`, id, hospitalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("active patient %s: %w", id, apperr.ErrNoRecord)
	}
	return nil
}

func (r *activeRepoPG) ListPending(ctx context.Context, hospitalID uuid.UUID) ([]*ActivePatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+activeCols+` FROM active_patient
		WHERE hospital_id = $1 AND status = $2
		ORDER BY date_of_admission DESC`, hospitalID, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ActivePatient
	for rows.Next() {
		p, err := r.scanActive(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Patient History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const summaryCols = `s.date_of_admission, s.date_of_discharge, s.assigned_doctor_name,
	s.doctor_fees, s.room_cost, s.bottle_cost, s.injection_cost, s.medicine_cost,
	s.operation_cost, s.other_charges, s.total_bill`

// scanSummary reads summaryCols, preceded by any extra leading columns.
func scanSummary(row pgx.Row, s *AdmissionSummary, leading ...interface{}) error {
	var discharged *time.Time
	dest := append(leading, &s.DateOfAdmission, &discharged, &s.AssignedDoctorName,
		&s.DoctorFees, &s.RoomCost, &s.BottleCost, &s.InjectionCost, &s.MedicineCost,
		&s.OperationCost, &s.OtherCharges, &s.TotalBill)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if discharged != nil {
		s.DateOfDischarge = *discharged
	}
	return nil
}

func (r *historyRepoPG) ExistsAnywhere(ctx context.Context, patientID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient_history WHERE patient_id = $1)`, patientID).Scan(&exists)
	return exists, err
}

func (r *historyRepoPG) AppendAdmission(ctx context.Context, h *PatientHistory, s AdmissionSummary) error {
	q := r.conn(ctx)

	// The upsert row-locks the history, which serializes seq allocation below.
	err := q.QueryRow(ctx, `
		INSERT INTO patient_history (id, patient_id, hospital_id, name, address, mobile)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (patient_id, hospital_id) DO UPDATE
			SET name = EXCLUDED.name, address = EXCLUDED.address, mobile = EXCLUDED.mobile, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), h.PatientID, h.HospitalID, h.Name, h.Address, h.Mobile,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert patient history: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO admission_summary (id, history_id, seq, date_of_admission, date_of_discharge,
			assigned_doctor_name, doctor_fees, room_cost, bottle_cost, injection_cost,
			medicine_cost, operation_cost, other_charges, total_bill)
		VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM admission_summary WHERE history_id = $2),
			$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		uuid.New(), h.ID, s.DateOfAdmission, s.DateOfDischarge, s.AssignedDoctorName,
		s.DoctorFees, s.RoomCost, s.BottleCost, s.InjectionCost, s.MedicineCost,
		s.OperationCost, s.OtherCharges, s.TotalBill)
	if err != nil {
		return fmt.Errorf("insert admission summary: %w", err)
	}
	h.Admissions = append(h.Admissions, s)
	return nil
}

func (r *historyRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*PatientHistory, error) {
	q := r.conn(ctx)

	rows, err := q.Query(ctx, `
		SELECT id, patient_id, hospital_id, name, address, mobile, created_at, updated_at
		FROM patient_history WHERE hospital_id = $1 ORDER BY created_at`, hospitalID)
	if err != nil {
		return nil, err
	}
	var (
		items []*PatientHistory
		byID  = make(map[uuid.UUID]*PatientHistory)
	)
	for rows.Next() {
		var h PatientHistory
		if err := rows.Scan(&h.ID, &h.PatientID, &h.HospitalID, &h.Name, &h.Address, &h.Mobile,
			&h.CreatedAt, &h.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		h.Admissions = []AdmissionSummary{}
		items = append(items, &h)
		byID[h.ID] = &h
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT s.history_id, `+summaryCols+`
		FROM admission_summary s JOIN patient_history h ON h.id = s.history_id
		WHERE h.hospital_id = $1
		ORDER BY s.history_id, s.seq`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			historyID uuid.UUID
			s         AdmissionSummary
		)
		if err := scanSummary(rows, &s, &historyID); err != nil {
			return nil, err
		}
		if h, ok := byID[historyID]; ok {
			h.Admissions = append(h.Admissions, s)
		}
	}
	return items, rows.Err()
}

func (r *historyRepoPG) AdmissionsBetween(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]AdmissionSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+summaryCols+`
		FROM admission_summary s JOIN patient_history h ON h.id = s.history_id
		WHERE h.hospital_id = $1 AND s.date_of_admission >= $2 AND s.date_of_admission < $3
		ORDER BY s.date_of_admission`, hospitalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AdmissionSummary
	for rows.Next() {
		var s AdmissionSummary
		if err := scanSummary(rows, &s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
