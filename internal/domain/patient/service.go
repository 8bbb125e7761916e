package patient

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/db"
	"github.com/frontdesk/frontdesk/internal/platform/websocket"
)

// Event types pushed to the hospital's desks.
const (
	EventAdmitted   = "patient.admitted"
	EventUpdated    = "patient.updated"
	EventDischarged = "patient.discharged"
)

type Service struct {
	tx           db.Transactor
	patients     ActiveRepository
	history      HistoryRepository
	appointments AppointmentRemover
	loc          *time.Location
	events       websocket.Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(tx db.Transactor, patients ActiveRepository, history HistoryRepository,
	appointments AppointmentRemover, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		tx:           tx,
		patients:     patients,
		history:      history,
		appointments: appointments,
		loc:          loc,
		events:       websocket.Discard{},
		logger:       logger.With().Str("component", "patient").Logger(),
		now:          time.Now,
	}
}

// SetPublisher sends roster changes to p once they have committed.
func (s *Service) SetPublisher(p websocket.Publisher) {
	if p == nil {
		p = websocket.Discard{}
	}
	s.events = p
}

func (s *Service) publish(ctx context.Context, typ string, hospitalID, id uuid.UUID, data interface{}) {
	ev := websocket.NewEvent(typ, hospitalID, "Patient", id.String(), data)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("type", typ).Msg("event not published")
	}
}

func requireHospital(hospitalID uuid.UUID) error {
	if hospitalID == uuid.Nil {
		return apperr.Unauthorized("")
	}
	return nil
}

// -- Admission --

// Admit validates the intake form and creates an active patient. A supplied
// PatientID readmits a patient known to the history; a supplied AppointmentID
// is deleted in the same transaction.
func (s *Service) Admit(ctx context.Context, hospitalID uuid.UUID, req AdmitRequest) (*ActivePatient, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	p := &ActivePatient{
		PatientID:          req.PatientID,
		HospitalID:         hospitalID,
		Status:             StatusPending,
		DateOfAdmission:    NormalizeDate(now),
		AssignedDoctorName: req.AssignedDoctorName,
		Name:               req.Name,
		Address:            req.Address,
		Mobile:             req.Mobile,
		TreatmentRecords:   req.TreatmentRecords,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if req.PatientID != "" {
			known, err := s.history.ExistsAnywhere(ctx, req.PatientID)
			if err != nil {
				return err
			}
			if !known {
				return apperr.NotFound("Patient ID not found in records")
			}
			active, err := s.patients.ExistsByPatientID(ctx, hospitalID, req.PatientID)
			if err != nil {
				return err
			}
			if active {
				return apperr.Conflict("Patient is already active in this hospital")
			}
		} else {
			p.PatientID = NewPatientID(now.In(s.loc))
		}

		if req.AppointmentID != nil {
			err := s.appointments.Delete(ctx, hospitalID, *req.AppointmentID)
			if apperr.IsNoRecord(err) {
				return apperr.NotFound("Appointment not found")
			}
			if err != nil {
				return err
			}
		}

		err := s.patients.Create(ctx, p)
		if apperr.IsDuplicate(err) {
			return apperr.Conflict("Patient is already active in this hospital")
		}
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("admit patient", err)
	}

	s.logger.Info().
		Str("hospital_id", hospitalID.String()).
		Str("patient_id", p.PatientID).
		Bool("readmission", req.PatientID != "").
		Bool("from_appointment", req.AppointmentID != nil).
		Msg("patient admitted")
	s.publish(ctx, EventAdmitted, hospitalID, p.ID, p)
	return p, nil
}

// -- Treatment Records --

func (s *Service) AppendRecord(ctx context.Context, hospitalID, id uuid.UUID, rec TreatmentRecord) (*ActivePatient, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	rec.normalize()
	if err := validateRecord("Treatment record", rec, true); err != nil {
		return nil, err
	}

	var p *ActivePatient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetForUpdate(ctx, hospitalID, id)
		if apperr.IsNoRecord(err) {
			return apperr.NotFound("Patient not found")
		}
		if err != nil {
			return err
		}
		p.TreatmentRecords = append(p.TreatmentRecords, rec)
		return s.patients.UpdateRecords(ctx, hospitalID, id, p.TreatmentRecords)
	})
	if err != nil {
		return nil, apperr.Wrap("append treatment record", err)
	}
	s.publish(ctx, EventUpdated, hospitalID, id, p)
	return p, nil
}

// EditRecord replaces every field but the date of the first record whose date
// equals date exactly.
func (s *Service) EditRecord(ctx context.Context, hospitalID, id uuid.UUID, date time.Time, updated TreatmentRecord) (*ActivePatient, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, apperr.Validation("Missing required fields")
	}
	key := NormalizeDate(date)
	updated.normalize()
	if err := validateRecord("Updated treatment record", updated, false); err != nil {
		return nil, err
	}

	var p *ActivePatient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetForUpdate(ctx, hospitalID, id)
		if apperr.IsNoRecord(err) {
			return apperr.NotFound("Patient not found")
		}
		if err != nil {
			return err
		}

		idx := -1
		for i := range p.TreatmentRecords {
			if p.TreatmentRecords[i].Date.Equal(key) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.NotFound("Treatment record not found")
		}
		p.TreatmentRecords[idx].replaceFrom(updated)
		return s.patients.UpdateRecords(ctx, hospitalID, id, p.TreatmentRecords)
	})
	if err != nil {
		return nil, apperr.Wrap("edit treatment record", err)
	}
	s.publish(ctx, EventUpdated, hospitalID, id, p)
	return p, nil
}

// -- Discharge --

// Discharge bills the stay, appends the summary to the patient's history and
// removes the active record, all in one transaction.
func (s *Service) Discharge(ctx context.Context, hospitalID, id uuid.UUID) (*AdmissionSummary, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}

	var (
		summary AdmissionSummary
		p       *ActivePatient
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetForUpdate(ctx, hospitalID, id)
		if apperr.IsNoRecord(err) {
			return apperr.NotFound("Pending patient not found")
		}
		if err != nil {
			return err
		}
		if p.Status == StatusDischarged {
			return apperr.Validation("Patient already discharged")
		}
		if len(p.TreatmentRecords) == 0 {
			return apperr.Validation("No treatment records available")
		}

		summary = Summarize(p, s.now())
		h := &PatientHistory{
			PatientID:  p.PatientID,
			HospitalID: hospitalID,
			Name:       p.Name,
			Address:    p.Address,
			Mobile:     p.Mobile,
		}
		if err := s.history.AppendAdmission(ctx, h, summary); err != nil {
			return err
		}
		return s.patients.Delete(ctx, hospitalID, id)
	})
	if err != nil {
		return nil, apperr.Wrap("discharge patient", err)
	}

	s.logger.Info().
		Str("hospital_id", hospitalID.String()).
		Str("patient_id", p.PatientID).
		Int("treatment_records", len(p.TreatmentRecords)).
		Float64("total_bill", summary.TotalBill).
		Msg("patient discharged")
	s.publish(ctx, EventDischarged, hospitalID, id, map[string]interface{}{
		"patientId": p.PatientID,
		"summary":   summary,
	})
	return &summary, nil
}

// -- Queries --

func (s *Service) ListActive(ctx context.Context, hospitalID uuid.UUID) ([]*ActivePatient, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	items, err := s.patients.ListPending(ctx, hospitalID)
	if err != nil {
		return nil, apperr.Wrap("list active patients", err)
	}
	if items == nil {
		items = []*ActivePatient{}
	}
	return items, nil
}

// History returns the hospital's histories keyed by patient id, each with its
// admissions newest first.
func (s *Service) History(ctx context.Context, hospitalID uuid.UUID) (map[string]HistoryEntry, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	histories, err := s.history.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, apperr.Wrap("list patient history", err)
	}

	out := make(map[string]HistoryEntry, len(histories))
	for _, h := range histories {
		admissions := append([]AdmissionSummary{}, h.Admissions...)
		sort.SliceStable(admissions, func(i, j int) bool {
			return admissions[i].DateOfAdmission.After(admissions[j].DateOfAdmission)
		})
		out[h.PatientID] = HistoryEntry{
			ID:         h.ID,
			Name:       h.Name,
			Mobile:     h.Mobile,
			Address:    h.Address,
			Admissions: admissions,
		}
	}
	return out, nil
}
