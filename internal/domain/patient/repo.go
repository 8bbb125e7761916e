package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActiveRepository stores the roster of admitted patients. Lookups that
// match nothing return apperr.ErrNoRecord; a second active record for the
// same (patient, hospital) returns apperr.ErrDuplicate.
type ActiveRepository interface {
	Create(ctx context.Context, p *ActivePatient) error
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*ActivePatient, error)
	// GetForUpdate is GetByID that also locks the record until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*ActivePatient, error)
	ExistsByPatientID(ctx context.Context, hospitalID uuid.UUID, patientID string) (bool, error)
	UpdateRecords(ctx context.Context, hospitalID, id uuid.UUID, records []TreatmentRecord) error
	Delete(ctx context.Context, hospitalID, id uuid.UUID) error
	ListPending(ctx context.Context, hospitalID uuid.UUID) ([]*ActivePatient, error)
}

// HistoryRepository stores discharged stays. Histories are only ever
// appended to.
type HistoryRepository interface {
	// ExistsAnywhere reports whether patientID has a history at any hospital.
	ExistsAnywhere(ctx context.Context, patientID string) (bool, error)
	// AppendAdmission adds s to the history of (h.PatientID, h.HospitalID),
	// overwriting its contact fields, or creates the history.
	AppendAdmission(ctx context.Context, h *PatientHistory, s AdmissionSummary) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*PatientHistory, error)
	// AdmissionsBetween returns summaries whose admission date is in [from, to).
	AdmissionsBetween(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]AdmissionSummary, error)
}

// AppointmentRemover deletes the appointment converted into an admission.
type AppointmentRemover interface {
	Delete(ctx context.Context, hospitalID, id uuid.UUID) error
}
