package patient

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/pkg/mobile"
)

// AdmitRequest is the intake form. PatientID readmits a patient already in
// the history; AppointmentID converts a booked appointment into the admission.
type AdmitRequest struct {
	PatientID          string            `json:"patientId"`
	AssignedDoctorName *string           `json:"assignedDoctorName"`
	Name               string            `json:"name"`
	Mobile             string            `json:"mobile"`
	Address            string            `json:"address"`
	TreatmentRecords   []TreatmentRecord `json:"treatmentRecords"`
	AppointmentID      *uuid.UUID        `json:"appointmentId,omitempty"`
}

func (r *AdmitRequest) normalize() {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.AssignedDoctorName = blankToNil(r.AssignedDoctorName)
	r.Name = strings.TrimSpace(r.Name)
	r.Mobile = mobile.Normalize(r.Mobile)
	r.Address = strings.TrimSpace(r.Address)
	for i := range r.TreatmentRecords {
		r.TreatmentRecords[i].normalize()
	}
}

// Validate normalizes the request in place and reports the first problem found.
func (r *AdmitRequest) Validate() error {
	r.normalize()
	if r.Name == "" || r.Mobile == "" {
		return apperr.Validation("Name and mobile number are required")
	}
	if !mobile.Valid(r.Mobile) {
		return apperr.Validation("Mobile number must be exactly 10 digits")
	}
	if len(r.TreatmentRecords) == 0 {
		return apperr.Validation("At least one treatment record is required")
	}
	for i, rec := range r.TreatmentRecords {
		if err := validateRecord(fmt.Sprintf("Treatment record %d", i+1), rec, true); err != nil {
			return err
		}
	}
	return nil
}

// validateRecord checks a normalized record. label prefixes every message.
func validateRecord(label string, r TreatmentRecord, requireDate bool) error {
	if requireDate && r.Date.IsZero() {
		return apperr.Validation("%s: date is required", label)
	}
	if r.DoctorFees == nil {
		return apperr.Validation("%s: doctor fees are required", label)
	}
	if *r.DoctorFees < 0 {
		return apperr.Validation("%s: doctor fees cannot be negative", label)
	}

	if room := r.Room; room != nil {
		if room.RoomNo == nil || room.BedNo == nil || room.RoomCategory == nil || room.RoomPrice == nil {
			return apperr.Validation("%s: room number, bed number, category and price must be given together", label)
		}
		if !room.RoomCategory.Valid() {
			return apperr.Validation("%s: room category must be one of general, semi-private, private, ICU", label)
		}
		if *room.RoomPrice < 0 {
			return apperr.Validation("%s: room price cannot be negative", label)
		}
	}

	if err := validateUsage(label, "bottles", r.Bottles); err != nil {
		return err
	}
	if err := validateUsage(label, "injections", r.Injections); err != nil {
		return err
	}

	for i, m := range r.Medicines {
		if m.Name == nil || m.Quantity == nil || m.Price == nil {
			return apperr.Validation("%s: medicine %d needs a name, quantity and price", label, i+1)
		}
		if *m.Quantity < 0 || *m.Price < 0 {
			return apperr.Validation("%s: medicine %d quantity and price cannot be negative", label, i+1)
		}
	}

	if r.OperationCost != nil && *r.OperationCost < 0 {
		return apperr.Validation("%s: operation cost cannot be negative", label)
	}
	if r.OtherCost != nil && *r.OtherCost < 0 {
		return apperr.Validation("%s: other cost cannot be negative", label)
	}
	return nil
}

func validateUsage(label, what string, u *Usage) error {
	if u == nil {
		return nil
	}
	if u.Count == nil || u.Price == nil {
		return apperr.Validation("%s: %s count and price must be given together", label, what)
	}
	if *u.Count < 0 || *u.Price < 0 {
		return apperr.Validation("%s: %s count and price cannot be negative", label, what)
	}
	return nil
}
