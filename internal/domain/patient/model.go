package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusDischarged Status = "discharged"
)

type RoomCategory string

const (
	RoomGeneral     RoomCategory = "general"
	RoomSemiPrivate RoomCategory = "semi-private"
	RoomPrivate     RoomCategory = "private"
	RoomICU         RoomCategory = "ICU"
)

func (c RoomCategory) Valid() bool {
	switch c {
	case RoomGeneral, RoomSemiPrivate, RoomPrivate, RoomICU:
		return true
	}
	return false
}

// Room is all-or-nothing: either every field is set or the record has no room.
type Room struct {
	RoomNo       *string       `json:"roomNo,omitempty"`
	BedNo        *string       `json:"bedNo,omitempty"`
	RoomCategory *RoomCategory `json:"roomCategory,omitempty"`
	RoomPrice    *float64      `json:"roomPrice,omitempty"`
}

func (r *Room) empty() bool {
	return r == nil || (r.RoomNo == nil && r.BedNo == nil && r.RoomCategory == nil && r.RoomPrice == nil)
}

// Usage is a count × unit price pair for bottles or injections.
type Usage struct {
	Count *float64 `json:"count,omitempty"`
	Price *float64 `json:"price,omitempty"`
}

func (u *Usage) empty() bool {
	return u == nil || (u.Count == nil && u.Price == nil)
}

// Cost is count × price, or 0 when either side is missing.
func (u *Usage) Cost() float64 {
	if u == nil || u.Count == nil || u.Price == nil {
		return 0
	}
	return *u.Count * *u.Price
}

type Medicine struct {
	Name     *string  `json:"name,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Price    *float64 `json:"price,omitempty"`
}

func (m Medicine) empty() bool {
	return m.Name == nil && m.Quantity == nil && m.Price == nil
}

// Cost is quantity × price, or 0 when either side is missing.
func (m Medicine) Cost() float64 {
	if m.Quantity == nil || m.Price == nil {
		return 0
	}
	return *m.Quantity * *m.Price
}

// TreatmentRecord holds one visit day's line items. Date doubles as the key
// used to address the record for edits.
type TreatmentRecord struct {
	TreatmentFor  string     `json:"treatment_for"`
	Date          time.Time  `json:"date"`
	Room          *Room      `json:"room,omitempty"`
	Bottles       *Usage     `json:"bottles,omitempty"`
	Injections    *Usage     `json:"injections,omitempty"`
	Medicines     []Medicine `json:"medicines"`
	DoctorFees    *float64   `json:"doctorFees"`
	OperationCost *float64   `json:"operationCost,omitempty"`
	OtherCost     *float64   `json:"otherCost,omitempty"`
}

// UnmarshalJSON reads the date as a RecordDate so a bare day is accepted.
func (r *TreatmentRecord) UnmarshalJSON(data []byte) error {
	type plain TreatmentRecord
	aux := struct {
		*plain
		Date *RecordDate `json:"date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date != nil {
		r.Date = aux.Date.Time()
	}
	return nil
}

// normalize drops empty groups and truncates the date to the precision every
// store keeps, so a date read back from storage matches the one written.
func (r *TreatmentRecord) normalize() {
	r.TreatmentFor = strings.TrimSpace(r.TreatmentFor)
	r.Date = NormalizeDate(r.Date)
	if r.Room != nil {
		r.Room.RoomNo = blankToNil(r.Room.RoomNo)
		r.Room.BedNo = blankToNil(r.Room.BedNo)
		// Forms post "null" or "" for an unselected category.
		if c := r.Room.RoomCategory; c != nil && (*c == "" || *c == "null") {
			r.Room.RoomCategory = nil
		}
	}
	if r.Room.empty() {
		r.Room = nil
	}
	if r.Bottles.empty() {
		r.Bottles = nil
	}
	if r.Injections.empty() {
		r.Injections = nil
	}
	meds := make([]Medicine, 0, len(r.Medicines))
	for _, m := range r.Medicines {
		m.Name = blankToNil(m.Name)
		if !m.empty() {
			meds = append(meds, m)
		}
	}
	r.Medicines = meds
}

// DayLayout is the bare-day form accepted for treatment dates.
const DayLayout = "2006-01-02"

// RecordDate is a treatment date as sent by a desk: either a bare day, read
// as midnight UTC, or an RFC 3339 timestamp.
type RecordDate time.Time

func (d RecordDate) Time() time.Time { return time.Time(d) }

func (d *RecordDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseRecordDate(s)
	if err != nil {
		return err
	}
	*d = RecordDate(t)
	return nil
}

func (d RecordDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d))
}

// ParseRecordDate accepts DayLayout or RFC 3339 with optional fractional
// seconds.
func ParseRecordDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q is neither YYYY-MM-DD nor RFC 3339", s)
}

// NormalizeDate converts t to UTC at microsecond precision.
func NormalizeDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (r *TreatmentRecord) SetRoom(room *Room) {
	if room.empty() {
		r.Room = nil
		return
	}
	cp := *room
	r.Room = &cp
}

func (r *TreatmentRecord) SetBottles(u *Usage) {
	r.Bottles = copyUsage(u)
}

func (r *TreatmentRecord) SetInjections(u *Usage) {
	r.Injections = copyUsage(u)
}

// SetMedicine replaces the medicine at index i. i == len(Medicines) appends.
func (r *TreatmentRecord) SetMedicine(i int, m Medicine) error {
	switch {
	case i < 0 || i > len(r.Medicines):
		return fmt.Errorf("medicine index %d out of range [0,%d]", i, len(r.Medicines))
	case i == len(r.Medicines):
		r.Medicines = append(r.Medicines, m)
	default:
		r.Medicines[i] = m
	}
	return nil
}

// replaceFrom overwrites every field except Date with the values in u.
func (r *TreatmentRecord) replaceFrom(u TreatmentRecord) {
	r.TreatmentFor = u.TreatmentFor
	r.SetRoom(u.Room)
	r.SetBottles(u.Bottles)
	r.SetInjections(u.Injections)
	r.Medicines = append(make([]Medicine, 0, len(u.Medicines)), u.Medicines...)
	r.DoctorFees = u.DoctorFees
	r.OperationCost = u.OperationCost
	r.OtherCost = u.OtherCost
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func copyUsage(u *Usage) *Usage {
	if u.empty() {
		return nil
	}
	cp := *u
	return &cp
}

// ActivePatient is a patient currently admitted at one hospital.
type ActivePatient struct {
	ID                 uuid.UUID         `json:"id"`
	PatientID          string            `json:"patientId"`
	HospitalID         uuid.UUID         `json:"hospitalId"`
	Status             Status            `json:"status"`
	DateOfAdmission    time.Time         `json:"dateOfAdmission"`
	AssignedDoctorName *string           `json:"assignedDoctorName"`
	Name               string            `json:"name"`
	Address            string            `json:"address"`
	Mobile             string            `json:"mobile"`
	TreatmentRecords   []TreatmentRecord `json:"treatmentRecords"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// AdmissionSummary is the bill for one completed stay. It is written once at
// discharge and never recomputed.
type AdmissionSummary struct {
	DateOfAdmission    time.Time `json:"dateOfAdmission"`
	DateOfDischarge    time.Time `json:"dateOfDischarge"`
	AssignedDoctorName *string   `json:"assignedDoctorName"`
	DoctorFees         float64   `json:"doctorFees"`
	RoomCost           float64   `json:"roomCost"`
	BottleCost         float64   `json:"bottleCost"`
	InjectionCost      float64   `json:"injectionCost"`
	MedicineCost       float64   `json:"medicineCost"`
	OperationCost      float64   `json:"operationCost"`
	OtherCharges       float64   `json:"otherCharges"`
	TotalBill          float64   `json:"totalBill"`
}

// PatientHistory is the permanent record of a patient at one hospital.
type PatientHistory struct {
	ID         uuid.UUID          `json:"id"`
	PatientID  string             `json:"patientId"`
	HospitalID uuid.UUID          `json:"hospitalId"`
	Name       string             `json:"name"`
	Address    string             `json:"address"`
	Mobile     string             `json:"mobile"`
	Admissions []AdmissionSummary `json:"admissions"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// HistoryEntry is one value of the history map returned to callers.
type HistoryEntry struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Mobile     string             `json:"mobile"`
	Address    string             `json:"address"`
	Admissions []AdmissionSummary `json:"admissions"`
}

// NewPatientID returns PAT-YYYYMMDD-HHMMSS-xxxx for the given instant. The
// random suffix keeps two admissions in the same second apart.
func NewPatientID(now time.Time) string {
	return fmt.Sprintf("PAT-%s-%s", now.Format("20060102-150405"), uuid.NewString()[:4])
}
