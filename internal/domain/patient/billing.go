package patient

import "time"

// Totals are the per-category sums over a stay's treatment records.
type Totals struct {
	DoctorFees    float64 `json:"doctorFees"`
	RoomCost      float64 `json:"roomCost"`
	BottleCost    float64 `json:"bottleCost"`
	InjectionCost float64 `json:"injectionCost"`
	MedicineCost  float64 `json:"medicineCost"`
	OperationCost float64 `json:"operationCost"`
	OtherCharges  float64 `json:"otherCharges"`
}

// Bill is the sum of every category. No rounding is applied.
func (t Totals) Bill() float64 {
	return t.DoctorFees + t.RoomCost + t.OperationCost + t.OtherCharges +
		t.BottleCost + t.InjectionCost + t.MedicineCost
}

// Aggregate walks every record once and accumulates each cost category.
// Missing amounts contribute 0.
func Aggregate(records []TreatmentRecord) Totals {
	var t Totals
	for _, r := range records {
		t.DoctorFees += deref(r.DoctorFees)
		if r.Room != nil {
			t.RoomCost += deref(r.Room.RoomPrice)
		}
		t.OperationCost += deref(r.OperationCost)
		t.OtherCharges += deref(r.OtherCost)
		t.BottleCost += r.Bottles.Cost()
		t.InjectionCost += r.Injections.Cost()
		for _, m := range r.Medicines {
			t.MedicineCost += m.Cost()
		}
	}
	return t
}

// Summarize builds the admission summary for p. The discharge date is the
// latest treatment record date, or now when no record carries one.
func Summarize(p *ActivePatient, now time.Time) AdmissionSummary {
	t := Aggregate(p.TreatmentRecords)

	discharged := time.Time{}
	for _, r := range p.TreatmentRecords {
		if r.Date.After(discharged) {
			discharged = r.Date
		}
	}
	if discharged.IsZero() {
		discharged = now
	}

	return AdmissionSummary{
		DateOfAdmission:    p.DateOfAdmission,
		DateOfDischarge:    NormalizeDate(discharged),
		AssignedDoctorName: p.AssignedDoctorName,
		DoctorFees:         t.DoctorFees,
		RoomCost:           t.RoomCost,
		BottleCost:         t.BottleCost,
		InjectionCost:      t.InjectionCost,
		MedicineCost:       t.MedicineCost,
		OperationCost:      t.OperationCost,
		OtherCharges:       t.OtherCharges,
		TotalBill:          t.Bill(),
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
