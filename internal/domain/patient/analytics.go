package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
)

// MonthStats aggregates the admissions whose admission date falls in one
// calendar month.
type MonthStats struct {
	Month      int     `json:"month"`
	Revenue    float64 `json:"revenue"`
	Admissions int     `json:"admissions"`
	Totals
}

type Analytics struct {
	Year          int          `json:"year"`
	Month         int          `json:"month,omitempty"`
	TotalRevenue  float64      `json:"totalRevenue"`
	TotalPatients int          `json:"totalPatients"`
	Data          []MonthStats `json:"data"`
}

// Analytics reports revenue per month of admission for year, or for a single
// month when month is 1-12. Months outside the window report zeros.
func (s *Service) Analytics(ctx context.Context, hospitalID uuid.UUID, year, month int) (*Analytics, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	if year <= 0 {
		return nil, apperr.Validation("Year is required")
	}
	if month < 0 || month > 12 {
		return nil, apperr.Validation("Month must be between 1 and 12")
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(1, 0, 0)
	if month > 0 {
		from = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
		to = from.AddDate(0, 1, 0)
	}

	admissions, err := s.history.AdmissionsBetween(ctx, hospitalID, from, to)
	if err != nil {
		return nil, apperr.Wrap("load analytics", err)
	}

	out := &Analytics{Year: year, Month: month, Data: make([]MonthStats, 12)}
	for i := range out.Data {
		out.Data[i].Month = i + 1
	}
	for _, a := range admissions {
		m := &out.Data[a.DateOfAdmission.In(s.loc).Month()-1]
		m.Revenue += a.TotalBill
		m.Admissions++
		m.DoctorFees += a.DoctorFees
		m.RoomCost += a.RoomCost
		m.BottleCost += a.BottleCost
		m.InjectionCost += a.InjectionCost
		m.MedicineCost += a.MedicineCost
		m.OperationCost += a.OperationCost
		m.OtherCharges += a.OtherCharges
	}
	for _, m := range out.Data {
		out.TotalRevenue += m.Revenue
		out.TotalPatients += m.Admissions
	}
	return out, nil
}
