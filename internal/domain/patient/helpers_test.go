package patient

import "time"

func f64(v float64) *float64 { return &v }

func str(s string) *string { return &s }

func category(c RoomCategory) *RoomCategory { return &c }

func fullRoom(price float64) *Room {
	return &Room{RoomNo: str("101"), BedNo: str("B"), RoomCategory: category(RoomGeneral), RoomPrice: f64(price)}
}

var day1 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func record(date time.Time, fees float64) TreatmentRecord {
	return TreatmentRecord{TreatmentFor: "fever", Date: date, DoctorFees: f64(fees)}
}
