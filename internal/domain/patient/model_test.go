package patient

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"
)

func TestTreatmentRecord_SetRoom(t *testing.T) {
	r := record(day1, 10)
	room := fullRoom(500)
	r.SetRoom(room)

	if r.Room == nil || *r.Room.RoomPrice != 500 {
		t.Fatalf("expected room set, got %+v", r.Room)
	}
	if r.Room == room {
		t.Error("expected SetRoom to copy the room")
	}

	r.SetRoom(&Room{})
	if r.Room != nil {
		t.Error("expected empty room to clear the section")
	}
	r.SetRoom(fullRoom(1))
	r.SetRoom(nil)
	if r.Room != nil {
		t.Error("expected nil to clear the section")
	}
}

func TestTreatmentRecord_SetUsage(t *testing.T) {
	r := record(day1, 10)
	r.SetBottles(&Usage{Count: f64(2), Price: f64(5)})
	r.SetInjections(&Usage{Count: f64(1), Price: f64(40)})

	if r.Bottles.Cost() != 10 || r.Injections.Cost() != 40 {
		t.Errorf("unexpected costs: bottles=%v injections=%v", r.Bottles.Cost(), r.Injections.Cost())
	}

	r.SetBottles(&Usage{})
	if r.Bottles != nil {
		t.Error("expected empty usage to clear bottles")
	}
}

func TestTreatmentRecord_SetMedicine(t *testing.T) {
	r := record(day1, 10)

	if err := r.SetMedicine(0, Medicine{Name: str("a"), Quantity: f64(1), Price: f64(1)}); err != nil {
		t.Fatalf("append at 0: %v", err)
	}
	if err := r.SetMedicine(1, Medicine{Name: str("b"), Quantity: f64(1), Price: f64(2)}); err != nil {
		t.Fatalf("append at 1: %v", err)
	}
	if err := r.SetMedicine(0, Medicine{Name: str("c"), Quantity: f64(3), Price: f64(3)}); err != nil {
		t.Fatalf("replace at 0: %v", err)
	}

	if len(r.Medicines) != 2 || *r.Medicines[0].Name != "c" || *r.Medicines[1].Name != "b" {
		t.Errorf("unexpected medicines: %+v", r.Medicines)
	}
	if err := r.SetMedicine(5, Medicine{}); err == nil {
		t.Error("expected out of range error")
	}
	if err := r.SetMedicine(-1, Medicine{}); err == nil {
		t.Error("expected negative index error")
	}
}

func TestTreatmentRecord_ReplaceKeepsDate(t *testing.T) {
	r := record(day1, 10)
	r.Room = fullRoom(100)

	update := TreatmentRecord{
		TreatmentFor: "follow-up",
		Date:         day1.Add(time.Hour),
		DoctorFees:   f64(99),
		Medicines:    []Medicine{{Name: str("m"), Quantity: f64(2), Price: f64(3)}},
	}
	r.replaceFrom(update)

	if !r.Date.Equal(day1) {
		t.Errorf("expected date to stay %v, got %v", day1, r.Date)
	}
	if r.Room != nil {
		t.Error("expected room cleared by the update")
	}
	if r.TreatmentFor != "follow-up" || *r.DoctorFees != 99 || len(r.Medicines) != 1 {
		t.Errorf("update not applied: %+v", r)
	}
}

func TestTreatmentRecord_ReplaceCopiesMedicines(t *testing.T) {
	r := record(day1, 10)
	update := record(day1, 10)
	update.Medicines = []Medicine{{Name: str("a"), Quantity: f64(1), Price: f64(2)}}
	r.replaceFrom(update)

	update.Medicines[0].Name = str("changed")
	if *r.Medicines[0].Name != "a" {
		t.Errorf("expected medicines copied, got %q", *r.Medicines[0].Name)
	}

	r.replaceFrom(record(day1, 10))
	if r.Medicines == nil || len(r.Medicines) != 0 {
		t.Errorf("expected an empty medicine list, got %#v", r.Medicines)
	}
}

func TestParseRecordDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{" 2024-03-01 ", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-01T09:30:00Z", day1, true},
		{"2024-03-01T15:00:00+05:30", day1, true},
		{"2024-03-01T09:30:00.5Z", day1.Add(500 * time.Millisecond), true},
		{"01/03/2024", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRecordDate(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("expected ok=%v, got err %v", tt.ok, err)
			}
			if tt.ok && !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTreatmentRecord_UnmarshalJSON(t *testing.T) {
	var r TreatmentRecord
	body := `{"treatment_for":"fever","date":"2024-03-01","doctorFees":100,
		"bottles":{"count":1.5,"price":40},"medicines":[{"name":"syrup","quantity":0.5,"price":80}]}`
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r.Date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", r.Date)
	}
	if r.TreatmentFor != "fever" || *r.DoctorFees != 100 {
		t.Errorf("fields not decoded: %+v", r)
	}
	if r.Bottles.Cost() != 60 || r.Medicines[0].Cost() != 40 {
		t.Errorf("expected fractional costs 60 and 40, got %v and %v", r.Bottles.Cost(), r.Medicines[0].Cost())
	}

	if err := json.Unmarshal([]byte(`{"date":"March 1"}`), &r); err == nil {
		t.Error("expected error for unreadable date")
	}

	// Stored records round-trip at full precision.
	in := record(NormalizeDate(day1.Add(123456*time.Microsecond)), 10)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out TreatmentRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Date.Equal(in.Date) {
		t.Errorf("expected %v, got %v", in.Date, out.Date)
	}
}

func TestNormalizeDate(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2024, 1, 2, 10, 0, 0, 123456789, ist)
	got := NormalizeDate(in)

	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
	if got.Nanosecond() != 123456000 {
		t.Errorf("expected microsecond precision, got %d ns", got.Nanosecond())
	}
	if !got.Equal(in.Truncate(time.Microsecond)) {
		t.Errorf("expected same instant, got %v", got)
	}
}

func TestNewPatientID(t *testing.T) {
	now := time.Date(2024, 7, 9, 8, 5, 3, 0, time.UTC)
	id := NewPatientID(now)

	if !regexp.MustCompile(`^PAT-20240709-080503-[0-9a-f]{4}$`).MatchString(id) {
		t.Errorf("unexpected patient id %q", id)
	}
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		seen[NewPatientID(now)] = true
	}
	if len(seen) < 2 {
		t.Error("expected random suffix to vary within the same second")
	}
}

func TestRoomCategory_Valid(t *testing.T) {
	for _, c := range []RoomCategory{RoomGeneral, RoomSemiPrivate, RoomPrivate, RoomICU} {
		if !c.Valid() {
			t.Errorf("expected %s valid", c)
		}
	}
	for _, c := range []RoomCategory{"", "icu", "deluxe"} {
		if c.Valid() {
			t.Errorf("expected %q invalid", c)
		}
	}
}
