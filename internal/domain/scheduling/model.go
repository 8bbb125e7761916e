package scheduling

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DayLayout is the wire and storage form of an appointment date.
const DayLayout = "2006-01-02"

// Appointment is a booked visit. Date is a calendar day in the hospital's
// time zone; Time is the slot label shown at the desk, e.g. "10:30 AM".
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	HospitalID  uuid.UUID `json:"hospitalId"`
	PatientName string    `json:"patientName"`
	Address     string    `json:"address"`
	Mobile      string    `json:"mobile"`
	Date        string    `json:"appointmentDate"`
	Time        string    `json:"appointmentTime"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ParseDay accepts a bare date or an RFC 3339 timestamp and returns the
// calendar day it falls on in loc.
func ParseDay(s string, loc *time.Location) (string, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseInLocation(DayLayout, s, loc); err == nil {
		return d.Format(DayLayout), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc).Format(DayLayout), true
	}
	return "", false
}

// Today is the current calendar day in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DayLayout)
}

// NextDays returns n consecutive days starting at start.
func NextDays(start string, n int) []string {
	d, err := time.Parse(DayLayout, start)
	if err != nil {
		return nil
	}
	days := make([]string, n)
	for i := range days {
		days[i] = d.AddDate(0, 0, i).Format(DayLayout)
	}
	return days
}

var slotLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

// slotMinutes is the minute of day a slot label denotes, or -1 when the label
// is free text.
func slotMinutes(label string) int {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, layout := range slotLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return -1
}

// SortByTime orders a day's appointments by clock time. Labels that are not
// clock times sort after the rest, alphabetically.
func SortByTime(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		mi, mj := slotMinutes(items[i].Time), slotMinutes(items[j].Time)
		switch {
		case mi >= 0 && mj >= 0 && mi != mj:
			return mi < mj
		case mi >= 0 && mj < 0:
			return true
		case mi < 0 && mj >= 0:
			return false
		}
		return items[i].Time < items[j].Time
	})
}
