package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository stores appointments per hospital. Days are
// DayLayout strings. Lookups that match nothing return apperr.ErrNoRecord;
// a second appointment in an occupied slot returns apperr.ErrDuplicate.
type AppointmentRepository interface {
	// LockDay serializes writers of (hospitalID, day) until the surrounding
	// transaction ends.
	LockDay(ctx context.Context, hospitalID uuid.UUID, day string) error
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error)
	Move(ctx context.Context, hospitalID, id uuid.UUID, day, slot string) (*Appointment, error)
	Delete(ctx context.Context, hospitalID, id uuid.UUID) error
	// CountOnDay counts the day's appointments other than exclude.
	CountOnDay(ctx context.Context, hospitalID uuid.UUID, day string, exclude uuid.UUID) (int, error)
	// SlotTaken reports whether an appointment other than exclude holds slot.
	SlotTaken(ctx context.Context, hospitalID uuid.UUID, day, slot string, exclude uuid.UUID) (bool, error)
	// DeleteBefore removes appointments dated strictly before day.
	DeleteBefore(ctx context.Context, hospitalID uuid.UUID, day string) (int64, error)
	ListDay(ctx context.Context, hospitalID uuid.UUID, day string) ([]*Appointment, error)
	// CountsBetween returns per-day counts for days in [from, to].
	CountsBetween(ctx context.Context, hospitalID uuid.UUID, from, to string) (map[string]int, error)
}
