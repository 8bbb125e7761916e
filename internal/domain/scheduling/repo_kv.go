package scheduling

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/kv"
)

// Key layout:
//
//	appt/<hospital>/<id>                Appointment
//	appt-day/<hospital>/<day>/<id>      day index, value unused
//	appt-slot/<hospital>/<day>/<time>   id holding the slot
func apptKey(hospitalID, id uuid.UUID) string {
	return fmt.Sprintf("appt/%s/%s", hospitalID, id)
}

func dayPrefix(hospitalID uuid.UUID) string {
	return fmt.Sprintf("appt-day/%s/", hospitalID)
}

func dayKey(hospitalID uuid.UUID, day string, id uuid.UUID) string {
	return fmt.Sprintf("appt-day/%s/%s/%s", hospitalID, day, id)
}

func slotKey(hospitalID uuid.UUID, day, slot string) string {
	return fmt.Sprintf("appt-slot/%s/%s/%s", hospitalID, day, url.PathEscape(slot))
}

type appointmentRepoKV struct{ store *kv.Store }

func NewAppointmentRepoKV(store *kv.Store) AppointmentRepository {
	return &appointmentRepoKV{store: store}
}

// LockDay is a no-op: LevelDB admits one open transaction at a time.
func (r *appointmentRepoKV) LockDay(context.Context, uuid.UUID, string) error {
	return nil
}

func (r *appointmentRepoKV) Create(ctx context.Context, a *Appointment) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		slot := slotKey(a.HospitalID, a.Date, a.Time)
		taken, err := r.store.Has(ctx, slot)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("appointment slot %s %s: %w", a.Date, a.Time, apperr.ErrDuplicate)
		}

		now := time.Now().UTC()
		a.ID = uuid.New()
		a.CreatedAt, a.UpdatedAt = now, now
		return r.put(ctx, a, slot)
	})
}

func (r *appointmentRepoKV) put(ctx context.Context, a *Appointment, slot string) error {
	if err := r.store.Put(ctx, apptKey(a.HospitalID, a.ID), a); err != nil {
		return err
	}
	if err := r.store.PutRaw(ctx, dayKey(a.HospitalID, a.Date, a.ID), nil); err != nil {
		return err
	}
	return r.store.PutRaw(ctx, slot, []byte(a.ID.String()))
}

func (r *appointmentRepoKV) unindex(ctx context.Context, a *Appointment) error {
	if err := r.store.Delete(ctx, dayKey(a.HospitalID, a.Date, a.ID)); err != nil {
		return err
	}
	return r.store.Delete(ctx, slotKey(a.HospitalID, a.Date, a.Time))
}

func (r *appointmentRepoKV) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error) {
	var a Appointment
	if err := r.store.Get(ctx, apptKey(hospitalID, id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoKV) Move(ctx context.Context, hospitalID, id uuid.UUID, day, slot string) (*Appointment, error) {
	var moved *Appointment
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		a, err := r.GetByID(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		target := slotKey(hospitalID, day, slot)
		holder, err := r.store.GetRaw(ctx, target)
		switch {
		case err == nil && string(holder) != id.String():
			return fmt.Errorf("appointment slot %s %s: %w", day, slot, apperr.ErrDuplicate)
		case err != nil && !apperr.IsNoRecord(err):
			return err
		}

		if err := r.unindex(ctx, a); err != nil {
			return err
		}
		a.Date, a.Time = day, slot
		a.UpdatedAt = time.Now().UTC()
		if err := r.put(ctx, a, target); err != nil {
			return err
		}
		moved = a
		return nil
	})
	return moved, err
}

func (r *appointmentRepoKV) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		a, err := r.GetByID(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if err := r.store.Delete(ctx, apptKey(hospitalID, id)); err != nil {
			return err
		}
		return r.unindex(ctx, a)
	})
}

// dayIDs scans the day index of one day.
func (r *appointmentRepoKV) dayIDs(ctx context.Context, hospitalID uuid.UUID, day string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.store.Scan(ctx, dayPrefix(hospitalID)+day+"/", func(key string, _ []byte) error {
		id, err := uuid.Parse(key[strings.LastIndexByte(key, '/')+1:])
		if err != nil {
			return fmt.Errorf("day index %s: %w", key, err)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

func (r *appointmentRepoKV) CountOnDay(ctx context.Context, hospitalID uuid.UUID, day string, exclude uuid.UUID) (int, error) {
	ids, err := r.dayIDs(ctx, hospitalID, day)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if id != exclude {
			n++
		}
	}
	return n, nil
}

func (r *appointmentRepoKV) SlotTaken(ctx context.Context, hospitalID uuid.UUID, day, slot string, exclude uuid.UUID) (bool, error) {
	holder, err := r.store.GetRaw(ctx, slotKey(hospitalID, day, slot))
	if apperr.IsNoRecord(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(holder) != exclude.String(), nil
}

// DeleteBefore walks the day index in key order; DayLayout keys sort
// chronologically, so the walk stops at the first day not before the cutoff.
func (r *appointmentRepoKV) DeleteBefore(ctx context.Context, hospitalID uuid.UUID, day string) (int64, error) {
	var n int64
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		var stale []uuid.UUID
		prefix := dayPrefix(hospitalID)
		err := r.store.Scan(ctx, prefix, func(key string, _ []byte) error {
			rest := strings.TrimPrefix(key, prefix)
			if rest[:len(DayLayout)] >= day {
				return kv.ErrStopScan
			}
			id, err := uuid.Parse(rest[len(DayLayout)+1:])
			if err != nil {
				return fmt.Errorf("day index %s: %w", key, err)
			}
			stale = append(stale, id)
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range stale {
			if err := r.Delete(ctx, hospitalID, id); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (r *appointmentRepoKV) ListDay(ctx context.Context, hospitalID uuid.UUID, day string) ([]*Appointment, error) {
	ids, err := r.dayIDs(ctx, hospitalID, day)
	if err != nil {
		return nil, err
	}
	items := make([]*Appointment, 0, len(ids))
	for _, id := range ids {
		a, err := r.GetByID(ctx, hospitalID, id)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	SortByTime(items)
	return items, nil
}

func (r *appointmentRepoKV) CountsBetween(ctx context.Context, hospitalID uuid.UUID, from, to string) (map[string]int, error) {
	counts := make(map[string]int)
	prefix := dayPrefix(hospitalID)
	err := r.store.Scan(ctx, prefix, func(key string, _ []byte) error {
		day := strings.TrimPrefix(key, prefix)[:len(DayLayout)]
		if day > to {
			return kv.ErrStopScan
		}
		if day >= from {
			counts[day]++
		}
		return nil
	})
	return counts, err
}
