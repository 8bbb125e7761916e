package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/kv"
)

// Key layout:
//
//	active/<hospital>/<id>              ActivePatient
//	active-pid/<hospital>/<patientId>   id of the active record
//	history/<hospital>/<patientId>      PatientHistory with its admissions
//	history-pid/<patientId>/<hospital>  marker for cross-hospital lookups
func activeKey(hospitalID, id uuid.UUID) string {
	return fmt.Sprintf("active/%s/%s", hospitalID, id)
}

func activePIDKey(hospitalID uuid.UUID, patientID string) string {
	return fmt.Sprintf("active-pid/%s/%s", hospitalID, patientID)
}

func historyKey(hospitalID uuid.UUID, patientID string) string {
	return fmt.Sprintf("history/%s/%s", hospitalID, patientID)
}

// =========== Active Patient Repository ===========

type activeRepoKV struct{ store *kv.Store }

func NewActiveRepoKV(store *kv.Store) ActiveRepository { return &activeRepoKV{store: store} }

func (r *activeRepoKV) Create(ctx context.Context, p *ActivePatient) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		idx := activePIDKey(p.HospitalID, p.PatientID)
		taken, err := r.store.Has(ctx, idx)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("active patient %s: %w", p.PatientID, apperr.ErrDuplicate)
		}

		now := time.Now().UTC()
		p.ID = uuid.New()
		p.CreatedAt, p.UpdatedAt = now, now
		if err := r.store.Put(ctx, activeKey(p.HospitalID, p.ID), p); err != nil {
			return err
		}
		return r.store.PutRaw(ctx, idx, []byte(p.ID.String()))
	})
}

func (r *activeRepoKV) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*ActivePatient, error) {
	var p ActivePatient
	if err := r.store.Get(ctx, activeKey(hospitalID, id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetForUpdate needs no extra locking: LevelDB admits one open transaction at
// a time, so the caller's transaction already excludes other writers.
func (r *activeRepoKV) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*ActivePatient, error) {
	return r.GetByID(ctx, hospitalID, id)
}

func (r *activeRepoKV) ExistsByPatientID(ctx context.Context, hospitalID uuid.UUID, patientID string) (bool, error) {
	return r.store.Has(ctx, activePIDKey(hospitalID, patientID))
}

func (r *activeRepoKV) UpdateRecords(ctx context.Context, hospitalID, id uuid.UUID, records []TreatmentRecord) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		p, err := r.GetByID(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		p.TreatmentRecords = records
		p.UpdatedAt = time.Now().UTC()
		return r.store.Put(ctx, activeKey(hospitalID, id), p)
	})
}

func (r *activeRepoKV) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		p, err := r.GetByID(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if err := r.store.Delete(ctx, activeKey(hospitalID, id)); err != nil {
			return err
		}
		return r.store.Delete(ctx, activePIDKey(hospitalID, p.PatientID))
	})
}

func (r *activeRepoKV) ListPending(ctx context.Context, hospitalID uuid.UUID) ([]*ActivePatient, error) {
	var items []*ActivePatient
	err := r.store.Scan(ctx, fmt.Sprintf("active/%s/", hospitalID), func(_ string, v []byte) error {
		var p ActivePatient
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		if p.Status == StatusPending {
			items = append(items, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DateOfAdmission.After(items[j].DateOfAdmission)
	})
	return items, nil
}

// =========== Patient History Repository ===========

type historyRepoKV struct{ store *kv.Store }

func NewHistoryRepoKV(store *kv.Store) HistoryRepository { return &historyRepoKV{store: store} }

func (r *historyRepoKV) ExistsAnywhere(ctx context.Context, patientID string) (bool, error) {
	found := false
	err := r.store.Scan(ctx, fmt.Sprintf("history-pid/%s/", patientID), func(string, []byte) error {
		found = true
		return kv.ErrStopScan
	})
	return found, err
}

func (r *historyRepoKV) AppendAdmission(ctx context.Context, h *PatientHistory, s AdmissionSummary) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		key := historyKey(h.HospitalID, h.PatientID)
		now := time.Now().UTC()

		var existing PatientHistory
		err := r.store.Get(ctx, key, &existing)
		switch {
		case apperr.IsNoRecord(err):
			existing = PatientHistory{
				ID:         uuid.New(),
				PatientID:  h.PatientID,
				HospitalID: h.HospitalID,
				CreatedAt:  now,
			}
		case err != nil:
			return err
		}

		existing.Name, existing.Address, existing.Mobile = h.Name, h.Address, h.Mobile
		existing.Admissions = append(existing.Admissions, s)
		existing.UpdatedAt = now
		if err := r.store.Put(ctx, key, existing); err != nil {
			return err
		}
		if err := r.store.PutRaw(ctx, fmt.Sprintf("history-pid/%s/%s", h.PatientID, h.HospitalID), nil); err != nil {
			return err
		}
		*h = existing
		return nil
	})
}

func (r *historyRepoKV) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*PatientHistory, error) {
	var items []*PatientHistory
	err := r.store.Scan(ctx, fmt.Sprintf("history/%s/", hospitalID), func(_ string, v []byte) error {
		var h PatientHistory
		if err := json.Unmarshal(v, &h); err != nil {
			return err
		}
		items = append(items, &h)
		return nil
	})
	return items, err
}

func (r *historyRepoKV) AdmissionsBetween(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]AdmissionSummary, error) {
	histories, err := r.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	var items []AdmissionSummary
	for _, h := range histories {
		for _, s := range h.Admissions {
			if !s.DateOfAdmission.Before(from) && s.DateOfAdmission.Before(to) {
				items = append(items, s)
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DateOfAdmission.Before(items[j].DateOfAdmission)
	})
	return items, nil
}
