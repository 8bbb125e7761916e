package scheduling

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/websocket"
)

// -- Mock Repository --

type mockTx struct{}

func (mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockAppointmentRepo struct {
	appts  map[uuid.UUID]*Appointment
	locked []string
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) LockDay(_ context.Context, hospitalID uuid.UUID, day string) error {
	m.locked = append(m.locked, hospitalID.String()+"/"+day)
	return nil
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	m.appts[a.ID] = a
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, hospitalID, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.HospitalID != hospitalID {
		return nil, fmt.Errorf("appointment: %w", apperr.ErrNoRecord)
	}
	return a, nil
}

func (m *mockAppointmentRepo) Move(ctx context.Context, hospitalID, id uuid.UUID, day, slot string) (*Appointment, error) {
	a, err := m.GetByID(ctx, hospitalID, id)
	if err != nil {
		return nil, err
	}
	a.Date, a.Time = day, slot
	return a, nil
}

func (m *mockAppointmentRepo) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	if _, err := m.GetByID(ctx, hospitalID, id); err != nil {
		return err
	}
	delete(m.appts, id)
	return nil
}

func (m *mockAppointmentRepo) CountOnDay(_ context.Context, hospitalID uuid.UUID, day string, exclude uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.appts {
		if a.HospitalID == hospitalID && a.Date == day && a.ID != exclude {
			n++
		}
	}
	return n, nil
}

func (m *mockAppointmentRepo) SlotTaken(_ context.Context, hospitalID uuid.UUID, day, slot string, exclude uuid.UUID) (bool, error) {
	for _, a := range m.appts {
		if a.HospitalID == hospitalID && a.Date == day && a.Time == slot && a.ID != exclude {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppointmentRepo) DeleteBefore(_ context.Context, hospitalID uuid.UUID, day string) (int64, error) {
	var n int64
	for id, a := range m.appts {
		if a.HospitalID == hospitalID && a.Date < day {
			delete(m.appts, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAppointmentRepo) ListDay(_ context.Context, hospitalID uuid.UUID, day string) ([]*Appointment, error) {
	var items []*Appointment
	for _, a := range m.appts {
		if a.HospitalID == hospitalID && a.Date == day {
			items = append(items, a)
		}
	}
	return items, nil
}

func (m *mockAppointmentRepo) CountsBetween(_ context.Context, hospitalID uuid.UUID, from, to string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, a := range m.appts {
		if a.HospitalID == hospitalID && a.Date >= from && a.Date <= to {
			counts[a.Date]++
		}
	}
	return counts, nil
}

// now is 2024-03-04 10:00 UTC.
var testNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestService() (*Service, *mockAppointmentRepo) {
	repo := newMockAppointmentRepo()
	svc := NewService(mockTx{}, repo, 15, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func bookReq(day, slot string) BookRequest {
	return BookRequest{PatientName: "Ravi", Mobile: "9876543210", AppointmentDate: day, AppointmentTime: slot}
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

func fillDay(t *testing.T, svc *Service, hospital uuid.UUID, day string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := svc.Book(context.Background(), hospital, bookReq(day, fmt.Sprintf("%d:00", 8+i))); err != nil {
			t.Fatalf("booking %d: %v", i+1, err)
		}
	}
}

// -- Book --

func TestService_Book(t *testing.T) {
	svc, repo := newTestService()
	hospital := uuid.New()

	a, err := svc.Book(context.Background(), hospital, bookReq("2024-03-05", "10:30 AM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil || a.Date != "2024-03-05" || a.HospitalID != hospital {
		t.Errorf("unexpected appointment %+v", a)
	}
	if len(repo.locked) != 1 || repo.locked[0] != hospital.String()+"/2024-03-05" {
		t.Errorf("expected the day locked, got %v", repo.locked)
	}
}

func TestService_Book_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name string
		req  BookRequest
	}{
		{"missing name", BookRequest{Mobile: "9876543210", AppointmentDate: "2024-03-05", AppointmentTime: "10:00"}},
		{"missing time", BookRequest{PatientName: "R", Mobile: "9876543210", AppointmentDate: "2024-03-05"}},
		{"missing date", BookRequest{PatientName: "R", Mobile: "9876543210", AppointmentTime: "10:00"}},
		{"short mobile", bookReqWithMobile("98765")},
		{"letters in mobile", bookReqWithMobile("98765abcde")},
		{"bad date", bookReq("tomorrow", "10:00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), uuid.New(), tt.req)
			assertKind(t, err, apperr.KindValidation)
		})
	}
}

func bookReqWithMobile(m string) BookRequest {
	r := bookReq("2024-03-05", "10:00")
	r.Mobile = m
	return r
}

func TestService_Book_Unauthorized(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Book(context.Background(), uuid.Nil, bookReq("2024-03-05", "10:00"))
	assertKind(t, err, apperr.KindUnauthorized)
}

func TestService_Book_SlotTaken(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()
	ctx := context.Background()

	if _, err := svc.Book(ctx, hospital, bookReq("2024-03-05", "10:30 AM")); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := svc.Book(ctx, hospital, bookReq("2024-03-05", "10:30 AM"))
	assertKind(t, err, apperr.KindConflict)

	if _, err := svc.Book(ctx, uuid.New(), bookReq("2024-03-05", "10:30 AM")); err != nil {
		t.Errorf("same slot at another hospital should be free: %v", err)
	}
	if _, err := svc.Book(ctx, hospital, bookReq("2024-03-06", "10:30 AM")); err != nil {
		t.Errorf("same slot on another day should be free: %v", err)
	}
}

func TestService_Book_Capacity(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()

	fillDay(t, svc, hospital, "2024-03-05", 15)

	_, err := svc.Book(context.Background(), hospital, bookReq("2024-03-05", "23:00"))
	assertKind(t, err, apperr.KindConflict)
	if err.(*apperr.Error).Message != "Max 15 appointments reached for the day" {
		t.Errorf("unexpected message %q", err.(*apperr.Error).Message)
	}
}

func TestService_Book_PrunesPast(t *testing.T) {
	svc, repo := newTestService()
	hospital := uuid.New()
	other := uuid.New()
	for _, a := range []*Appointment{
		{HospitalID: hospital, Date: "2024-03-03", Time: "10:00"},
		{HospitalID: hospital, Date: "2024-03-04", Time: "10:00"},
		{HospitalID: other, Date: "2024-03-01", Time: "10:00"},
	} {
		repo.Create(context.Background(), a)
	}

	if _, err := svc.Book(context.Background(), hospital, bookReq("2024-03-05", "11:00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	days := map[string]int{}
	for _, a := range repo.appts {
		days[a.HospitalID.String()+" "+a.Date]++
	}
	if days[hospital.String()+" 2024-03-03"] != 0 {
		t.Error("expected yesterday's appointment pruned")
	}
	if days[hospital.String()+" 2024-03-04"] != 1 {
		t.Error("expected today's appointment kept")
	}
	if days[other.String()+" 2024-03-01"] != 1 {
		t.Error("expected other hospital untouched")
	}
}

// -- Reschedule --

func TestService_Reschedule(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()
	ctx := context.Background()
	a, _ := svc.Book(ctx, hospital, bookReq("2024-03-05", "10:00"))

	moved, err := svc.Reschedule(ctx, hospital, a.ID, RescheduleRequest{NewDate: "2024-03-07", NewTime: "11:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Date != "2024-03-07" || moved.Time != "11:00" {
		t.Errorf("unexpected appointment %+v", moved)
	}
}

func TestService_Reschedule_ExcludesSelf(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()
	ctx := context.Background()

	fillDay(t, svc, hospital, "2024-03-05", 15)
	items, _ := svc.ListDay(ctx, hospital, "2024-03-05")
	first := items[0]

	// Same slot on a full day is still allowed for the appointment itself.
	if _, err := svc.Reschedule(ctx, hospital, first.ID, RescheduleRequest{NewDate: "2024-03-05", NewTime: first.Time}); err != nil {
		t.Fatalf("moving onto own slot: %v", err)
	}
}

func TestService_Reschedule_Conflicts(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()
	ctx := context.Background()

	fillDay(t, svc, hospital, "2024-03-05", 15)
	a, _ := svc.Book(ctx, hospital, bookReq("2024-03-06", "10:00"))
	b, _ := svc.Book(ctx, hospital, bookReq("2024-03-06", "11:00"))

	_, err := svc.Reschedule(ctx, hospital, a.ID, RescheduleRequest{NewDate: "2024-03-06", NewTime: "11:00"})
	assertKind(t, err, apperr.KindConflict)

	_, err = svc.Reschedule(ctx, hospital, b.ID, RescheduleRequest{NewDate: "2024-03-05", NewTime: "23:00"})
	assertKind(t, err, apperr.KindConflict)
}

func TestService_Reschedule_Errors(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()
	ctx := context.Background()
	a, _ := svc.Book(ctx, hospital, bookReq("2024-03-05", "10:00"))

	_, err := svc.Reschedule(ctx, hospital, a.ID, RescheduleRequest{NewTime: "11:00"})
	assertKind(t, err, apperr.KindValidation)
	_, err = svc.Reschedule(ctx, hospital, a.ID, RescheduleRequest{NewDate: "2024-03-05"})
	assertKind(t, err, apperr.KindValidation)
	_, err = svc.Reschedule(ctx, hospital, uuid.New(), RescheduleRequest{NewDate: "2024-03-05", NewTime: "11:00"})
	assertKind(t, err, apperr.KindNotFound)
	_, err = svc.Reschedule(ctx, uuid.New(), a.ID, RescheduleRequest{NewDate: "2024-03-05", NewTime: "11:00"})
	assertKind(t, err, apperr.KindNotFound)
}

// -- Cancel, List, FullDates, Prune --

func TestService_Cancel(t *testing.T) {
	svc, repo := newTestService()
	hospital := uuid.New()
	ctx := context.Background()
	a, _ := svc.Book(ctx, hospital, bookReq("2024-03-05", "10:00"))

	assertKind(t, svc.Cancel(ctx, uuid.New(), a.ID), apperr.KindNotFound)
	if err := svc.Cancel(ctx, hospital, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.appts) != 0 {
		t.Error("expected appointment removed")
	}
	assertKind(t, svc.Cancel(ctx, hospital, a.ID), apperr.KindNotFound)
}

func TestService_ListDay(t *testing.T) {
	svc, _ := newTestService()
	hospital := uuid.New()
	ctx := context.Background()
	svc.Book(ctx, hospital, bookReq("2024-03-04", "2:00 PM"))
	svc.Book(ctx, hospital, bookReq("2024-03-04", "9:30 AM"))
	svc.Book(ctx, hospital, bookReq("2024-03-05", "9:00 AM"))

	today, err := svc.ListDay(ctx, hospital, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(today) != 2 || today[0].Time != "9:30 AM" {
		t.Errorf("expected today's two appointments in time order, got %d", len(today))
	}

	empty, _ := svc.ListDay(ctx, hospital, "2024-04-01")
	if empty == nil || len(empty) != 0 {
		t.Error("expected empty non-nil list")
	}

	_, err = svc.ListDay(ctx, hospital, "someday")
	assertKind(t, err, apperr.KindValidation)
}

func TestService_FullDates(t *testing.T) {
	svc, repo := newTestService()
	hospital := uuid.New()
	ctx := context.Background()

	fillDay(t, svc, hospital, "2024-03-04", 15)
	fillDay(t, svc, hospital, "2024-03-10", 14)
	fillDay(t, svc, hospital, "2024-04-02", 15)
	// Day 31 from today is outside the window.
	for i := 0; i < 15; i++ {
		repo.Create(ctx, &Appointment{HospitalID: hospital, Date: "2024-04-03", Time: fmt.Sprint(i)})
	}

	full, err := svc.FullDates(ctx, hospital)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full) != 2 || full[0] != "2024-03-04" || full[1] != "2024-04-02" {
		t.Errorf("unexpected full dates %v", full)
	}

	none, _ := svc.FullDates(ctx, uuid.New())
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %v", none)
	}
}

func TestService_CustomCapacity(t *testing.T) {
	repo := newMockAppointmentRepo()
	svc := NewService(mockTx{}, repo, 2, nil, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	hospital := uuid.New()

	fillDay(t, svc, hospital, "2024-03-05", 2)
	_, err := svc.Book(context.Background(), hospital, bookReq("2024-03-05", "23:00"))
	assertKind(t, err, apperr.KindConflict)

	full, _ := svc.FullDates(context.Background(), hospital)
	if len(full) != 1 {
		t.Errorf("expected one full date at capacity 2, got %v", full)
	}
}

func TestService_PrunePast(t *testing.T) {
	svc, repo := newTestService()
	hospital := uuid.New()
	repo.Create(context.Background(), &Appointment{HospitalID: hospital, Date: "2024-03-01", Time: "10:00"})
	repo.Create(context.Background(), &Appointment{HospitalID: hospital, Date: "2024-03-04", Time: "10:00"})

	n, err := svc.PrunePast(context.Background(), hospital)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || len(repo.appts) != 1 {
		t.Errorf("expected 1 pruned and 1 kept, got pruned=%d kept=%d", n, len(repo.appts))
	}
}

type recordingPublisher struct{ events []websocket.Event }

func (r *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestService_PublishesCommittedChanges(t *testing.T) {
	svc, _ := newTestService()
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	hospital := uuid.New()
	ctx := context.Background()

	a, err := svc.Book(ctx, hospital, bookReq("2024-03-05", "10:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	svc.Book(ctx, hospital, bookReq("2024-03-05", "10:00"))
	if _, err := svc.Reschedule(ctx, hospital, a.ID, RescheduleRequest{NewDate: "2024-03-06", NewTime: "11:00"}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if err := svc.Cancel(ctx, hospital, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	want := []string{EventBooked, EventRescheduled, EventCancelled}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(pub.events))
	}
	for i, ev := range pub.events {
		if ev.Type != want[i] || ev.HospitalID != hospital || ev.ResourceID != a.ID.String() {
			t.Errorf("event %d: unexpected %+v", i, ev)
		}
	}
}
