package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/db"
	"github.com/frontdesk/frontdesk/internal/platform/websocket"
	"github.com/frontdesk/frontdesk/pkg/mobile"
)

// DefaultDailyCapacity is the number of appointments a hospital takes per day.
const DefaultDailyCapacity = 15

// fullDatesWindow is how many days, today included, FullDates inspects.
const fullDatesWindow = 30

// Event types pushed to the hospital's desks.
const (
	EventBooked      = "appointment.booked"
	EventRescheduled = "appointment.rescheduled"
	EventCancelled   = "appointment.cancelled"
)

type Service struct {
	tx           db.Transactor
	appointments AppointmentRepository
	capacity     int
	loc          *time.Location
	events       websocket.Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(tx db.Transactor, appointments AppointmentRepository, capacity int,
	loc *time.Location, logger zerolog.Logger) *Service {
	if capacity <= 0 {
		capacity = DefaultDailyCapacity
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		tx:           tx,
		appointments: appointments,
		capacity:     capacity,
		loc:          loc,
		events:       websocket.Discard{},
		logger:       logger.With().Str("component", "scheduling").Logger(),
		now:          time.Now,
	}
}

// SetPublisher sends booking changes to p once they have committed.
func (s *Service) SetPublisher(p websocket.Publisher) {
	if p == nil {
		p = websocket.Discard{}
	}
	s.events = p
}

func (s *Service) publish(ctx context.Context, typ string, hospitalID, id uuid.UUID, data interface{}) {
	ev := websocket.NewEvent(typ, hospitalID, "Appointment", id.String(), data)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("type", typ).Msg("event not published")
	}
}

func requireHospital(hospitalID uuid.UUID) error {
	if hospitalID == uuid.Nil {
		return apperr.Unauthorized("")
	}
	return nil
}

type BookRequest struct {
	PatientName     string `json:"patientName"`
	Address         string `json:"address"`
	Mobile          string `json:"mobile"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
}

type RescheduleRequest struct {
	NewDate string `json:"newDate"`
	NewTime string `json:"newTime"`
}

func (s *Service) today() string {
	return Today(s.now(), s.loc)
}

// Book checks the slot and the day's capacity, prunes the hospital's past
// appointments and inserts, all under the day lock.
func (s *Service) Book(ctx context.Context, hospitalID uuid.UUID, req BookRequest) (*Appointment, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	a := &Appointment{
		HospitalID:  hospitalID,
		PatientName: strings.TrimSpace(req.PatientName),
		Address:     strings.TrimSpace(req.Address),
		Mobile:      mobile.Normalize(req.Mobile),
		Time:        strings.TrimSpace(req.AppointmentTime),
	}
	if a.PatientName == "" || a.Mobile == "" || req.AppointmentDate == "" || a.Time == "" {
		return nil, apperr.Validation("Patient name, mobile, date and time are required")
	}
	if !mobile.Valid(a.Mobile) {
		return nil, apperr.Validation("Mobile number must be exactly 10 digits")
	}
	day, ok := ParseDay(req.AppointmentDate, s.loc)
	if !ok {
		return nil, apperr.Validation("Invalid appointment date")
	}
	a.Date = day

	var pruned int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkDay(ctx, hospitalID, day, a.Time, uuid.Nil,
			"Time slot already booked", fmt.Sprintf("Max %d appointments reached for the day", s.capacity)); err != nil {
			return err
		}
		var err error
		if pruned, err = s.appointments.DeleteBefore(ctx, hospitalID, s.today()); err != nil {
			return err
		}
		err = s.appointments.Create(ctx, a)
		if apperr.IsDuplicate(err) {
			return apperr.Conflict("Time slot already booked")
		}
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("book appointment", err)
	}

	s.logger.Info().
		Str("hospital_id", hospitalID.String()).
		Str("date", a.Date).
		Str("time", a.Time).
		Int64("pruned", pruned).
		Msg("appointment booked")
	s.publish(ctx, EventBooked, hospitalID, a.ID, a)
	return a, nil
}

// checkDay locks the day and rejects an occupied slot or a full day. exclude
// is left out of both checks.
func (s *Service) checkDay(ctx context.Context, hospitalID uuid.UUID, day, slot string, exclude uuid.UUID,
	slotMsg, capacityMsg string) error {
	if err := s.appointments.LockDay(ctx, hospitalID, day); err != nil {
		return err
	}
	taken, err := s.appointments.SlotTaken(ctx, hospitalID, day, slot, exclude)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict(slotMsg)
	}
	n, err := s.appointments.CountOnDay(ctx, hospitalID, day, exclude)
	if err != nil {
		return err
	}
	if n >= s.capacity {
		return apperr.Conflict(capacityMsg)
	}
	return nil
}

// Reschedule moves an appointment to a new day and slot, applying the booking
// checks with the appointment itself excluded.
func (s *Service) Reschedule(ctx context.Context, hospitalID, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.NewDate) == "" {
		return nil, apperr.Validation("Date is required")
	}
	slot := strings.TrimSpace(req.NewTime)
	if slot == "" {
		return nil, apperr.Validation("Time is required")
	}
	day, ok := ParseDay(req.NewDate, s.loc)
	if !ok {
		return nil, apperr.Validation("Invalid appointment date")
	}

	var moved *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.appointments.GetByID(ctx, hospitalID, id); err != nil {
			if apperr.IsNoRecord(err) {
				return apperr.NotFound("Appointment not found")
			}
			return err
		}
		if err := s.checkDay(ctx, hospitalID, day, slot, id,
			"Another appointment already exists at this time", "Max appointments reached for that date"); err != nil {
			return err
		}
		var err error
		moved, err = s.appointments.Move(ctx, hospitalID, id, day, slot)
		switch {
		case apperr.IsDuplicate(err):
			return apperr.Conflict("Another appointment already exists at this time")
		case apperr.IsNoRecord(err):
			return apperr.NotFound("Appointment not found")
		}
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("reschedule appointment", err)
	}
	s.publish(ctx, EventRescheduled, hospitalID, moved.ID, moved)
	return moved, nil
}

func (s *Service) Cancel(ctx context.Context, hospitalID, id uuid.UUID) error {
	if err := requireHospital(hospitalID); err != nil {
		return err
	}
	err := s.appointments.Delete(ctx, hospitalID, id)
	if apperr.IsNoRecord(err) {
		return apperr.NotFound("Appointment not found")
	}
	if err != nil {
		return apperr.Wrap("cancel appointment", err)
	}
	s.publish(ctx, EventCancelled, hospitalID, id, nil)
	return nil
}

// ListDay returns the appointments of day, or of today when day is empty,
// ordered by time.
func (s *Service) ListDay(ctx context.Context, hospitalID uuid.UUID, day string) ([]*Appointment, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	target := s.today()
	if strings.TrimSpace(day) != "" {
		var ok bool
		if target, ok = ParseDay(day, s.loc); !ok {
			return nil, apperr.Validation("Invalid date")
		}
	}
	items, err := s.appointments.ListDay(ctx, hospitalID, target)
	if err != nil {
		return nil, apperr.Wrap("list appointments", err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	SortByTime(items)
	return items, nil
}

// FullDates returns the days in the next 30, today included, that have
// reached capacity.
func (s *Service) FullDates(ctx context.Context, hospitalID uuid.UUID) ([]string, error) {
	if err := requireHospital(hospitalID); err != nil {
		return nil, err
	}
	days := NextDays(s.today(), fullDatesWindow)
	counts, err := s.appointments.CountsBetween(ctx, hospitalID, days[0], days[len(days)-1])
	if err != nil {
		return nil, apperr.Wrap("count appointments", err)
	}
	full := []string{}
	for _, d := range days {
		if counts[d] >= s.capacity {
			full = append(full, d)
		}
	}
	return full, nil
}

// PrunePast deletes the hospital's appointments dated before today.
func (s *Service) PrunePast(ctx context.Context, hospitalID uuid.UUID) (int64, error) {
	if err := requireHospital(hospitalID); err != nil {
		return 0, err
	}
	n, err := s.appointments.DeleteBefore(ctx, hospitalID, s.today())
	if err != nil {
		return 0, apperr.Wrap("prune appointments", err)
	}
	s.logger.Info().Str("hospital_id", hospitalID.String()).Int64("pruned", n).Msg("past appointments pruned")
	return n, nil
}
