package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medbook/clinic-booking-bot/internal/catalog"
	redisclient "github.com/medbook/clinic-booking-bot/internal/redis"
)

var (
	// ErrSlotTaken means the slot was booked between selection and
	// commit. Recoverable: the caller should re-offer fresh slots.
	ErrSlotTaken = errors.New("slot already booked")
	// ErrScheduleBusy means another commit holds the schedule lock
	// for the same doctor and date. Recoverable the same way.
	ErrScheduleBusy = errors.New("schedule is being booked, retry")
	// ErrSlotOutsideHours means the requested time is not on the
	// working-hours grid at all.
	ErrSlotOutsideHours = errors.New("slot outside working hours")

	ErrDoctorNotFound     = catalog.ErrDoctorNotFound
	ErrDepartmentNotFound = catalog.ErrDepartmentNotFound
)

// Engine computes per-doctor availability and commits appointments
// against the shared store. Reads are advisory; Commit re-validates
// under the schedule lock, so two sessions racing for one slot cannot
// both win.
type Engine struct {
	cat    *catalog.Catalog
	store  Store
	locker Locker
	now    func() time.Time
}

type EngineOption func(*Engine)

// WithClock overrides the engine clock, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cat *catalog.Catalog, store Store, locker Locker, opts ...EngineOption) *Engine {
	e := &Engine{
		cat:    cat,
		store:  store,
		locker: locker,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Departments returns all departments in catalog order.
func (e *Engine) Departments() []catalog.Department {
	return e.cat.Departments()
}

// DoctorsByDepartment returns the department's doctors. Empty means
// the department currently has no doctors, not an error.
func (e *Engine) DoctorsByDepartment(departmentID int64) []catalog.Doctor {
	return e.cat.DoctorsByDepartment(departmentID)
}

func (e *Engine) Department(id int64) (catalog.Department, error) {
	return e.cat.Department(id)
}

func (e *Engine) Doctor(id int64) (catalog.Doctor, error) {
	return e.cat.Doctor(id)
}

// AvailableSlots returns the bookable slot starts for one doctor and
// date: the working-hours grid minus the break minus everything
// already booked. The result is ordered and recomputed on every call.
// A valid doctor with a fully booked day yields an empty, nil-error
// result; an unknown doctor yields ErrDoctorNotFound.
func (e *Engine) AvailableSlots(ctx context.Context, doctorID int64, date string) ([]string, error) {
	if _, err := e.cat.Doctor(doctorID); err != nil {
		return nil, err
	}
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	booked, err := e.store.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	grid := Grid(e.cat.WorkingHours(), e.cat.BreakHours())
	free := make([]string, 0, len(grid))
	for _, slot := range grid {
		if !taken[slot] {
			free = append(free, slot)
		}
	}
	return free, nil
}

// CommitRequest carries everything a finished booking dialogue has
// collected.
type CommitRequest struct {
	UserID      int64
	DoctorID    int64
	Date        string
	Time        string
	PatientName string
	Phone       string
}

// Commit validates and persists a new appointment as one atomic unit.
// The slot is re-checked against current availability inside the
// schedule lock, so a stale selection made earlier in the dialogue
// surfaces as ErrSlotTaken instead of a silent double-booking.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*Appointment, error) {
	if _, err := e.cat.Doctor(req.DoctorID); err != nil {
		return nil, err
	}
	if _, err := ParseDate(req.Date); err != nil {
		return nil, err
	}

	grid := Grid(e.cat.WorkingHours(), e.cat.BreakHours())
	if !gridContains(grid, req.Time) {
		return nil, ErrSlotOutsideHours
	}

	var created *Appointment

	err := e.locker.WithScheduleLock(ctx, req.DoctorID, req.Date, func(lockCtx context.Context) error {
		booked, err := e.store.BookedTimes(lockCtx, req.DoctorID, req.Date)
		if err != nil {
			return fmt.Errorf("check booked times: %w", err)
		}
		for _, t := range booked {
			if t == req.Time {
				return ErrSlotTaken
			}
		}

		appt := Appointment{
			UserID:      req.UserID,
			DoctorID:    req.DoctorID,
			Date:        req.Date,
			Time:        req.Time,
			PatientName: req.PatientName,
			Phone:       req.Phone,
			CreatedAt:   e.now(),
		}
		id, err := e.store.Append(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("append appointment: %w", err)
		}
		appt.ID = id
		created = &appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}
	return created, nil
}

// UserAppointments returns a user's bookings sorted by (date, time).
func (e *Engine) UserAppointments(ctx context.Context, userID int64) ([]Appointment, error) {
	appts, err := e.store.ByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user appointments: %w", err)
	}
	return appts, nil
}
