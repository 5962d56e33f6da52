package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/medbook/clinic-booking-bot/internal/reminder"
	"github.com/medbook/clinic-booking-bot/internal/schedule"
)

// ReminderScheduler arranges the day-before reminder for a committed
// appointment.
type ReminderScheduler interface {
	Schedule(ctx context.Context, fireAt time.Time, p reminder.Payload) error
}

type Config struct {
	IdleTimeout  time.Duration // session is evicted after this much silence
	ReapInterval time.Duration // how often the reaper runs
	ReminderLead time.Duration // how long before the slot the reminder fires
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 5 * time.Minute
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = 24 * time.Hour
	}
}

// Machine drives one booking dialogue per user. Event handling is
// serialized per user only, so a slow store call or prompt in one
// dialogue never stalls another user's; the availability engine owns
// all shared-store locking. Invalid input never transitions a
// session, it only re-prompts.
type Machine struct {
	mu        sync.Mutex // guards sessions and userLocks
	sessions  map[int64]*Session
	userLocks map[int64]*sync.Mutex
	engine    *schedule.Engine
	channel   Channel
	reminders ReminderScheduler
	cfg       Config
	now       func() time.Time
}

type Option func(*Machine)

// WithClock overrides the machine clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(engine *schedule.Engine, channel Channel, reminders ReminderScheduler, cfg Config, opts ...Option) *Machine {
	cfg.applyDefaults()
	m := &Machine{
		sessions:  make(map[int64]*Session),
		userLocks: make(map[int64]*sync.Mutex),
		engine:    engine,
		channel:   channel,
		reminders: reminders,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionState reports the state of a user's session, if any.
func (m *Machine) SessionState(userID int64) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return StateDone, false
	}
	return s.State, true
}

// HandleEvent feeds one user input into the machine.
func (m *Machine) HandleEvent(ctx context.Context, userID int64, ev Event) error {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	switch ev.Kind {
	case EventStart:
		return m.startBooking(ctx, userID)
	case EventCancel:
		m.dropSession(userID)
		return m.channel.Prompt(ctx, userID, msgCancelled, nil)
	case EventMyAppointments:
		return m.listAppointments(ctx, userID)
	case EventDepartments:
		return m.listDepartments(ctx, userID)
	}

	s, ok := m.touchSession(userID)
	if !ok {
		return m.channel.Prompt(ctx, userID, msgNoSession, nil)
	}

	switch s.State {
	case StateSelectDepartment:
		return m.handleSelectDepartment(ctx, s, ev)
	case StateSelectDoctor:
		return m.handleSelectDoctor(ctx, s, ev)
	case StateSelectDate:
		return m.handleSelectDate(ctx, s, ev)
	case StateSelectTime:
		return m.handleSelectTime(ctx, s, ev)
	case StateEnterName:
		return m.handleEnterName(ctx, s, ev)
	case StateEnterPhone:
		return m.handleEnterPhone(ctx, s, ev)
	case StateConfirm:
		return m.handleConfirm(ctx, s, ev)
	default:
		m.dropSession(userID)
		return m.channel.Prompt(ctx, userID, msgNoSession, nil)
	}
}

// userLock returns the mutex serializing one user's events, creating
// it on first use. Locks are never removed; the footprint is one
// mutex per user ever seen.
func (m *Machine) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

// touchSession looks up a session and refreshes its activity stamp.
// The caller must hold the user's lock; session fields other than
// LastActivity are only ever touched under it.
func (m *Machine) touchSession(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if ok {
		s.LastActivity = m.now()
	}
	return s, ok
}

func (m *Machine) dropSession(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *Machine) startBooking(ctx context.Context, userID int64) error {
	m.mu.Lock()
	m.sessions[userID] = &Session{
		UserID:       userID,
		State:        StateSelectDepartment,
		LastActivity: m.now(),
	}
	m.mu.Unlock()
	return m.promptDepartments(ctx, userID)
}

func (m *Machine) handleSelectDepartment(ctx context.Context, s *Session, ev Event) error {
	id, ok := choiceID(ev, keyDepartment)
	if !ok {
		return m.promptDepartments(ctx, s.UserID)
	}
	if _, err := m.engine.Department(id); err != nil {
		return m.promptDepartments(ctx, s.UserID)
	}

	doctors := m.engine.DoctorsByDepartment(id)
	if len(doctors) == 0 {
		if err := m.channel.Prompt(ctx, s.UserID, msgNoDoctors, nil); err != nil {
			return err
		}
		return m.promptDepartments(ctx, s.UserID)
	}

	if s.DepartmentID != id {
		s.clearFromDoctor()
	}
	s.DepartmentID = id
	s.State = StateSelectDoctor
	return m.promptDoctors(ctx, s)
}

func (m *Machine) handleSelectDoctor(ctx context.Context, s *Session, ev Event) error {
	if isBack(ev) {
		s.State = StateSelectDepartment
		return m.promptDepartments(ctx, s.UserID)
	}

	id, ok := choiceID(ev, keyDoctor)
	if !ok {
		return m.promptDoctors(ctx, s)
	}
	doc, err := m.engine.Doctor(id)
	if err != nil || doc.DepartmentID != s.DepartmentID {
		return m.promptDoctors(ctx, s)
	}

	if s.DoctorID != id {
		s.clearFromDate()
	}
	s.DoctorID = id
	s.State = StateSelectDate
	return m.promptDates(ctx, s)
}

func (m *Machine) handleSelectDate(ctx context.Context, s *Session, ev Event) error {
	if isBack(ev) {
		s.State = StateSelectDoctor
		return m.promptDoctors(ctx, s)
	}

	date, ok := choiceValue(ev, keyDate)
	if !ok || !m.dateInWindow(date) {
		return m.promptDates(ctx, s)
	}

	slots, err := m.engine.AvailableSlots(ctx, s.DoctorID, date)
	if err != nil {
		return m.fail(ctx, s, err)
	}
	if len(slots) == 0 {
		if err := m.channel.Prompt(ctx, s.UserID, msgNoSlots, nil); err != nil {
			return err
		}
		return m.promptDates(ctx, s)
	}

	if s.Date != date {
		s.Time = ""
	}
	s.Date = date
	s.State = StateSelectTime
	return m.promptSlots(ctx, s, slots)
}

func (m *Machine) handleSelectTime(ctx context.Context, s *Session, ev Event) error {
	if isBack(ev) {
		s.State = StateSelectDate
		return m.promptDates(ctx, s)
	}

	slot, ok := choiceValue(ev, keyTime)
	if !ok {
		return m.repromptSlots(ctx, s)
	}

	// Availability is advisory and may have shifted since the list
	// was rendered, so re-check before accepting the selection.
	slots, err := m.engine.AvailableSlots(ctx, s.DoctorID, s.Date)
	if err != nil {
		return m.fail(ctx, s, err)
	}
	if !containsSlot(slots, slot) {
		if err := m.channel.Prompt(ctx, s.UserID, msgSlotGone, nil); err != nil {
			return err
		}
		return m.promptSlots(ctx, s, slots)
	}

	s.Time = slot
	s.State = StateEnterName
	return m.channel.Prompt(ctx, s.UserID, msgAskName, nil)
}

func (m *Machine) handleEnterName(ctx context.Context, s *Session, ev Event) error {
	if ev.Kind != EventText || len(strings.Fields(ev.Value)) < 2 {
		return m.channel.Prompt(ctx, s.UserID, msgBadName, nil)
	}

	s.PatientName = strings.TrimSpace(ev.Value)
	s.State = StateEnterPhone
	return m.channel.Prompt(ctx, s.UserID, msgAskPhone, nil)
}

func (m *Machine) handleEnterPhone(ctx context.Context, s *Session, ev Event) error {
	if ev.Kind != EventText || !validPhone(ev.Value) {
		return m.channel.Prompt(ctx, s.UserID, msgBadPhone, nil)
	}

	s.Phone = strings.TrimSpace(ev.Value)
	s.State = StateConfirm
	return m.promptConfirm(ctx, s)
}

func (m *Machine) handleConfirm(ctx context.Context, s *Session, ev Event) error {
	if ev.Kind != EventChoice {
		return m.promptConfirm(ctx, s)
	}

	switch ev.Value {
	case keyConfirmNo:
		m.dropSession(s.UserID)
		return m.channel.Prompt(ctx, s.UserID, msgCancelled, nil)
	case keyConfirmYes:
		return m.commit(ctx, s)
	default:
		return m.promptConfirm(ctx, s)
	}
}

func (m *Machine) commit(ctx context.Context, s *Session) error {
	appt, err := m.engine.Commit(ctx, schedule.CommitRequest{
		UserID:      s.UserID,
		DoctorID:    s.DoctorID,
		Date:        s.Date,
		Time:        s.Time,
		PatientName: s.PatientName,
		Phone:       s.Phone,
	})
	if errors.Is(err, schedule.ErrSlotTaken) || errors.Is(err, schedule.ErrScheduleBusy) {
		return m.recoverConflict(ctx, s)
	}
	if err != nil {
		return m.fail(ctx, s, err)
	}

	m.scheduleReminder(ctx, appt)

	m.dropSession(s.UserID)
	return m.channel.Prompt(ctx, s.UserID, m.successSummary(appt), nil)
}

// recoverConflict loops the dialogue back one step with refreshed
// availability. When the whole date filled up in the meantime, it
// falls back to date selection.
func (m *Machine) recoverConflict(ctx context.Context, s *Session) error {
	if err := m.channel.Prompt(ctx, s.UserID, msgSlotGone, nil); err != nil {
		return err
	}

	slots, err := m.engine.AvailableSlots(ctx, s.DoctorID, s.Date)
	if err != nil {
		return m.fail(ctx, s, err)
	}

	s.Time = ""
	if len(slots) == 0 {
		s.clearFromDate()
		s.State = StateSelectDate
		return m.promptDates(ctx, s)
	}
	s.State = StateSelectTime
	return m.promptSlots(ctx, s, slots)
}

// fail ends the session after an unrecoverable engine or store error.
func (m *Machine) fail(ctx context.Context, s *Session, err error) error {
	log.Printf("booking session failed user_id=%d state=%s error=%v", s.UserID, s.State, err)
	m.dropSession(s.UserID)
	return m.channel.Prompt(ctx, s.UserID, msgFailure, nil)
}

func (m *Machine) scheduleReminder(ctx context.Context, appt *schedule.Appointment) {
	start, err := schedule.SlotStart(appt.Date, appt.Time, m.now().Location())
	if err != nil {
		log.Printf("reminder skipped appointment_id=%d error=%v", appt.ID, err)
		return
	}

	fireAt := start.Add(-m.cfg.ReminderLead)
	p := reminder.Payload{UserID: appt.UserID, AppointmentID: appt.ID}
	if err := m.reminders.Schedule(ctx, fireAt, p); err != nil {
		// Fire-and-forget: a lost reminder never fails the booking.
		log.Printf("reminder schedule failed appointment_id=%d error=%v", appt.ID, err)
	}
}

func (m *Machine) listAppointments(ctx context.Context, userID int64) error {
	appts, err := m.engine.UserAppointments(ctx, userID)
	if err != nil {
		log.Printf("list appointments failed user_id=%d error=%v", userID, err)
		return m.channel.Prompt(ctx, userID, msgFailure, nil)
	}
	if len(appts) == 0 {
		return m.channel.Prompt(ctx, userID, msgNoAppointments, nil)
	}
	return m.channel.Prompt(ctx, userID, m.appointmentList(appts), nil)
}

func (m *Machine) listDepartments(ctx context.Context, userID int64) error {
	var b strings.Builder
	b.WriteString("Our departments:\n")
	for _, d := range m.engine.Departments() {
		fmt.Fprintf(&b, "- %s\n", d.Name)
	}
	return m.channel.Prompt(ctx, userID, b.String(), nil)
}

// Run periodically evicts idle sessions until the context is done.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(m.now()); n > 0 {
				log.Printf("reaped %d idle sessions", n)
			}
		}
	}
}

// Reap evicts sessions whose last activity is older than the idle
// timeout and reports how many were dropped.
func (m *Machine) Reap(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for userID, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.cfg.IdleTimeout {
			delete(m.sessions, userID)
			n++
		}
	}
	return n
}

func validPhone(raw string) bool {
	normalized := strings.ReplaceAll(strings.ReplaceAll(raw, "+", ""), " ", "")
	if len(normalized) < 10 {
		return false
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsSlot(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
