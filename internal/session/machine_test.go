package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbook/clinic-booking-bot/internal/catalog"
	"github.com/medbook/clinic-booking-bot/internal/reminder"
	"github.com/medbook/clinic-booking-bot/internal/schedule"
)

type capturedPrompt struct {
	UserID  int64
	Text    string
	Choices []Choice
}

type fakeChannel struct {
	mu      sync.Mutex
	prompts []capturedPrompt
}

func (c *fakeChannel) Prompt(_ context.Context, userID int64, text string, choices []Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, capturedPrompt{UserID: userID, Text: text, Choices: choices})
	return nil
}

func (c *fakeChannel) last(t *testing.T) capturedPrompt {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.prompts)
	return c.prompts[len(c.prompts)-1]
}

type fakeReminders struct {
	fireAt   time.Time
	payloads []reminder.Payload
}

func (r *fakeReminders) Schedule(_ context.Context, fireAt time.Time, p reminder.Payload) error {
	r.fireAt = fireAt
	r.payloads = append(r.payloads, p)
	return nil
}

type fixture struct {
	machine   *Machine
	engine    *schedule.Engine
	channel   *fakeChannel
	reminders *fakeReminders
	clock     *time.Time
}

// monday is a fixed reference clock; 2024-06-03 was a Monday.
var monday = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, schedule.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store schedule.Store) *fixture {
	t.Helper()

	clock := monday
	now := func() time.Time { return clock }

	engine := schedule.NewEngine(
		catalog.Default(),
		store,
		schedule.NewMutexLocker(),
		schedule.WithClock(now),
	)
	channel := &fakeChannel{}
	reminders := &fakeReminders{}
	machine := NewMachine(engine, channel, reminders, Config{
		IdleTimeout: 30 * time.Minute,
	}, WithClock(now))

	return &fixture{
		machine:   machine,
		engine:    engine,
		channel:   channel,
		reminders: reminders,
		clock:     &clock,
	}
}

func (f *fixture) send(t *testing.T, userID int64, ev Event) {
	t.Helper()
	require.NoError(t, f.machine.HandleEvent(context.Background(), userID, ev))
}

func choice(value string) Event { return Event{Kind: EventChoice, Value: value} }
func text(value string) Event   { return Event{Kind: EventText, Value: value} }

// advance drives a session up to the given state along the happy path.
func (f *fixture) advance(t *testing.T, userID int64, target State) {
	t.Helper()

	steps := []struct {
		state State
		ev    Event
	}{
		{StateSelectDepartment, choice("dept_1")},
		{StateSelectDoctor, choice("doc_1")},
		{StateSelectDate, choice("date_2024-06-04")},
		{StateSelectTime, choice("time_10:00")},
		{StateEnterName, text("Ivan Petrov")},
		{StateEnterPhone, text("+7 916 1234567")},
	}

	f.send(t, userID, Event{Kind: EventStart})
	for _, step := range steps {
		state, ok := f.machine.SessionState(userID)
		require.True(t, ok)
		if state == target {
			return
		}
		require.Equal(t, step.state, state)
		f.send(t, userID, step.ev)
	}

	state, ok := f.machine.SessionState(userID)
	require.True(t, ok)
	require.Equal(t, target, state)
}

func TestStartPromptsDepartments(t *testing.T) {
	f := newFixture(t)

	f.send(t, 1, Event{Kind: EventStart})

	p := f.channel.last(t)
	assert.Equal(t, msgChooseDepartment, p.Text)
	assert.Len(t, p.Choices, 5)
	assert.Equal(t, "dept_1", p.Choices[0].Key)

	state, ok := f.machine.SessionState(1)
	require.True(t, ok)
	assert.Equal(t, StateSelectDepartment, state)
}

func TestFullBookingFlow(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateConfirm)

	p := f.channel.last(t)
	assert.Contains(t, p.Text, "Dr. Ivanov")
	assert.Contains(t, p.Text, "04.06.2024")
	assert.Contains(t, p.Text, "10:00")
	assert.Contains(t, p.Text, "Ivan Petrov")

	f.send(t, 1, choice("confirm_yes"))

	p = f.channel.last(t)
	assert.Contains(t, p.Text, "Booking #1")

	_, ok := f.machine.SessionState(1)
	assert.False(t, ok, "session should be discarded after completion")

	appts, err := f.engine.UserAppointments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "2024-06-04", appts[0].Date)
	assert.Equal(t, "10:00", appts[0].Time)
	assert.Equal(t, "Ivan Petrov", appts[0].PatientName)
	assert.Equal(t, "+7 916 1234567", appts[0].Phone)

	// Reminder fires 24h before the slot.
	require.Len(t, f.reminders.payloads, 1)
	assert.Equal(t, reminder.Payload{UserID: 1, AppointmentID: 1}, f.reminders.payloads[0])
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), f.reminders.fireAt)
}

func TestRejectDoesNotCommit(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateConfirm)

	f.send(t, 1, choice("confirm_no"))

	assert.Equal(t, msgCancelled, f.channel.last(t).Text)
	_, ok := f.machine.SessionState(1)
	assert.False(t, ok)

	appts, err := f.engine.UserAppointments(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestDateWindowWeekdaysOnly(t *testing.T) {
	f := newFixture(t)

	// Friday start: 14 raw days contain 4 weekend days.
	friday := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)
	window := f.machine.dateWindow(friday)

	assert.Len(t, window, 10)
	for _, d := range window {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestDateWindowShiftsWithClock(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateSelectDate)

	// A day passes mid-session; the old first date is gone.
	*f.clock = monday.AddDate(0, 0, 1)

	f.send(t, 1, choice("date_2024-06-04"))
	state, _ := f.machine.SessionState(1)
	assert.Equal(t, StateSelectDate, state, "yesterday's window entry must be rejected")

	f.send(t, 1, choice("date_2024-06-05"))
	state, _ = f.machine.SessionState(1)
	assert.Equal(t, StateSelectTime, state)
}

func TestInvalidNameKeepsState(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateEnterName)

	f.send(t, 1, text("Ivan"))

	assert.Equal(t, msgBadName, f.channel.last(t).Text)
	state, ok := f.machine.SessionState(1)
	require.True(t, ok)
	assert.Equal(t, StateEnterName, state)
	assert.Empty(t, f.machine.sessions[1].PatientName)
}

func TestInvalidPhoneKeepsState(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateEnterPhone)

	for _, bad := range []string{"12345", "not a phone", "+7 916 12b4567"} {
		f.send(t, 1, text(bad))
		assert.Equal(t, msgBadPhone, f.channel.last(t).Text)
		state, _ := f.machine.SessionState(1)
		assert.Equal(t, StateEnterPhone, state)
		assert.Empty(t, f.machine.sessions[1].Phone)
	}
}

func TestUnexpectedInputRepromptsWithoutTransition(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, Event{Kind: EventStart})

	f.send(t, 1, text("hello?"))

	assert.Equal(t, msgChooseDepartment, f.channel.last(t).Text)
	state, _ := f.machine.SessionState(1)
	assert.Equal(t, StateSelectDepartment, state)
}

func TestBackNavigation(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateEnterName)

	s := f.machine.sessions[1]
	require.Equal(t, "2024-06-04", s.Date)
	require.Equal(t, "10:00", s.Time)

	// Name entry has no back button, wind back from SelectTime
	// instead: restart the tail of the dialogue.
	s.State = StateSelectTime
	f.send(t, 1, choice("back"))
	state, _ := f.machine.SessionState(1)
	assert.Equal(t, StateSelectDate, state)

	f.send(t, 1, choice("back"))
	state, _ = f.machine.SessionState(1)
	assert.Equal(t, StateSelectDoctor, state)
}

func TestChangingDoctorClearsDateAndTime(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateEnterName)

	s := f.machine.sessions[1]
	s.State = StateSelectTime

	// Back to date, back to doctor, then pick a different doctor.
	f.send(t, 1, choice("back"))
	f.send(t, 1, choice("back"))
	f.send(t, 1, choice("doc_2"))

	s = f.machine.sessions[1]
	assert.Equal(t, int64(2), s.DoctorID)
	assert.Empty(t, s.Date, "date must be cleared when the doctor changes")
	assert.Empty(t, s.Time, "time must be cleared when the doctor changes")

	state, _ := f.machine.SessionState(1)
	assert.Equal(t, StateSelectDate, state)
}

func TestReselectingSameDoctorKeepsDate(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateEnterName)

	s := f.machine.sessions[1]
	s.State = StateSelectTime

	f.send(t, 1, choice("back"))
	f.send(t, 1, choice("back"))
	f.send(t, 1, choice("doc_1"))

	s = f.machine.sessions[1]
	assert.Equal(t, "2024-06-04", s.Date, "unchanged doctor keeps the chosen date")
}

func TestCancelFromAnyState(t *testing.T) {
	for _, target := range []State{StateSelectDepartment, StateSelectDate, StateEnterPhone, StateConfirm} {
		f := newFixture(t)
		f.advance(t, 1, target)

		f.send(t, 1, Event{Kind: EventCancel})

		assert.Equal(t, msgCancelled, f.channel.last(t).Text)
		_, ok := f.machine.SessionState(1)
		assert.False(t, ok, "cancel from %s must discard the session", target)
	}
}

func TestCommitConflictLoopsToSelectTime(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateConfirm)

	// Another user grabs the slot before confirmation.
	_, err := f.engine.Commit(context.Background(), schedule.CommitRequest{
		UserID: 99, DoctorID: 1, Date: "2024-06-04", Time: "10:00",
		PatientName: "Taken First", Phone: "+79160000000",
	})
	require.NoError(t, err)

	f.send(t, 1, choice("confirm_yes"))

	state, ok := f.machine.SessionState(1)
	require.True(t, ok, "conflict is recoverable, session survives")
	assert.Equal(t, StateSelectTime, state)
	assert.Empty(t, f.machine.sessions[1].Time)

	p := f.channel.last(t)
	assert.Equal(t, msgChooseSlot, p.Text)
	for _, c := range p.Choices {
		assert.NotEqual(t, "time_10:00", c.Key, "taken slot must not be re-offered")
	}

	// Picking a fresh slot completes the booking.
	f.send(t, 1, choice("time_11:00"))
	f.send(t, 1, text("Ivan Petrov"))
	f.send(t, 1, text("+79161234567"))
	f.send(t, 1, choice("confirm_yes"))

	appts, err := f.engine.UserAppointments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "11:00", appts[0].Time)
}

func TestSelectTimeRechecksAvailability(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateSelectTime)

	_, err := f.engine.Commit(context.Background(), schedule.CommitRequest{
		UserID: 99, DoctorID: 1, Date: "2024-06-04", Time: "10:00",
		PatientName: "Taken First", Phone: "+79160000000",
	})
	require.NoError(t, err)

	f.send(t, 1, choice("time_10:00"))

	state, _ := f.machine.SessionState(1)
	assert.Equal(t, StateSelectTime, state)
	assert.Empty(t, f.machine.sessions[1].Time)
}

func TestMyAppointmentsListing(t *testing.T) {
	f := newFixture(t)

	f.send(t, 1, Event{Kind: EventMyAppointments})
	assert.Equal(t, msgNoAppointments, f.channel.last(t).Text)

	_, err := f.engine.Commit(context.Background(), schedule.CommitRequest{
		UserID: 1, DoctorID: 1, Date: "2024-06-04", Time: "10:00",
		PatientName: "Ivan Petrov", Phone: "+79161234567",
	})
	require.NoError(t, err)

	f.send(t, 1, Event{Kind: EventMyAppointments})

	p := f.channel.last(t)
	assert.Contains(t, p.Text, "#1")
	assert.Contains(t, p.Text, "Dr. Ivanov")
	assert.Contains(t, p.Text, "04.06.2024")
	assert.Contains(t, p.Text, "10:00")
}

func TestDepartmentsListing(t *testing.T) {
	f := newFixture(t)

	f.send(t, 1, Event{Kind: EventDepartments})

	p := f.channel.last(t)
	for _, name := range []string{"Therapy", "Surgery", "Neurology", "Cardiology", "Ophthalmology"} {
		assert.Contains(t, p.Text, name)
	}
}

func TestEventWithoutSession(t *testing.T) {
	f := newFixture(t)

	f.send(t, 1, choice("dept_1"))
	assert.Equal(t, msgNoSession, f.channel.last(t).Text)
}

func TestSessionsAreIndependent(t *testing.T) {
	f := newFixture(t)

	f.advance(t, 1, StateEnterName)
	f.send(t, 2, Event{Kind: EventStart})

	state1, _ := f.machine.SessionState(1)
	state2, _ := f.machine.SessionState(2)
	assert.Equal(t, StateEnterName, state1)
	assert.Equal(t, StateSelectDepartment, state2)
}

func TestReapEvictsIdleSessions(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateSelectDate)
	f.send(t, 2, Event{Kind: EventStart})

	// Only user 2 stays active past the idle cutoff.
	*f.clock = monday.Add(31 * time.Minute)
	f.send(t, 2, choice("dept_1"))

	n := f.machine.Reap(*f.clock)
	assert.Equal(t, 1, n)

	_, ok := f.machine.SessionState(1)
	assert.False(t, ok)
	_, ok = f.machine.SessionState(2)
	assert.True(t, ok)
}

func TestValidPhone(t *testing.T) {
	valid := []string{"+79161234567", "89161234567", "+7 916 123 45 67", "1234567890"}
	for _, p := range valid {
		assert.True(t, validPhone(p), "expected %q to be accepted", p)
	}

	invalid := []string{"", "123456789", "phone number", "+7-916-1234567"}
	for _, p := range invalid {
		assert.False(t, validPhone(p), "expected %q to be rejected", p)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "select_department", StateSelectDepartment.String())
	assert.Equal(t, "confirm", StateConfirm.String())
	assert.Equal(t, "done", StateDone.String())
}

// failingStore answers reads from the wrapped store but refuses every
// append, standing in for persistence going down mid-dialogue.
type failingStore struct {
	*schedule.MemoryStore
}

func (s *failingStore) Append(context.Context, schedule.Appointment) (int64, error) {
	return 0, assert.AnError
}

func TestStoreFailureEndsSession(t *testing.T) {
	f := newFixtureWithStore(t, &failingStore{MemoryStore: schedule.NewMemoryStore()})
	f.advance(t, 1, StateConfirm)

	f.send(t, 1, choice("confirm_yes"))

	assert.Equal(t, msgFailure, f.channel.last(t).Text)
	_, ok := f.machine.SessionState(1)
	assert.False(t, ok, "store failure must discard the session")
	assert.Empty(t, f.reminders.payloads, "no reminder for a failed commit")
}

func TestConflictFallsBackToSelectDateWhenDayFills(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateConfirm)

	// The whole day fills up before the user confirms.
	ctx := context.Background()
	grid := schedule.Grid(catalog.Default().WorkingHours(), catalog.Default().BreakHours())
	for i, slot := range grid {
		_, err := f.engine.Commit(ctx, schedule.CommitRequest{
			UserID: int64(100 + i), DoctorID: 1, Date: "2024-06-04", Time: slot,
			PatientName: "Taken First", Phone: "+79160000000",
		})
		require.NoError(t, err)
	}

	f.send(t, 1, choice("confirm_yes"))

	state, ok := f.machine.SessionState(1)
	require.True(t, ok, "conflict is recoverable, session survives")
	assert.Equal(t, StateSelectDate, state)
	assert.Empty(t, f.machine.sessions[1].Date)
	assert.Empty(t, f.machine.sessions[1].Time)
	assert.Contains(t, f.channel.last(t).Text, "Choose an appointment date")
}

func TestEmptyDepartmentRepromptsSelection(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, Event{Kind: EventStart})

	// Ophthalmology ships without doctors in the default catalog.
	f.send(t, 1, choice("dept_5"))

	state, ok := f.machine.SessionState(1)
	require.True(t, ok)
	assert.Equal(t, StateSelectDepartment, state)
	assert.Zero(t, f.machine.sessions[1].DepartmentID)

	f.channel.mu.Lock()
	prompts := f.channel.prompts
	f.channel.mu.Unlock()
	require.GreaterOrEqual(t, len(prompts), 2)
	assert.Equal(t, msgNoDoctors, prompts[len(prompts)-2].Text)
	assert.Equal(t, msgChooseDepartment, prompts[len(prompts)-1].Text)
}

// gateChannel parks the gated user inside Prompt until released,
// simulating a stalled delivery for that one dialogue.
type gateChannel struct {
	fakeChannel
	gateUser int64
	entered  chan struct{}
	release  chan struct{}
}

func (c *gateChannel) Prompt(ctx context.Context, userID int64, text string, choices []Choice) error {
	if userID == c.gateUser {
		c.entered <- struct{}{}
		<-c.release
	}
	return c.fakeChannel.Prompt(ctx, userID, text, choices)
}

func TestStalledUserDoesNotBlockOthers(t *testing.T) {
	now := func() time.Time { return monday }
	engine := schedule.NewEngine(
		catalog.Default(),
		schedule.NewMemoryStore(),
		schedule.NewMutexLocker(),
		schedule.WithClock(now),
	)
	channel := &gateChannel{
		gateUser: 1,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	machine := NewMachine(engine, channel, &fakeReminders{}, Config{}, WithClock(now))
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = machine.HandleEvent(ctx, 1, Event{Kind: EventStart})
	}()
	<-channel.entered // user 1 is now stuck inside its prompt

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- machine.HandleEvent(ctx, 2, Event{Kind: EventStart})
	}()

	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second user's event blocked behind first user's prompt")
	}

	close(channel.release)
	<-firstDone
}

func TestSummaryMentionsEveryField(t *testing.T) {
	f := newFixture(t)
	f.advance(t, 1, StateConfirm)

	p := f.channel.last(t)
	for _, want := range []string{"Dr. Ivanov", "04.06.2024", "10:00", "Ivan Petrov", "+7 916 1234567"} {
		assert.True(t, strings.Contains(p.Text, want), "summary missing %q:\n%s", want, p.Text)
	}
}
