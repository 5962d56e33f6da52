package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medbook/clinic-booking-bot/internal/schedule"
)

// Choice key prefixes, kept in the callback-data style of the chat
// transport: "dept_1", "doc_3", "date_2024-06-03", "time_10:00".
const (
	keyDepartment = "dept"
	keyDoctor     = "doc"
	keyDate       = "date"
	keyTime       = "time"
	keyBack       = "back"
	keyConfirmYes = "confirm_yes"
	keyConfirmNo  = "confirm_no"
)

const (
	msgChooseDepartment = "Choose a department:"
	msgChooseDoctor     = "Choose a doctor:"
	msgChooseSlot       = "Choose an appointment time:"
	msgNoDoctors        = "This department currently has no doctors. Please choose another department."
	msgNoSlots          = "No free time on that date. Please choose another date."
	msgSlotGone         = "That time has just been taken. Please pick another one."
	msgAskName          = "Enter the patient's full name (at least first and last name):"
	msgBadName          = "Please enter the full name, at least two words."
	msgAskPhone         = "Enter your phone number, for example +79161234567:"
	msgBadPhone         = "Please enter a valid phone number (10 digits or more)."
	msgCancelled        = "Booking cancelled."
	msgFailure          = "Something went wrong and your booking was not saved. Please try again later."
	msgNoSession        = "Nothing in progress. Start a new booking first."
	msgNoAppointments   = "You have no appointments."
)

// dateWindowDays is how many raw calendar days ahead the date picker
// covers; weekends inside the window are skipped.
const dateWindowDays = 14

const displayDateLayout = "02.01.2006"

func isBack(ev Event) bool {
	return ev.Kind == EventChoice && ev.Value == keyBack
}

// choiceID extracts the numeric id from a "<prefix>_<id>" choice key.
func choiceID(ev Event, prefix string) (int64, bool) {
	v, ok := choiceValue(ev, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func choiceValue(ev Event, prefix string) (string, bool) {
	if ev.Kind != EventChoice {
		return "", false
	}
	v, ok := strings.CutPrefix(ev.Value, prefix+"_")
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// dateWindow lists the selectable appointment dates: the next
// dateWindowDays calendar days starting tomorrow, weekdays only. It
// is recomputed from the clock on every render, so a session resumed
// the next day sees a shifted window.
func (m *Machine) dateWindow(now time.Time) []time.Time {
	var days []time.Time
	for i := 1; i <= dateWindowDays; i++ {
		d := now.AddDate(0, 0, i)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

func (m *Machine) dateInWindow(date string) bool {
	for _, d := range m.dateWindow(m.now()) {
		if d.Format(schedule.DateLayout) == date {
			return true
		}
	}
	return false
}

func (m *Machine) promptDepartments(ctx context.Context, userID int64) error {
	depts := m.engine.Departments()
	choices := make([]Choice, 0, len(depts))
	for _, d := range depts {
		choices = append(choices, Choice{
			Key:   fmt.Sprintf("%s_%d", keyDepartment, d.ID),
			Label: d.Name,
		})
	}
	return m.channel.Prompt(ctx, userID, msgChooseDepartment, choices)
}

func (m *Machine) promptDoctors(ctx context.Context, s *Session) error {
	doctors := m.engine.DoctorsByDepartment(s.DepartmentID)
	choices := make([]Choice, 0, len(doctors)+1)
	for _, d := range doctors {
		choices = append(choices, Choice{
			Key:   fmt.Sprintf("%s_%d", keyDoctor, d.ID),
			Label: d.Name,
		})
	}
	choices = append(choices, backChoice())
	return m.channel.Prompt(ctx, s.UserID, msgChooseDoctor, choices)
}

func (m *Machine) promptDates(ctx context.Context, s *Session) error {
	window := m.dateWindow(m.now())
	choices := make([]Choice, 0, len(window)+1)
	for _, d := range window {
		choices = append(choices, Choice{
			Key:   fmt.Sprintf("%s_%s", keyDate, d.Format(schedule.DateLayout)),
			Label: fmt.Sprintf("%s (%s)", d.Format(displayDateLayout), d.Format("Mon")),
		})
	}
	choices = append(choices, backChoice())

	text := "Choose an appointment date:"
	if doc, err := m.engine.Doctor(s.DoctorID); err == nil {
		text = fmt.Sprintf("Doctor: %s\n\nChoose an appointment date:", doc.Name)
	}
	return m.channel.Prompt(ctx, s.UserID, text, choices)
}

func (m *Machine) promptSlots(ctx context.Context, s *Session, slots []string) error {
	choices := make([]Choice, 0, len(slots)+1)
	for _, slot := range slots {
		choices = append(choices, Choice{
			Key:   fmt.Sprintf("%s_%s", keyTime, slot),
			Label: slot,
		})
	}
	choices = append(choices, backChoice())
	return m.channel.Prompt(ctx, s.UserID, msgChooseSlot, choices)
}

func (m *Machine) repromptSlots(ctx context.Context, s *Session) error {
	slots, err := m.engine.AvailableSlots(ctx, s.DoctorID, s.Date)
	if err != nil {
		return m.fail(ctx, s, err)
	}
	return m.promptSlots(ctx, s, slots)
}

func (m *Machine) promptConfirm(ctx context.Context, s *Session) error {
	doctorName := ""
	if doc, err := m.engine.Doctor(s.DoctorID); err == nil {
		doctorName = doc.Name
	}

	text := fmt.Sprintf(
		"Please confirm the appointment:\n\nDoctor: %s\nDate: %s\nTime: %s\nPatient: %s\nPhone: %s\n\nIs everything correct?",
		doctorName, displayDate(s.Date), s.Time, s.PatientName, s.Phone,
	)
	choices := []Choice{
		{Key: keyConfirmYes, Label: "Confirm"},
		{Key: keyConfirmNo, Label: "Cancel"},
	}
	return m.channel.Prompt(ctx, s.UserID, text, choices)
}

func (m *Machine) successSummary(a *schedule.Appointment) string {
	doctorName := ""
	if doc, err := m.engine.Doctor(a.DoctorID); err == nil {
		doctorName = doc.Name
	}
	return fmt.Sprintf(
		"Your appointment is booked!\n\nBooking #%d\nDoctor: %s\nDate: %s\nTime: %s\nPatient: %s\n\nPlease arrive 10 minutes early.",
		a.ID, doctorName, displayDate(a.Date), a.Time, a.PatientName,
	)
}

func (m *Machine) appointmentList(appts []schedule.Appointment) string {
	var b strings.Builder
	b.WriteString("Your appointments:\n")
	for _, a := range appts {
		doctorName := ""
		if doc, err := m.engine.Doctor(a.DoctorID); err == nil {
			doctorName = doc.Name
		}
		fmt.Fprintf(&b, "\n#%d\nDoctor: %s\nDate: %s\nTime: %s\nPatient: %s\nPhone: %s\n",
			a.ID, doctorName, displayDate(a.Date), a.Time, a.PatientName, a.Phone)
	}
	return b.String()
}

func displayDate(date string) string {
	d, err := schedule.ParseDate(date)
	if err != nil {
		return date
	}
	return d.Format(displayDateLayout)
}

func backChoice() Choice {
	return Choice{Key: keyBack, Label: "Back"}
}
