package session

import (
	"context"
	"time"
)

// State is the step a booking dialogue is currently on. A session is
// in exactly one state at a time and only explicit input moves it.
type State int

const (
	StateSelectDepartment State = iota
	StateSelectDoctor
	StateSelectDate
	StateSelectTime
	StateEnterName
	StateEnterPhone
	StateConfirm
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSelectDepartment:
		return "select_department"
	case StateSelectDoctor:
		return "select_doctor"
	case StateSelectDate:
		return "select_date"
	case StateSelectTime:
		return "select_time"
	case StateEnterName:
		return "enter_name"
	case StateEnterPhone:
		return "enter_phone"
	case StateConfirm:
		return "confirm"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Session holds one user's in-progress booking. Fields accumulate as
// the dialogue advances; a field is only ever set when every earlier
// step has been completed. Sessions are transient and never persisted.
type Session struct {
	UserID       int64
	State        State
	DepartmentID int64
	DoctorID     int64
	Date         string // YYYY-MM-DD
	Time         string // HH:MM
	PatientName  string
	Phone        string
	LastActivity time.Time
}

// clearFromDoctor drops every selection that depends on the doctor.
func (s *Session) clearFromDoctor() {
	s.DoctorID = 0
	s.clearFromDate()
}

// clearFromDate drops every selection that depends on the date.
func (s *Session) clearFromDate() {
	s.Date = ""
	s.Time = ""
}

// EventKind discriminates the inputs a session machine accepts.
type EventKind int

const (
	// EventStart begins (or restarts) the booking dialogue.
	EventStart EventKind = iota
	// EventChoice is a discrete button selection; Value carries the
	// choice key.
	EventChoice
	// EventText is free-form text input; Value carries the text.
	EventText
	// EventCancel aborts the dialogue from any state.
	EventCancel
	// EventMyAppointments asks for the user's booked appointments.
	EventMyAppointments
	// EventDepartments asks for the plain department listing.
	EventDepartments
)

// Event is one piece of user input delivered by the conversation
// channel.
type Event struct {
	Kind  EventKind
	Value string
}

// Choice is one button the channel should render with a prompt.
type Choice struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Channel is the conversation transport the machine talks through.
// Calls are request/response and never block indefinitely.
type Channel interface {
	Prompt(ctx context.Context, userID int64, text string, choices []Choice) error
}
