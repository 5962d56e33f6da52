package schedule

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the calendar-date wire format used everywhere an
	// appointment date is stored or exchanged.
	DateLayout = "2006-01-02"
	// SlotLayout is the slot-start wire format. Slots sit on a fixed
	// 30-minute grid.
	SlotLayout = "15:04"
)

// Appointment is one confirmed booking. Records are append-only: an
// appointment is never mutated or deleted after a successful commit.
type Appointment struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	DoctorID    int64     `json:"doctor_id"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Time        string    `json:"time"` // HH:MM slot start
	PatientName string    `json:"patient_name"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParseDate validates an appointment date string.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", s, err)
	}
	return d, nil
}

// SlotStart combines an appointment date and slot into a single point
// in time within the given location.
func SlotStart(date, slot string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+SlotLayout, date+" "+slot, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed slot %q %q: %w", date, slot, err)
	}
	return t, nil
}
