package schedule

import "context"

// Store persists appointment records. Implementations assign the
// monotonic appointment id at append time and never reuse one.
type Store interface {
	// Append stores a new appointment and returns its assigned id.
	Append(ctx context.Context, a Appointment) (int64, error)

	// BookedTimes returns the slot starts already taken for one
	// doctor on one date, in no particular order.
	BookedTimes(ctx context.Context, doctorID int64, date string) ([]string, error)

	// ByUser returns a user's appointments sorted ascending by
	// (date, time).
	ByUser(ctx context.Context, userID int64) ([]Appointment, error)
}
