package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeAppointmentReminder is the asynq task type for the day-before
// appointment reminder.
const TypeAppointmentReminder = "reminder:appointment"

// Payload is what the booking machine hands the scheduler on a
// successful commit. It is persisted with the task, so a scheduled
// reminder survives process restarts.
type Payload struct {
	UserID        int64 `json:"user_id"`
	AppointmentID int64 `json:"appointment_id"`
}

// Scheduler arranges a future reminder delivery. Calls are
// fire-and-forget: the caller does not wait for delivery.
type Scheduler interface {
	Schedule(ctx context.Context, fireAt time.Time, p Payload) error
}

// AsynqScheduler enqueues reminder tasks into Redis via asynq with a
// ProcessAt deadline.
type AsynqScheduler struct {
	client *asynq.Client
}

func NewAsynqScheduler(client *asynq.Client) *AsynqScheduler {
	return &AsynqScheduler{client: client}
}

func (s *AsynqScheduler) Schedule(ctx context.Context, fireAt time.Time, p Payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal reminder payload: %w", err)
	}

	task := asynq.NewTask(TypeAppointmentReminder, b)
	if _, err := s.client.EnqueueContext(ctx, task, asynq.ProcessAt(fireAt)); err != nil {
		return fmt.Errorf("enqueue reminder: %w", err)
	}
	return nil
}

// NopScheduler drops reminders. Used in tests and in redis-less runs.
type NopScheduler struct{}

func (NopScheduler) Schedule(context.Context, time.Time, Payload) error { return nil }
