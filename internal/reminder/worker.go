package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/medbook/clinic-booking-bot/internal/schedule"
)

// Notifier delivers a reminder message to a user. The actual message
// transport lives outside this core.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Worker handles due reminder tasks: it re-reads the appointment and
// pushes a reminder message through the notifier.
type Worker struct {
	engine   *schedule.Engine
	notifier Notifier
}

func NewWorker(engine *schedule.Engine, notifier Notifier) *Worker {
	return &Worker{engine: engine, notifier: notifier}
}

// Register attaches the worker's handlers to an asynq mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAppointmentReminder, w.handleAppointmentReminder)
}

func (w *Worker) handleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal reminder payload: %w", err)
	}

	appts, err := w.engine.UserAppointments(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("load appointments for reminder: %w", err)
	}

	text := "Reminder: you have a doctor's appointment tomorrow."
	for _, a := range appts {
		if a.ID != p.AppointmentID {
			continue
		}
		doc, err := w.engine.Doctor(a.DoctorID)
		if err != nil {
			break
		}
		text = fmt.Sprintf("Reminder: tomorrow at %s you have an appointment with %s.", a.Time, doc.Name)
		break
	}

	if err := w.notifier.Notify(ctx, p.UserID, text); err != nil {
		return fmt.Errorf("deliver reminder: %w", err)
	}

	log.Printf("reminder delivered user_id=%d appointment_id=%d", p.UserID, p.AppointmentID)
	return nil
}

// LogNotifier writes reminder deliveries to the process log. It stands
// in for a real chat transport.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID int64, text string) error {
	log.Printf("notify user_id=%d text=%q", userID, text)
	return nil
}
