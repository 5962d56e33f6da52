package api

import (
	"time"

	"github.com/medbook/clinic-booking-bot/internal/session"
)

// ChatRequest is one conversation event delivered over the webhook.
// Kind is one of: start, choice, text, cancel, appointments,
// departments. Value carries the choice key or the text body.
type ChatRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// PromptMessage is one prompt the session machine produced in response
// to a chat event.
type PromptMessage struct {
	Text    string           `json:"text"`
	Choices []session.Choice `json:"choices,omitempty"`
}

type ChatResponse struct {
	Prompts []PromptMessage `json:"prompts"`
}

type CreateAppointmentRequest struct {
	UserID      int64  `json:"user_id"`
	DoctorID    int64  `json:"doctor_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	PatientName string `json:"patient_name"`
	Phone       string `json:"phone"`
}

type AppointmentResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	DoctorID    int64     `json:"doctor_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	PatientName string    `json:"patient_name"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
