package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medbook/clinic-booking-bot/internal/catalog"
	"github.com/medbook/clinic-booking-bot/internal/schedule"
	"github.com/medbook/clinic-booking-bot/internal/session"
)

func chatHandler(machine *session.Machine, channel *CollectorChannel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "userID must be an integer")
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ev, ok := toEvent(req)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_event_kind", "kind must be one of start, choice, text, cancel, appointments, departments")
			return
		}

		if err := machine.HandleEvent(r.Context(), userID, ev); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{Prompts: channel.Drain(userID)})
	}
}

func toEvent(req ChatRequest) (session.Event, bool) {
	switch req.Kind {
	case "start":
		return session.Event{Kind: session.EventStart}, true
	case "choice":
		return session.Event{Kind: session.EventChoice, Value: req.Value}, true
	case "text":
		return session.Event{Kind: session.EventText, Value: req.Value}, true
	case "cancel":
		return session.Event{Kind: session.EventCancel}, true
	case "appointments":
		return session.Event{Kind: session.EventMyAppointments}, true
	case "departments":
		return session.Event{Kind: session.EventDepartments}, true
	default:
		return session.Event{}, false
	}
}

func listDepartmentsHandler(engine *schedule.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Departments())
	}
}

func listDoctorsHandler(engine *schedule.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be an integer")
			return
		}
		if _, err := engine.Department(id); err != nil {
			writeError(w, http.StatusNotFound, "department_not_found", err.Error())
			return
		}

		doctors := engine.DoctorsByDepartment(id)
		if doctors == nil {
			doctors = []catalog.Doctor{}
		}
		writeJSON(w, http.StatusOK, doctors)
	}
}

func doctorSlotsHandler(engine *schedule.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be an integer")
			return
		}
		date := r.URL.Query().Get("date")

		slots, err := engine.AvailableSlots(r.Context(), id, date)
		switch {
		case err == nil:
		case errors.Is(err, schedule.ErrDoctorNotFound):
			writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
			return
		default:
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		if slots == nil {
			slots = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
	}
}

func userAppointmentsHandler(engine *schedule.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be an integer")
			return
		}

		appts, err := engine.UserAppointments(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// createAppointmentHandler commits an appointment directly, bypassing
// the dialogue. Used by the load simulator and back-office tooling.
func createAppointmentHandler(engine *schedule.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := engine.Commit(r.Context(), schedule.CommitRequest{
			UserID:      req.UserID,
			DoctorID:    req.DoctorID,
			Date:        req.Date,
			Time:        req.Time,
			PatientName: req.PatientName,
			Phone:       req.Phone,
		})
		if err != nil {
			handleCommitError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func handleCommitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotOutsideHours):
		writeError(w, http.StatusBadRequest, "slot_outside_hours", err.Error())
	case errors.Is(err, schedule.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, schedule.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		UserID:      a.UserID,
		DoctorID:    a.DoctorID,
		Date:        a.Date,
		Time:        a.Time,
		PatientName: a.PatientName,
		Phone:       a.Phone,
		CreatedAt:   a.CreatedAt,
	}
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
