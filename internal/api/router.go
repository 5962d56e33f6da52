package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medbook/clinic-booking-bot/internal/schedule"
	"github.com/medbook/clinic-booking-bot/internal/session"
)

type RouterConfig struct {
	Engine  *schedule.Engine
	Machine *session.Machine
	Channel *CollectorChannel
	PgPool  *pgxpool.Pool // nil when the memory store is in use
	Redis   *redis.Client // nil when running without Redis
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Dialogue webhook: the conversation channel's inbound side.
	r.Post("/chat/{userID}", chatHandler(cfg.Machine, cfg.Channel))

	// Catalog and availability reads.
	r.Get("/departments", listDepartmentsHandler(cfg.Engine))
	r.Get("/departments/{id}/doctors", listDoctorsHandler(cfg.Engine))
	r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Engine))
	r.Get("/users/{id}/appointments", userAppointmentsHandler(cfg.Engine))

	// Direct commit, outside the dialogue.
	r.Post("/appointments", createAppointmentHandler(cfg.Engine))

	return r
}
