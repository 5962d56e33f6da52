package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/medbook/clinic-booking-bot/internal/catalog"
	"github.com/medbook/clinic-booking-bot/internal/config"
	"github.com/medbook/clinic-booking-bot/internal/db"
	"github.com/medbook/clinic-booking-bot/internal/reminder"
	"github.com/medbook/clinic-booking-bot/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the reminder worker")
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog load error: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store schedule.Store
	switch cfg.StoreDriver {
	case "postgres":
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()
		store = schedule.NewPgStore(pgPool)
		log.Println("connected to Postgres")
	default:
		// Without a shared store the worker cannot see appointments
		// committed by the bot process; it still delivers the generic
		// reminder text.
		store = schedule.NewMemoryStore()
	}

	engine := schedule.NewEngine(cat, store, schedule.NewMutexLocker())
	worker := reminder.NewWorker(engine, reminder.LogNotifier{})

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		},
		asynq.Config{
			Concurrency: 5,
		},
	)

	mux := asynq.NewServeMux()
	worker.Register(mux)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("asynq server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down reminder-worker")
	srv.Shutdown()
}
