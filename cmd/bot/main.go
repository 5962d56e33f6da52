package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medbook/clinic-booking-bot/internal/api"
	"github.com/medbook/clinic-booking-bot/internal/catalog"
	"github.com/medbook/clinic-booking-bot/internal/config"
	"github.com/medbook/clinic-booking-bot/internal/db"
	redisclient "github.com/medbook/clinic-booking-bot/internal/redis"
	"github.com/medbook/clinic-booking-bot/internal/reminder"
	"github.com/medbook/clinic-booking-bot/internal/schedule"
	"github.com/medbook/clinic-booking-bot/internal/session"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("bot starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s store=%s", cfg.Env, cfg.HTTPPort, cfg.StoreDriver)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog load error: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store schedule.Store
	var pgPool *pgxpool.Pool
	switch cfg.StoreDriver {
	case "postgres":
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()

		pgStore := schedule.NewPgStore(pgPool)
		if err := pgStore.Init(rootCtx); err != nil {
			log.Fatalf("postgres schema error: %v", err)
		}
		store = pgStore
		log.Println("connected to Postgres")
	default:
		store = schedule.NewMemoryStore()
	}

	var rdb *redis.Client
	var locker schedule.Locker = schedule.NewMutexLocker()
	var reminders session.ReminderScheduler = reminder.NopScheduler{}
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		log.Println("connected to Redis")

		locker = redisclient.NewScheduleLocker(rdb, cfg.LockTTL)

		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		defer asynqClient.Close()
		reminders = reminder.NewAsynqScheduler(asynqClient)
	} else {
		log.Println("no REDIS_ADDR configured, reminders disabled")
	}

	engine := schedule.NewEngine(cat, store, locker)
	channel := api.NewCollectorChannel()
	machine := session.NewMachine(engine, channel, reminders, session.Config{
		IdleTimeout:  cfg.SessionIdleTTL,
		ReapInterval: cfg.ReapInterval,
		ReminderLead: cfg.ReminderLead,
	})

	go machine.Run(rootCtx)

	router := api.NewRouter(api.RouterConfig{
		Engine:  engine,
		Machine: machine,
		Channel: channel,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: "dev",
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down bot")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
