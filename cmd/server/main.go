package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/config"
	"github.com/PortNumber53/fleetrent/backend/internal/handlers"
	"github.com/PortNumber53/fleetrent/backend/internal/httpserver"
	"github.com/PortNumber53/fleetrent/backend/internal/logging"
	"github.com/PortNumber53/fleetrent/backend/internal/migrations"
	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/notify"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
	"github.com/PortNumber53/fleetrent/backend/internal/webhook"
	"github.com/PortNumber53/fleetrent/backend/internal/worker"
)

func main() {
	// Best-effort: local development keeps secrets in .env files.
	if err := config.LoadDotEnv("../.env", ".env"); err != nil {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	logDBTarget("primary", cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	if err := runMigrationsWithDirtyFix(db, "primary"); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database migrations")
	}

	st, err := store.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store")
	}
	plans, err := store.NewPlanStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create plan store")
	}
	jobs, err := store.NewJobStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create job store")
	}

	notifier, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	jobWorker := worker.New(worker.Config{MaxConcurrent: cfg.WorkerConcurrency}, jobs, nil)
	jobWorker.SetInstrumentation(&worker.Instrumentation{
		OnRetry: func(job *models.Job, retryAfter time.Duration) {
			log.Info().Int64("job_id", job.ID).Str("event_id", job.Payload.GetString("event_id")).
				Dur("retry_in", retryAfter).Msg("webhook replay retry scheduled")
		},
		OnHeartbeat: func(workerID string, stats worker.Stats) {
			log.Debug().Str("worker_id", workerID).Interface("stats", stats).Msg("worker heartbeat")
		},
	})

	router, err := webhook.NewRouter(webhook.Config{
		Secret:      cfg.StripeWebhookSecret,
		Tolerance:   cfg.StripeWebhookTolerance,
		MaxAttempts: cfg.WebhookMaxAttempts,
	}, webhook.Deps{
		Bookings:      st,
		Subscriptions: st,
		Organizations: st,
		Plans:         plans,
		Ledger:        st,
		Queue:         jobWorker,
		Notifier:      notifier,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build webhook router")
	}
	worker.RegisterWebhookJobs(jobWorker, router)
	log.Info().Strs("event_types", router.EventTypes()).Msg("webhook handlers registered")

	srv := httpserver.New(cfg, httpserver.Deps{
		DB:      db,
		Webhook: router,
		Admin:   &handlers.AdminHandler{Ledger: st, Requeuer: router, Jobs: jobs},
		Worker:  jobWorker,
	})

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.ServerAddress).Msg("backend starting")
	if err := srv.Start(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	// ListenAndServe returns as soon as shutdown begins; wait for the worker
	// to release its jobs.
	<-shutdownDone
}

// buildNotifier publishes to RabbitMQ when AMQP_URL is set and logs
// otherwise. A broker that is down at startup degrades to logging.
func buildNotifier(cfg config.Config) (notify.Notifier, func()) {
	if cfg.AMQPURL == "" {
		return notify.NewLogNotifier(), func() {}
	}
	n, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Error().Err(err).Msg("amqp notifier unavailable; falling back to log notifier")
		return notify.NewLogNotifier(), func() {}
	}
	log.Info().Str("exchange", cfg.AMQPExchange).Msg("amqp notifier connected")
	return n, func() {
		if err := n.Close(); err != nil {
			log.Warn().Err(err).Msg("amqp notifier close failed")
		}
	}
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB, name string) error {
	if err := migrations.Up(db); err != nil {
		if strings.Contains(err.Error(), "Dirty database version") {
			log.Warn().Err(err).Str("db", name).Msg("dirty database detected, attempting to fix")
			if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
				log.Error().Err(fixErr).Str("db", name).Msg("failed to fix dirty database")
				return err
			}
			return migrations.Up(db)
		}
		return err
	}
	return nil
}

func logDBTarget(name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Info().Str("db", name).Err(err).Msg("database configured (dsn parse error)")
		return
	}
	log.Info().Str("db", name).Str("host", u.Hostname()).Str("database", strings.TrimPrefix(u.Path, "/")).Msg("database target")
}
