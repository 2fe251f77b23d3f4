package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jw6ventures/cyclecal/internal/api"
	appauth "github.com/jw6ventures/cyclecal/internal/auth"
	"github.com/jw6ventures/cyclecal/internal/calendar"
	"github.com/jw6ventures/cyclecal/internal/config"
	httpserver "github.com/jw6ventures/cyclecal/internal/http"
	"github.com/jw6ventures/cyclecal/internal/reminder"
	"github.com/jw6ventures/cyclecal/internal/store"
	"github.com/jw6ventures/cyclecal/internal/store/dynamo"
)

// healthChecks reports the first failing backend.
type healthChecks []httpserver.HealthChecker

func (h healthChecks) HealthCheck(ctx context.Context) error {
	for _, c := range h {
		if err := c.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	log.Println("Starting cyclecal server...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to create db pool: %v", err)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	stor := store.New(pool)
	health := healthChecks{stor}

	if cfg.Cycle.Backend == config.CycleBackendDynamo {
		ddb, err := dynamo.New(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to initialize DynamoDB store: %v", err)
		}
		stor.CycleEntries = ddb
		stor.Preferences = ddb
		health = append(health, ddb)
		log.Printf("cycle entries and preferences stored in DynamoDB tables %s, %s", cfg.Cycle.DynamoEntries, cfg.Cycle.DynamoPrefs)
	}

	calendarService := calendar.NewService(stor.Users, stor.CycleEntries, stor.Preferences, stor.Events)
	authService := appauth.NewService(cfg, stor.Users)
	apiHandler := api.NewHandler(stor, calendarService)

	var scheduler *reminder.Scheduler
	if cfg.Cycle.RemindersEnabled {
		job := reminder.NewJob(stor.CycleEntries, stor.Users, stor.Preferences, reminder.LogNotifier{}, cfg.Cycle.ReminderZone)
		scheduler, err = reminder.NewScheduler(cfg.Cycle.ReminderSchedule, cfg.Cycle.ReminderZone, job)
		if err != nil {
			log.Fatalf("failed to schedule reminders: %v", err)
		}
		scheduler.Start()
		log.Printf("reminders scheduled %q (%s)", cfg.Cycle.ReminderSchedule, cfg.Cycle.ReminderZone)
	}

	r, stopLimiters := httpserver.NewRouter(cfg, health, authService, apiHandler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	stopLimiters()
}
