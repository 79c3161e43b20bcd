package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"photobridge_backend/internal/accounts"
	"photobridge_backend/internal/adapters/storage"
	"photobridge_backend/internal/email"
	"photobridge_backend/internal/events"
	"photobridge_backend/internal/graph"
	"photobridge_backend/internal/notification"
	"photobridge_backend/internal/notification/outbox"
	"photobridge_backend/internal/places"
	"photobridge_backend/internal/scheduler"
	uploadrepo "photobridge_backend/internal/uploads/repository"
	uploadservice "photobridge_backend/internal/uploads/service"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/db"
	"photobridge_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// The notification module runs on this side too: due outbox records are
	// turned back into events by the worker and delivered here.
	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.SetNotificationOutbox(outbox.New(pool))
	notificationModule.RegisterHandlers(eventBus)
	defer notificationModule.Close()

	// Publisher wiring (no HTTP handlers required).
	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}

	graphClient := graph.New(cfg, log)
	accountsModule := accounts.NewModule(pool, graphClient, cfg, eventBus, log)
	placesModule := places.NewModule(graphClient, accountsModule.Service(), cfg, log)

	publisher := uploadservice.NewPublisher(
		uploadrepo.NewRepository(pool),
		storageSvc,
		accountsModule.Service(),
		graphClient,
		placesModule.Service(),
		cfg,
		eventBus,
		log,
	)

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	cleanupInterval := getDurationEnv("STALE_UPLOAD_CLEANUP_INTERVAL", time.Hour)
	staleCleanup := scheduler.NewStaleUploadCleanup(publisher, log, cleanupInterval, cfg.GetUploadRetention())
	go staleCleanup.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, publisher, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
