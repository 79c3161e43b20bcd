package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photobridge_backend/internal/accounts"
	"photobridge_backend/internal/adapters/storage"
	"photobridge_backend/internal/albums"
	"photobridge_backend/internal/auth"
	"photobridge_backend/internal/email"
	"photobridge_backend/internal/events"
	"photobridge_backend/internal/graph"
	apphttp "photobridge_backend/internal/http"
	"photobridge_backend/internal/http/router"
	"photobridge_backend/internal/notification"
	"photobridge_backend/internal/notification/outbox"
	"photobridge_backend/internal/places"
	"photobridge_backend/internal/scheduler"
	"photobridge_backend/internal/uploads"
	"photobridge_backend/internal/uploads/idempotency"
	"photobridge_backend/internal/webhook"
	"photobridge_backend/migrations"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/db"
	"photobridge_backend/platform/logger"
	"photobridge_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.StorageService, name, bucket string) {
	if err := withRetry(ctx, log, "ensure "+name+" bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	val := validator.New()

	// Staging storage for uploaded photos (MinIO)
	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	ensureBucket(ctx, log, storageSvc, "photo-staging", cfg.GetMinioBucketPhotoStaging())
	log.Info("storage service initialized", "photoStagingBucket", cfg.GetMinioBucketPhotoStaging())

	// Graph API client shared by every module that talks to Facebook
	graphClient := graph.New(cfg, log)

	// Redis-backed guard that deduplicates retried intake requests
	guard, err := idempotency.NewGuard(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to initialize idempotency guard", "error", err)
		panic("failed to initialize idempotency guard: " + err.Error())
	}
	defer func() { _ = guard.Close() }()

	// Task queue client; the worker binary drains it
	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize publish queue client", "error", err)
		panic("failed to initialize publish queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events and serves the SSE feed.
	// Emails are queued on the outbox here; the worker binary delivers them.
	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.SetNotificationOutbox(outbox.New(pool))
	notificationModule.RegisterHandlers(eventBus)
	defer notificationModule.Close()

	authModule := auth.NewModule(pool, cfg, eventBus, val, log)
	accountsModule := accounts.NewModule(pool, graphClient, cfg, eventBus, log)
	placesModule := places.NewModule(graphClient, accountsModule.Service(), cfg, log)
	albumsModule := albums.NewModule(graphClient, accountsModule.Service(), log)
	uploadsModule := uploads.NewModule(pool, storageSvc, guard, queueClient, cfg, eventBus, log)
	webhookModule := webhook.NewModule(pool, accountsModule.Service(), cfg, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			authModule,
			accountsModule,
			placesModule,
			albumsModule,
			uploadsModule,
			notificationModule,
			webhookModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

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
