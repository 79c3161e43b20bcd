package main

import (
	"context"
	"os"
	"strings"
	"time"

	"photobridge_backend/internal/scheduler"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/db"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// stuckUpload is a queued or publishing upload whose task is presumed lost,
// usually after a worker crash or a flushed Redis.
type stuckUpload struct {
	id        uuid.UUID
	userID    uuid.UUID
	status    string
	updatedAt time.Time
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	minAge := getDurationEnv("UPLOAD_REQUEUE_MIN_AGE", 30*time.Minute)
	log.Info("starting upload requeue", "minAge", minAge)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize publish queue client", "error", err)
		panic("failed to initialize publish queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	cutoff := time.Now().UTC().Add(-minAge)

	const batchSize = 25
	var cursor time.Time
	requeued := 0

	for {
		uploads, err := listStuckUploads(ctx, pool, cutoff, cursor, batchSize)
		if err != nil {
			log.Error("failed to list stuck uploads", "error", err)
			return
		}
		if len(uploads) == 0 {
			log.Info("upload requeue finished", "requeued", requeued)
			return
		}

		for _, upload := range uploads {
			if err := queueClient.EnqueuePhotoPublish(ctx, upload.id, upload.userID); err != nil {
				log.Error("failed to requeue upload", "uploadId", upload.id, "error", err)
				time.Sleep(time.Second)
				continue
			}

			log.Info("upload requeued", "uploadId", upload.id, "status", upload.status)
			requeued++
			time.Sleep(200 * time.Millisecond)
		}

		// Requeueing does not touch the rows, so page by updated_at instead
		// of re-reading from the start.
		cursor = uploads[len(uploads)-1].updatedAt
	}
}

func listStuckUploads(ctx context.Context, pool *pgxpool.Pool, cutoff, after time.Time, limit int) ([]stuckUpload, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, user_id, status, updated_at
		FROM uploads
		WHERE status IN ('queued', 'publishing')
		  AND updated_at < $1
		  AND updated_at > $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, cutoff, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uploads := make([]stuckUpload, 0)
	for rows.Next() {
		var upload stuckUpload
		if err := rows.Scan(&upload.id, &upload.userID, &upload.status, &upload.updatedAt); err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return uploads, nil
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
