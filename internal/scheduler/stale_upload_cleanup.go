package scheduler

import (
	"context"
	"time"

	"photobridge_backend/platform/logger"
)

const (
	defaultStaleUploadCleanupInterval = time.Hour
	defaultStaleUploadRetention       = 7 * 24 * time.Hour
)

// StaleUploadSweeper removes staged photo objects that outlived their
// retention window. Satisfied by the uploads service Publisher.
type StaleUploadSweeper interface {
	CleanupStale(ctx context.Context, retention time.Duration) (int, error)
}

// StaleUploadCleanup periodically deletes staged photos of settled uploads.
// Published, failed and canceled uploads keep their staged object for a
// grace period so users can inspect what was sent; after that the object
// is garbage.
type StaleUploadCleanup struct {
	sweeper   StaleUploadSweeper
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewStaleUploadCleanup(sweeper StaleUploadSweeper, log *logger.Logger, interval, retention time.Duration) *StaleUploadCleanup {
	if interval <= 0 {
		interval = defaultStaleUploadCleanupInterval
	}
	if retention <= 0 {
		retention = defaultStaleUploadRetention
	}

	return &StaleUploadCleanup{
		sweeper:   sweeper,
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (c *StaleUploadCleanup) Run(ctx context.Context) {
	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *StaleUploadCleanup) cleanup(ctx context.Context) {
	removed, err := c.sweeper.CleanupStale(ctx, c.retention)
	if err != nil {
		c.log.Warn("stale upload cleanup failed", "error", err)
		return
	}

	if removed > 0 {
		c.log.Info("stale upload cleanup removed staged objects", "removed", removed)
	}
}
