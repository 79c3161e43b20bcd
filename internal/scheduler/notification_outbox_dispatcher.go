package scheduler

import (
	"context"
	"fmt"
	"time"

	"photobridge_backend/internal/notification/outbox"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox dispatch pacing. Claimed records that never made it onto the
// queue are swept back to pending after outboxStuckAfter.
const (
	outboxPollInterval  = 2 * time.Second
	outboxClaimBatch    = 50
	outboxSweepInterval = time.Minute
	outboxStuckAfter    = 10 * time.Minute
)

// NotificationOutboxDispatcher moves due outbox records onto the task
// queue. Postgres keeps each record until delivery is confirmed; tasks
// that vanish from Redis come back through the stuck sweep.
type NotificationOutboxDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *outbox.Repository
	log    *logger.Logger
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &NotificationOutboxDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	return d.client.Close()
}

// Run polls for due records until the context is canceled.
func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	poll := time.NewTicker(outboxPollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(outboxSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			d.requeueStuck(ctx)
		case <-poll.C:
			d.dispatchDue(ctx)
		}
	}
}

func (d *NotificationOutboxDispatcher) dispatchDue(ctx context.Context) {
	records, err := d.repo.ClaimDue(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return
	}

	for _, rec := range records {
		task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
			UserID:   rec.UserID.String(),
		})
		if err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}

		if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue)); err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			d.log.Warn("outbox enqueue failed", "outboxId", rec.ID, "error", err)
		}
	}

	if len(records) > 0 {
		d.log.Debug("outbox records dispatched", "count", len(records))
	}
}

func (d *NotificationOutboxDispatcher) requeueStuck(ctx context.Context) {
	requeued, err := d.repo.RequeueStuck(ctx, time.Now().UTC().Add(-outboxStuckAfter))
	if err != nil {
		d.log.Warn("outbox stuck sweep failed", "error", err)
		return
	}
	if requeued > 0 {
		d.log.Warn("requeued outbox records stuck in enqueued", "count", requeued)
	}
}
