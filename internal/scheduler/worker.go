package scheduler

import (
	"context"
	"fmt"

	"photobridge_backend/internal/events"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// PhotoPublisher takes a queued upload through the Graph publish flow.
// Satisfied by the uploads service Publisher.
type PhotoPublisher interface {
	Publish(ctx context.Context, uploadID uuid.UUID) error
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	publisher PhotoPublisher
	bus       events.Bus
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, publisher PhotoPublisher, bus events.Bus, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		publisher: publisher,
		bus:       bus,
		log:       log,
	}

	mux.HandleFunc(TaskPhotoPublish, w.handlePhotoPublish)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

// handlePhotoPublish forwards the task to the publisher. A returned error
// makes asynq retry with backoff; the publisher reserves errors for
// transient failures and settles everything else on the upload row itself.
func (w *Worker) handlePhotoPublish(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePhotoPublishPayload(task)
	if err != nil {
		return err
	}

	uploadID, err := uuid.Parse(payload.UploadID)
	if err != nil {
		return err
	}

	return w.publisher.Publish(ctx, uploadID)
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
		UserID:    userID,
	})
}

func (w *Worker) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
