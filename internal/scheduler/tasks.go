package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPhotoPublish = "photo.publish"

const TaskNotificationOutboxDue = "notification.outbox.due"

type PhotoPublishPayload struct {
	UploadID string `json:"uploadId"`
	UserID   string `json:"userId"`
}

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	UserID   string `json:"userId"`
}

func NewPhotoPublishTask(payload PhotoPublishPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPhotoPublish, data), nil
}

func ParsePhotoPublishPayload(task *asynq.Task) (PhotoPublishPayload, error) {
	var payload PhotoPublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PhotoPublishPayload{}, err
	}
	return payload, nil
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
