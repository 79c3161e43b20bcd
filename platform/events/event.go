// Package events carries the in-process event bus the modules talk over.
// Event definitions live with the domains in internal/events; this
// package only knows the plumbing.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName identifies the event type, e.g. "uploads.upload.published".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp every event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a new event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish fans the event out to its handlers without blocking the
	// caller. Delivery is best-effort; handler errors are logged, not
	// returned.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers in subscription order and returns
	// the first error. Used where the caller needs delivery to count,
	// like the task queue worker.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the name the event's
	// EventName returns.
	Subscribe(eventName string, handler Handler)
}
