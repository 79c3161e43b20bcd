package events

import (
	"context"
	"sync"

	"photobridge_backend/platform/logger"
)

// InMemoryBus is a process-local Bus implementation. Asynchronous
// publishing never blocks the caller; handler panics are recovered and
// logged so one subscriber cannot take down the publisher.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers asynchronously. Handlers
// get a context detached from the caller's cancellation, they usually
// outlive the HTTP request that triggered the event.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.EventName()]))
	copy(handlers, b.handlers[event.EventName()])
	b.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go b.dispatch(detached, h, event)
	}
}

// PublishSync dispatches the event to all handlers in order and returns
// the first handler error.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.EventName()]))
	copy(handlers, b.handlers[event.EventName()])
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *InMemoryBus) dispatch(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("event handler panicked", "event", event.EventName(), "panic", r)
		}
	}()

	if err := h.Handle(ctx, event); err != nil && b.log != nil {
		b.log.Error("event handler failed", "event", event.EventName(), "error", err)
	}
}

// Compile-time check that InMemoryBus implements Bus.
var _ Bus = (*InMemoryBus)(nil)
