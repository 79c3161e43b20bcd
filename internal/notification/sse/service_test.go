package sse

import (
	"testing"

	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

func newTestService() *Service {
	return New(logger.New("development"))
}

func TestPublishDeliversToRegisteredClient(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()
	cl := &client{userID: userID, events: make(chan Event, 32)}
	svc.addClient(cl)

	svc.Publish(userID, Event{Type: EventUploadPublished})

	select {
	case got := <-cl.events:
		if got.Type != EventUploadPublished {
			t.Fatalf("unexpected event type: %s", got.Type)
		}
	default:
		t.Fatal("expected event in client buffer")
	}
}

func TestPublishIsScopedPerUser(t *testing.T) {
	svc := newTestService()
	owner := &client{userID: uuid.New(), events: make(chan Event, 32)}
	other := &client{userID: uuid.New(), events: make(chan Event, 32)}
	svc.addClient(owner)
	svc.addClient(other)

	svc.Publish(owner.userID, Event{Type: EventUploadFailed})

	if len(owner.events) != 1 {
		t.Fatalf("expected 1 event for owner, got %d", len(owner.events))
	}
	if len(other.events) != 0 {
		t.Fatalf("expected no events for other user, got %d", len(other.events))
	}
}

func TestPublishDropsEventWhenBufferFull(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()
	cl := &client{userID: userID, events: make(chan Event, 1)}
	svc.addClient(cl)

	svc.Publish(userID, Event{Type: EventUploadQueued})
	// Must not block even though the buffer is full.
	svc.Publish(userID, Event{Type: EventUploadPublished})

	if len(cl.events) != 1 {
		t.Fatalf("expected full buffer to hold 1 event, got %d", len(cl.events))
	}
}

func TestRemoveClientClosesChannel(t *testing.T) {
	svc := newTestService()
	cl := &client{userID: uuid.New(), events: make(chan Event, 1)}
	svc.addClient(cl)
	svc.removeClient(cl)

	if _, ok := <-cl.events; ok {
		t.Fatal("expected channel to be closed")
	}
}

func TestRemoveAfterCloseDoesNotPanic(t *testing.T) {
	// A handler deferring removeClient can run after a shutdown Close.
	svc := newTestService()
	cl := &client{userID: uuid.New(), events: make(chan Event, 1)}
	svc.addClient(cl)

	svc.Close()
	svc.removeClient(cl)
}
