package events

import (
	platformevents "photobridge_backend/platform/events"
	"photobridge_backend/platform/logger"
)

// InMemoryBus aliases the platform bus so modules import a single events
// package for both the event types and the bus they travel on.
type InMemoryBus = platformevents.InMemoryBus

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
