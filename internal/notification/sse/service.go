// Package sse pushes server-sent events to a user's open browser tabs.
package sse

import (
	"net/http"
	"sync"
	"time"

	"photobridge_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType names a stream event. The frontend switches on it.
type EventType string

const (
	// Upload lifecycle, pushed to the upload's owner.
	EventUploadQueued    EventType = "upload_queued"
	EventUploadPublished EventType = "upload_published"
	EventUploadFailed    EventType = "upload_failed"

	// Linked account lifecycle.
	EventAccountLinked  EventType = "account_linked"
	EventAccountRevoked EventType = "account_revoked"

	// EventNotification carries a stored in-app notification.
	EventNotification EventType = "notification"
)

// heartbeatInterval paces the keepalive comments that stop proxies from
// idling out an otherwise quiet stream.
const heartbeatInterval = 30 * time.Second

// Event is one message on a user's stream. Type becomes the SSE event
// name, Data is JSON-encoded as its payload.
type Event struct {
	Type EventType
	Data interface{}
}

type client struct {
	userID uuid.UUID
	events chan Event
}

// Service fans events out to every open connection of a user.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
	log     *logger.Logger
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c.userID] = append(s.clients[c.userID], c)
}

// removeClient unregisters a client connection. The channel is only closed
// when the client is still registered, so a Close during shutdown does not
// race into a double close.
func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.userID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.userID] = append(clients[:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.userID]) == 0 {
		delete(s.clients, c.userID)
	}
}

// Publish sends an event to every open connection of a user. A slow
// connection drops the event rather than blocking the publisher.
func (s *Service) Publish(userID uuid.UUID, event Event) {
	s.mu.RLock()
	clients := s.clients[userID]
	s.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full, event dropped", "userId", userID, "type", event.Type)
		}
	}

	s.log.Debug("sse event published", "type", event.Type, "userId", userID, "connections", len(clients))
}

// Handler streams events to one connection until the client goes away.
// getUserID resolves the authenticated user; EventSource cannot set
// headers, which is why authentication happens through the middleware's
// query token fallback.
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID: userID,
			events: make(chan Event, 32),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID})
		c.Writer.Flush()

		s.log.Debug("sse client connected", "userId", userID)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "userId", userID)
				return
			case <-heartbeat.C:
				// SSE comment line, invisible to EventSource handlers.
				_, _ = c.Writer.WriteString(": ping\n\n")
				c.Writer.Flush()
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				c.SSEvent(string(event.Type), event.Data)
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects all clients. Their handlers return when they see the
// closed channel.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
