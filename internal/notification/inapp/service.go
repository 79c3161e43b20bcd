// Package inapp stores the notification feed each user sees in the app
// and pushes new entries to their open streams.
package inapp

import (
	"context"
	"strings"

	"photobridge_backend/internal/notification/sse"

	"github.com/google/uuid"
)

// List pagination bounds.
const (
	defaultPageSize = 20
	maxPageSize     = 50
)

type Service struct {
	repo *Repository
	sse  *sse.Service
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// SetSSE wires in the push hub. The notification module owns the hub and
// injects it after construction; without one, notifications only persist.
func (s *Service) SetSSE(sseSvc *sse.Service) {
	s.sse = sseSvc
}

// SendParams describe one notification. Category is one of "info",
// "success", "warning" or "error"; ResourceID and ResourceType tie the
// notification to the entity it is about.
type SendParams struct {
	UserID       uuid.UUID
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType string
	Category     string
}

// Send persists the notification and pushes it to the user's open streams.
func (s *Service) Send(ctx context.Context, p SendParams) error {
	var resourceType *string
	if p.ResourceType != "" {
		resourceType = &p.ResourceType
	}

	notif, err := s.repo.Create(ctx, CreateParams{
		UserID:       p.UserID,
		Title:        p.Title,
		Content:      p.Content,
		ResourceID:   p.ResourceID,
		ResourceType: resourceType,
		Category:     p.Category,
	})
	if err != nil {
		return err
	}

	if s.sse != nil {
		s.sse.Publish(p.UserID, sse.Event{
			Type: sse.EventNotification,
			Data: notif,
		})
	}

	return nil
}

// List returns one page of the user's feed, newest first, and the total
// count. Page numbers start at 1; the page size is clamped to maxPageSize.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// CountUnreadByResourceTypes drops empty entries from the filter before
// counting; a filter with nothing left counts all unread notifications.
func (s *Service) CountUnreadByResourceTypes(ctx context.Context, userID uuid.UUID, resourceTypes []string) (int, error) {
	normalized := make([]string, 0, len(resourceTypes))
	for _, item := range resourceTypes {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return s.repo.CountUnreadByResourceTypes(ctx, userID, normalized)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}
