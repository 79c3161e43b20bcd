package inapp

import (
	"context"
	"fmt"
	"time"

	"photobridge_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate          = "notification.inapp.create"
	opList            = "notification.inapp.list"
	opCountUnread     = "notification.inapp.count_unread"
	opCountByResource = "notification.inapp.count_unread_by_resource"
	opMarkRead        = "notification.inapp.mark_read"
	opMarkAllRead     = "notification.inapp.mark_all_read"
	opDelete          = "notification.inapp.delete"

	errNotificationNotFound = "notification not found"
)

// Notification is one entry in a user's in-app feed.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"userId"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	ResourceType *string    `json:"resourceType,omitempty"`
	Category     string     `json:"category"`
	IsRead       bool       `json:"isRead"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type CreateParams struct {
	UserID       uuid.UUID
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType *string
	Category     string
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationCols = `
	id, user_id, title, content, resource_id, resource_type, category, is_read, created_at`

type notificationRowScanner interface {
	Scan(dest ...any) error
}

// scanNotification populates a Notification from a standard SELECT row.
// Column order must match notificationCols.
func scanNotification(s notificationRowScanner) (Notification, error) {
	var n Notification
	if err := s.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Content,
		&n.ResourceID,
		&n.ResourceType,
		&n.Category,
		&n.IsRead,
		&n.CreatedAt,
	); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Create inserts a notification. An empty category defaults to "info".
func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if p.UserID == uuid.Nil {
		return Notification{}, apperr.Validation("userId is required").WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return Notification{}, apperr.Validation("title and content are required").WithOp(opCreate)
	}

	category := p.Category
	if category == "" {
		category = "info"
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO in_app_notifications
		(user_id, title, content, resource_id, resource_type, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationCols+`
	`, p.UserID, p.Title, p.Content, p.ResourceID, p.ResourceType, category)

	n, err := scanNotification(row)
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("create notification failed: %v", err)).WithOp(opCreate)
	}

	return n, nil
}

// List returns a page of the user's notifications, newest first, plus the
// total count for pagination.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	if userID == uuid.Nil {
		return nil, 0, apperr.Validation("userId is required").WithOp(opList)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationCols+`
		FROM in_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notification failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", rowsErr)).WithOp(opList)
	}

	return items, total, nil
}

// CountUnread returns how many of the user's notifications are unread.
func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, apperr.Validation("userId is required").WithOp(opCountUnread)
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE user_id = $1 AND is_read = FALSE
	`, userID).Scan(&count); err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count unread notifications failed: %v", err)).WithOp(opCountUnread)
	}

	return count, nil
}

// CountUnreadByResourceTypes restricts the unread count to notifications
// about the given resource types, so the frontend can badge the uploads
// and account sections separately. An empty filter counts everything.
func (r *Repository) CountUnreadByResourceTypes(ctx context.Context, userID uuid.UUID, resourceTypes []string) (int, error) {
	if userID == uuid.Nil {
		return 0, apperr.Validation("userId is required").WithOp(opCountByResource)
	}
	if len(resourceTypes) == 0 {
		return r.CountUnread(ctx, userID)
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE user_id = $1 AND is_read = FALSE AND resource_type = ANY($2)
	`, userID, resourceTypes).Scan(&count); err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count unread notifications by resource failed: %v", err)).WithOp(opCountByResource)
	}

	return count, nil
}

// MarkRead marks one of the user's notifications as read. Marking an
// already read notification is a no-op that still succeeds.
func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return apperr.Validation("userId and notification id are required").WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark notification read failed: %v", err)).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errNotificationNotFound).WithOp(opMarkRead)
	}

	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return apperr.Validation("userId is required").WithOp(opMarkAllRead)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark all notifications read failed: %v", err)).WithOp(opMarkAllRead)
	}

	return nil
}

// Delete removes one of the user's notifications.
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return apperr.Validation("userId and notification id are required").WithOp(opDelete)
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM in_app_notifications
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("delete notification failed: %v", err)).WithOp(opDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errNotificationNotFound).WithOp(opDelete)
	}

	return nil
}
