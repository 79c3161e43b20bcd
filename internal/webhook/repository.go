package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDeletionRequestNotFound = errors.New("data deletion request not found")

// Deletion request lifecycle. Requests complete synchronously unless the
// purge fails, in which case they stay pending for operator follow-up.
const (
	DeletionStatusPending   = "pending"
	DeletionStatusCompleted = "completed"
)

// Callback kinds stored in the event log.
const (
	EventKindDeauthorize  = "deauthorize"
	EventKindDataDeletion = "data_deletion"
)

// DeletionRequest tracks a platform data deletion callback and its
// user-visible status.
type DeletionRequest struct {
	ID               uuid.UUID
	ConfirmationCode string
	GraphUserID      string
	Status           string
	ReceivedAt       time.Time
	CompletedAt      *time.Time
}

// Repository provides data access for callback logs and deletion requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateConfirmationCode creates an opaque code for tracking a data
// deletion request. The code is what the platform shows to the user.
func GenerateConfirmationCode() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "del_" + hex.EncodeToString(bytes), nil
}

// LogEvent appends a raw callback to the event log for auditing.
func (r *Repository) LogEvent(ctx context.Context, kind, graphUserID string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (kind, graph_user_id, payload)
		VALUES ($1, $2, $3)
	`, kind, graphUserID, payload)
	return err
}

// CreateDeletionRequest records a pending data deletion request.
func (r *Repository) CreateDeletionRequest(ctx context.Context, graphUserID, confirmationCode string) (DeletionRequest, error) {
	var req DeletionRequest
	err := r.pool.QueryRow(ctx, `
		INSERT INTO data_deletion_requests (confirmation_code, graph_user_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, confirmation_code, graph_user_id, status, received_at, completed_at
	`, confirmationCode, graphUserID, DeletionStatusPending).Scan(
		&req.ID, &req.ConfirmationCode, &req.GraphUserID, &req.Status,
		&req.ReceivedAt, &req.CompletedAt,
	)
	return req, err
}

// GetDeletionRequestByCode retrieves a deletion request by its
// confirmation code.
func (r *Repository) GetDeletionRequestByCode(ctx context.Context, code string) (DeletionRequest, error) {
	var req DeletionRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, confirmation_code, graph_user_id, status, received_at, completed_at
		FROM data_deletion_requests
		WHERE confirmation_code = $1
	`, code).Scan(
		&req.ID, &req.ConfirmationCode, &req.GraphUserID, &req.Status,
		&req.ReceivedAt, &req.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeletionRequest{}, ErrDeletionRequestNotFound
	}
	return req, err
}

// MarkDeletionCompleted marks a deletion request as completed.
func (r *Repository) MarkDeletionCompleted(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE data_deletion_requests SET status = $2, completed_at = now()
		WHERE confirmation_code = $1
	`, code, DeletionStatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeletionRequestNotFound
	}
	return nil
}
