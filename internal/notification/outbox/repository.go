// Package outbox queues notification deliveries in Postgres so they
// survive restarts and can be retried with backoff. Delivery is at least
// once; consumers must tolerate a duplicate.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"photobridge_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status tracks a record through delivery. A record starts pending, is
// claimed to enqueued by the dispatcher, marked processing by the worker
// and ends succeeded or failed. ScheduleRetry moves it back to pending
// with a later run_at.
type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

const (
	opInsert         = "notification.outbox.insert"
	opGetByID        = "notification.outbox.get_by_id"
	opClaimDue       = "notification.outbox.claim_due"
	opRequeueStuck   = "notification.outbox.requeue_stuck"
	opMarkPending    = "notification.outbox.mark_pending"
	opMarkProcessing = "notification.outbox.mark_processing"
	opMarkSucceeded  = "notification.outbox.mark_succeeded"
	opMarkFailed     = "notification.outbox.mark_failed"
	opScheduleRetry  = "notification.outbox.schedule_retry"
)

type Record struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Kind     string
	Template string
	Payload  json.RawMessage
	RunAt    time.Time
	Status   Status
	Attempts int
}

type InsertParams struct {
	UserID   uuid.UUID
	Kind     string
	Template string
	Payload  any
	RunAt    time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type recordRowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s recordRowScanner) (Record, error) {
	var rec Record
	var status string
	if err := s.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Kind,
		&rec.Template,
		&rec.Payload,
		&rec.RunAt,
		&status,
		&rec.Attempts,
	); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// Insert stores a new pending record. A zero RunAt means due immediately.
func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if p.UserID == uuid.Nil {
		return uuid.Nil, apperr.Validation("userId is required").WithOp(opInsert)
	}
	if p.Kind == "" || p.Template == "" {
		return uuid.Nil, apperr.Validation("kind and template are required").WithOp(opInsert)
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, apperr.Validation(fmt.Sprintf("marshal payload: %v", err)).WithOp(opInsert)
	}

	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_outbox (user_id, kind, template, payload, run_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.UserID, p.Kind, p.Template, payload, p.RunAt, string(StatusPending)).Scan(&id); err != nil {
		return uuid.Nil, apperr.Internal(fmt.Sprintf("insert outbox record failed: %v", err)).WithOp(opInsert)
	}

	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, template, payload, run_at, status, attempts
		FROM notification_outbox
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, apperr.NotFound("outbox record not found").WithOp(opGetByID)
		}
		return Record{}, apperr.Internal(fmt.Sprintf("get outbox record failed: %v", err)).WithOp(opGetByID)
	}

	return rec, nil
}

// ClaimDue atomically moves up to limit due pending records to enqueued
// and returns them. SKIP LOCKED lets concurrent dispatchers claim
// disjoint sets. Records with a future run_at stay in the table until
// they are due, so Postgres remains the source of truth for scheduling.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM notification_outbox
			WHERE status = $2 AND run_at <= now()
			ORDER BY run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_outbox o
		SET status = $3, updated_at = now()
		FROM due
		WHERE o.id = due.id
		RETURNING o.id, o.user_id, o.kind, o.template, o.payload, o.run_at, o.status, o.attempts
	`, limit, string(StatusPending), string(StatusEnqueued))
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("claim due outbox records failed: %v", err)).WithOp(opClaimDue)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan outbox record failed: %v", scanErr)).WithOp(opClaimDue)
		}
		records = append(records, rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate outbox records failed: %v", rowsErr)).WithOp(opClaimDue)
	}

	return records, nil
}

// RequeueStuck returns enqueued records untouched since the cutoff to
// pending. A dispatcher that died between claiming and enqueueing leaves
// records behind in enqueued; this sweep gets them delivered after all.
func (r *Repository) RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3
	`, string(StatusPending), string(StatusEnqueued), cutoff)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("requeue stuck outbox records failed: %v", err)).WithOp(opRequeueStuck)
	}

	return tag.RowsAffected(), nil
}

// MarkPending returns a claimed record to pending, recording why the
// dispatch did not happen.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`, id, string(StatusPending), lastError)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark outbox record pending failed: %v", err)).WithOp(opMarkPending)
	}

	return nil
}

// MarkProcessing flags a record as being delivered and counts the attempt.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $2, attempts = attempts + 1, updated_at = now()
		WHERE id = $1
	`, id, string(StatusProcessing))
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark outbox record processing failed: %v", err)).WithOp(opMarkProcessing)
	}

	return nil
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $2, last_error = NULL, updated_at = now()
		WHERE id = $1
	`, id, string(StatusSucceeded))
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark outbox record succeeded failed: %v", err)).WithOp(opMarkSucceeded)
	}

	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`, id, string(StatusFailed), lastError)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark outbox record failed failed: %v", err)).WithOp(opMarkFailed)
	}

	return nil
}

// ScheduleRetry puts a record back in the pending state with a new run_at,
// so the dispatcher picks it up again after the backoff delay.
func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $2, run_at = $3, last_error = $4, updated_at = now()
		WHERE id = $1
	`, id, string(StatusPending), runAt, lastError)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("schedule outbox retry failed: %v", err)).WithOp(opScheduleRetry)
	}

	return nil
}
