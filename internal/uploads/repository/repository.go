// Package repository persists upload records through their publish lifecycle.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photobridge_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Upload lifecycle statuses. An upload starts queued, moves to publishing
// when a worker picks it up, and ends published, failed or canceled.
const (
	StatusQueued     = "queued"
	StatusPublishing = "publishing"
	StatusPublished  = "published"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

const (
	opCreate        = "uploads.repository.create"
	opGetByID       = "uploads.repository.get_by_id"
	opGetForPublish = "uploads.repository.get_for_publish"
	opListByUser    = "uploads.repository.list_by_user"
	opSetPublishing = "uploads.repository.set_publishing"
	opSetPublished  = "uploads.repository.set_published"
	opSetFailed     = "uploads.repository.set_failed"
	opCancel        = "uploads.repository.cancel"
	opListStale     = "uploads.repository.list_stale"
	opClearFileKey  = "uploads.repository.clear_file_key"

	errUploadNotFound = "upload not found"
)

// Upload is one staged photo on its way to Facebook.
type Upload struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	FileName         string
	ContentType      string
	SizeBytes        int64
	FileKey          string // empty once the staged object is cleaned up
	AlbumID          *string
	Title            string
	Description      string
	NoStory          bool
	GeoTag           bool
	TakenAt          *time.Time
	TakenAtPrecision int
	Latitude         *float64
	Longitude        *float64
	Status           string
	GraphPhotoID     *string
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PublishedAt      *time.Time
}

// CreateParams holds everything known about an upload at intake time.
type CreateParams struct {
	UserID           uuid.UUID
	FileName         string
	ContentType      string
	SizeBytes        int64
	FileKey          string
	AlbumID          *string
	Title            string
	Description      string
	NoStory          bool
	GeoTag           bool
	TakenAt          *time.Time
	TakenAtPrecision int
	Latitude         *float64
	Longitude        *float64
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uploadSelectCols = `
	id, user_id, file_name, content_type, size_bytes, file_key, album_id,
	title, description, no_story, geo_tag, taken_at, taken_at_precision,
	latitude, longitude, status, graph_photo_id, failure_reason,
	created_at, updated_at, published_at`

// uploadRowScanner is satisfied by pgx.Rows and pgx.Row so that scanUpload
// can be shared between single-row and multi-row queries.
type uploadRowScanner interface {
	Scan(dest ...any) error
}

// scanUpload populates an Upload from a standard SELECT row. Column order
// must match uploadSelectCols.
func scanUpload(s uploadRowScanner) (Upload, error) {
	var u Upload
	if err := s.Scan(
		&u.ID,
		&u.UserID,
		&u.FileName,
		&u.ContentType,
		&u.SizeBytes,
		&u.FileKey,
		&u.AlbumID,
		&u.Title,
		&u.Description,
		&u.NoStory,
		&u.GeoTag,
		&u.TakenAt,
		&u.TakenAtPrecision,
		&u.Latitude,
		&u.Longitude,
		&u.Status,
		&u.GraphPhotoID,
		&u.FailureReason,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PublishedAt,
	); err != nil {
		return Upload{}, err
	}
	return u, nil
}

// Create inserts a new upload in the queued status.
func (r *Repository) Create(ctx context.Context, p CreateParams) (Upload, error) {
	if p.UserID == uuid.Nil {
		return Upload{}, apperr.Validation("userId is required").WithOp(opCreate)
	}
	if p.FileName == "" || p.FileKey == "" {
		return Upload{}, apperr.Validation("file name and file key are required").WithOp(opCreate)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO uploads
		(user_id, file_name, content_type, size_bytes, file_key, album_id,
		 title, description, no_story, geo_tag, taken_at, taken_at_precision,
		 latitude, longitude, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+uploadSelectCols+`
	`, p.UserID, p.FileName, p.ContentType, p.SizeBytes, p.FileKey, p.AlbumID,
		p.Title, p.Description, p.NoStory, p.GeoTag, p.TakenAt, p.TakenAtPrecision,
		p.Latitude, p.Longitude, StatusQueued)

	upload, err := scanUpload(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Upload{}, apperr.Validation("invalid userId").WithOp(opCreate)
		}
		return Upload{}, apperr.Internal(fmt.Sprintf("create upload failed: %v", err)).WithOp(opCreate)
	}

	return upload, nil
}

// GetByID returns one of the user's uploads.
func (r *Repository) GetByID(ctx context.Context, userID, id uuid.UUID) (Upload, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return Upload{}, apperr.Validation("userId and upload id are required").WithOp(opGetByID)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+uploadSelectCols+`
		FROM uploads
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Upload{}, apperr.NotFound(errUploadNotFound).WithOp(opGetByID)
		}
		return Upload{}, apperr.Internal(fmt.Sprintf("get upload failed: %v", err)).WithOp(opGetByID)
	}

	return upload, nil
}

// GetForPublish returns an upload without a user scope. Only the worker
// uses it; the upload ID comes from the task payload, not a request.
func (r *Repository) GetForPublish(ctx context.Context, id uuid.UUID) (Upload, error) {
	if id == uuid.Nil {
		return Upload{}, apperr.Validation("upload id is required").WithOp(opGetForPublish)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+uploadSelectCols+`
		FROM uploads
		WHERE id = $1
	`, id)

	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Upload{}, apperr.NotFound(errUploadNotFound).WithOp(opGetForPublish)
		}
		return Upload{}, apperr.Internal(fmt.Sprintf("get upload failed: %v", err)).WithOp(opGetForPublish)
	}

	return upload, nil
}

// ListByUser returns a page of the user's uploads, newest first, plus the
// total count for pagination.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Upload, int64, error) {
	if userID == uuid.Nil {
		return nil, 0, apperr.Validation("userId is required").WithOp(opListByUser)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM uploads WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count uploads failed: %v", err)).WithOp(opListByUser)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadSelectCols+`
		FROM uploads
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list uploads failed: %v", err)).WithOp(opListByUser)
	}
	defer rows.Close()

	uploads := make([]Upload, 0, limit)
	for rows.Next() {
		upload, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan upload failed: %v", scanErr)).WithOp(opListByUser)
		}
		uploads = append(uploads, upload)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate uploads failed: %v", rowsErr)).WithOp(opListByUser)
	}

	return uploads, total, nil
}

// SetPublishing transitions a queued upload to publishing. A retried
// task may re-enter from publishing; terminal states (canceled,
// published, failed) return a conflict so the worker drops the task.
func (r *Repository) SetPublishing(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $2)
	`, id, StatusPublishing, StatusQueued)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark upload publishing failed: %v", err)).WithOp(opSetPublishing)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("upload is no longer queued").WithOp(opSetPublishing)
	}

	return nil
}

// SetPublished records a successful publish with the remote photo ID.
func (r *Repository) SetPublished(ctx context.Context, id uuid.UUID, graphPhotoID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads
		SET status = $2, graph_photo_id = $3, failure_reason = NULL,
		    published_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, StatusPublished, graphPhotoID, StatusPublishing)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark upload published failed: %v", err)).WithOp(opSetPublished)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errUploadNotFound).WithOp(opSetPublished)
	}

	return nil
}

// SetFailed records a permanent publish failure.
func (r *Repository) SetFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, StatusFailed, reason, StatusQueued, StatusPublishing)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark upload failed failed: %v", err)).WithOp(opSetFailed)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errUploadNotFound).WithOp(opSetFailed)
	}

	return nil
}

// Cancel transitions one of the user's uploads from queued to canceled
// and returns the updated row. Uploads already being published cannot be
// canceled; the publish may have gone out.
func (r *Repository) Cancel(ctx context.Context, userID, id uuid.UUID) (Upload, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE uploads
		SET status = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = $4
		RETURNING `+uploadSelectCols+`
	`, id, userID, StatusCanceled, StatusQueued)

	upload, err := scanUpload(row)
	if err == nil {
		return upload, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Upload{}, apperr.Internal(fmt.Sprintf("cancel upload failed: %v", err)).WithOp(opCancel)
	}

	// Distinguish "not yours / missing" from "too late to cancel".
	existing, getErr := r.GetByID(ctx, userID, id)
	if getErr != nil {
		return Upload{}, apperr.NotFound(errUploadNotFound).WithOp(opCancel)
	}

	return Upload{}, apperr.Conflict(fmt.Sprintf("upload is %s and can no longer be canceled", existing.Status)).WithOp(opCancel)
}

// ListStaleForCleanup returns finished uploads whose staged object is
// still around after the retention window. The sweep deletes the objects
// and clears the keys; the rows themselves stay as history.
func (r *Repository) ListStaleForCleanup(ctx context.Context, cutoff time.Time, limit int) ([]Upload, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadSelectCols+`
		FROM uploads
		WHERE status IN ($1, $2, $3) AND file_key <> '' AND updated_at < $4
		ORDER BY updated_at ASC
		LIMIT $5
	`, StatusPublished, StatusFailed, StatusCanceled, cutoff, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list stale uploads failed: %v", err)).WithOp(opListStale)
	}
	defer rows.Close()

	uploads := make([]Upload, 0, limit)
	for rows.Next() {
		upload, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan stale upload failed: %v", scanErr)).WithOp(opListStale)
		}
		uploads = append(uploads, upload)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate stale uploads failed: %v", rowsErr)).WithOp(opListStale)
	}

	return uploads, nil
}

// ClearFileKey marks the staged object as removed.
func (r *Repository) ClearFileKey(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE uploads SET file_key = '', updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("clear file key failed: %v", err)).WithOp(opClearFileKey)
	}

	return nil
}
