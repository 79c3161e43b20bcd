// Package service runs the photo publishing workflow: staged intake on
// the API side, background publishing to the Graph API on the worker side.
package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"photobridge_backend/internal/adapters/storage"
	"photobridge_backend/internal/events"
	"photobridge_backend/internal/uploads/exif"
	"photobridge_backend/internal/uploads/repository"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"
	"photobridge_backend/platform/sanitize"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	opIntake = "uploads.intake"
	opList   = "uploads.list"
	opGet    = "uploads.get"
	opCancel = "uploads.cancel"

	defaultPageSize = 20
	maxPageSize     = 100

	// maxBackdatePrecision is minute precision; year is 1. Zero means the
	// capture time is unknown and the photo is published without a backdate.
	maxBackdatePrecision = 5
)

// Repository is the persistence surface the workflow needs. Satisfied by
// uploads/repository.Repository.
type Repository interface {
	Create(ctx context.Context, p repository.CreateParams) (repository.Upload, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (repository.Upload, error)
	GetForPublish(ctx context.Context, id uuid.UUID) (repository.Upload, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.Upload, int64, error)
	SetPublishing(ctx context.Context, id uuid.UUID) error
	SetPublished(ctx context.Context, id uuid.UUID, graphPhotoID string) error
	SetFailed(ctx context.Context, id uuid.UUID, reason string) error
	Cancel(ctx context.Context, userID, id uuid.UUID) (repository.Upload, error)
	ListStaleForCleanup(ctx context.Context, cutoff time.Time, limit int) ([]repository.Upload, error)
	ClearFileKey(ctx context.Context, id uuid.UUID) error
}

// Enqueuer hands publish tasks to the background queue. Satisfied by
// scheduler.Client.
type Enqueuer interface {
	EnqueuePhotoPublish(ctx context.Context, uploadID, userID uuid.UUID) error
}

// IdempotencyGuard deduplicates retried intake requests by key.
type IdempotencyGuard interface {
	Claim(ctx context.Context, userID uuid.UUID, key string) (existing string, claimed bool, err error)
	Store(ctx context.Context, userID uuid.UUID, key, uploadID string) error
	Release(ctx context.Context, userID uuid.UUID, key string) error
}

// Upload is the API view of an upload record.
type Upload struct {
	ID               uuid.UUID  `json:"id"`
	FileName         string     `json:"fileName"`
	ContentType      string     `json:"contentType"`
	SizeBytes        int64      `json:"sizeBytes"`
	AlbumID          *string    `json:"albumId,omitempty"`
	Title            string     `json:"title,omitempty"`
	Description      string     `json:"description,omitempty"`
	NoStory          bool       `json:"noStory"`
	GeoTag           bool       `json:"geoTag"`
	TakenAt          *time.Time `json:"takenAt,omitempty"`
	TakenAtPrecision int        `json:"takenAtPrecision,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Status           string     `json:"status"`
	GraphPhotoID     *string    `json:"graphPhotoId,omitempty"`
	FailureReason    *string    `json:"failureReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	PreviewURL       string     `json:"previewUrl,omitempty"`
}

// UploadPage is a page of upload history.
type UploadPage struct {
	Data     []Upload `json:"data"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
}

// IntakeParams carries one submitted photo and its publish options.
// Explicit TakenAt and coordinates win over what the EXIF data says.
type IntakeParams struct {
	FileName         string
	ContentType      string
	Content          []byte
	AlbumID          *string
	Title            string
	Description      string
	NoStory          bool
	GeoTag           bool
	TakenAt          *time.Time
	TakenAtPrecision int
	Latitude         *float64
	Longitude        *float64
	IdempotencyKey   string
}

type Service struct {
	repo    Repository
	store   storage.StorageService
	guard   IdempotencyGuard
	enqueue Enqueuer
	bucket  string
	bus     events.Bus
	log     *logger.Logger
}

func New(repo Repository, store storage.StorageService, guard IdempotencyGuard, enqueue Enqueuer, cfg config.MinIOConfig, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		store:   store,
		guard:   guard,
		enqueue: enqueue,
		bucket:  cfg.GetMinioBucketPhotoStaging(),
		bus:     bus,
		log:     log,
	}
}

// Intake validates and stages a photo, records the upload and queues the
// publish task. The created flag is false when an idempotency key matched
// an earlier submission and that upload is returned instead.
func (s *Service) Intake(ctx context.Context, userID uuid.UUID, p IntakeParams) (Upload, bool, error) {
	if err := s.store.ValidateContentType(p.ContentType); err != nil {
		return Upload{}, false, apperr.Validation(err.Error()).WithOp(opIntake)
	}
	size := int64(len(p.Content))
	if err := s.store.ValidateFileSize(size); err != nil {
		return Upload{}, false, apperr.Validation(err.Error()).WithOp(opIntake)
	}

	if p.IdempotencyKey != "" {
		existing, claimed, err := s.guard.Claim(ctx, userID, p.IdempotencyKey)
		if err != nil {
			return Upload{}, false, apperr.Internal(fmt.Sprintf("idempotency check failed: %v", err)).WithOp(opIntake)
		}
		if !claimed {
			if existing == "" {
				return Upload{}, false, apperr.Conflict("a submission with this idempotency key is still in progress").WithOp(opIntake)
			}
			uploadID, parseErr := uuid.Parse(existing)
			if parseErr != nil {
				return Upload{}, false, apperr.Internal("idempotency key points at an invalid upload").WithOp(opIntake)
			}
			upload, getErr := s.repo.GetByID(ctx, userID, uploadID)
			if getErr != nil {
				return Upload{}, false, getErr
			}
			return s.toView(ctx, upload, false), false, nil
		}
	}

	fileName := filepath.Base(p.FileName)

	// Staging and EXIF parsing read the same bytes independently, so they
	// can run side by side.
	var (
		fileKey string
		meta    exif.Metadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		key, err := s.store.UploadFile(gctx, s.bucket, userID.String(), fileName, p.ContentType, bytes.NewReader(p.Content), size)
		if err != nil {
			return err
		}
		fileKey = key
		return nil
	})
	g.Go(func() error {
		meta = exif.Extract(bytes.NewReader(p.Content))
		return nil
	})
	if err := g.Wait(); err != nil {
		s.releaseGuard(ctx, userID, p.IdempotencyKey)
		return Upload{}, false, apperr.Internal(fmt.Sprintf("stage photo failed: %v", err)).WithOp(opIntake)
	}

	takenAt := p.TakenAt
	precision := p.TakenAtPrecision
	if takenAt != nil && precision == 0 {
		precision = maxBackdatePrecision
	}
	if takenAt == nil && meta.TakenAt != nil {
		takenAt = meta.TakenAt
		precision = maxBackdatePrecision
	}

	lat, lon := p.Latitude, p.Longitude
	if lat == nil && meta.Latitude != nil {
		lat, lon = meta.Latitude, meta.Longitude
	}

	upload, err := s.repo.Create(ctx, repository.CreateParams{
		UserID:           userID,
		FileName:         fileName,
		ContentType:      p.ContentType,
		SizeBytes:        size,
		FileKey:          fileKey,
		AlbumID:          p.AlbumID,
		Title:            sanitize.Text(p.Title),
		Description:      sanitize.Text(p.Description),
		NoStory:          p.NoStory,
		GeoTag:           p.GeoTag,
		TakenAt:          takenAt,
		TakenAtPrecision: precision,
		Latitude:         lat,
		Longitude:        lon,
	})
	if err != nil {
		s.releaseGuard(ctx, userID, p.IdempotencyKey)
		return Upload{}, false, err
	}

	if p.IdempotencyKey != "" {
		if err := s.guard.Store(ctx, userID, p.IdempotencyKey, upload.ID.String()); err != nil {
			s.log.Warn("failed to record idempotency key", "uploadId", upload.ID, "error", err)
		}
	}

	if err := s.enqueue.EnqueuePhotoPublish(ctx, upload.ID, userID); err != nil {
		_ = s.repo.SetFailed(ctx, upload.ID, "failed to enqueue publish task")
		s.releaseGuard(ctx, userID, p.IdempotencyKey)
		return Upload{}, false, apperr.Internal(fmt.Sprintf("queue publish task failed: %v", err)).WithOp(opIntake)
	}

	s.log.UploadEvent("queued", upload.ID.String(), "userId", userID, "file", fileName)
	s.bus.Publish(ctx, events.UploadQueued{
		BaseEvent: events.NewBaseEvent(),
		UploadID:  upload.ID,
		UserID:    userID,
		FileName:  upload.FileName,
		AlbumID:   albumOrTimeline(upload.AlbumID),
	})

	return s.toView(ctx, upload, false), true, nil
}

// List returns a page of the user's uploads, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) (UploadPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	uploads, total, err := s.repo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return UploadPage{}, err
	}

	views := make([]Upload, 0, len(uploads))
	for _, upload := range uploads {
		views = append(views, s.toView(ctx, upload, false))
	}

	return UploadPage{Data: views, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get returns one upload with a short-lived preview URL for the staged
// object when it is still around.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (Upload, error) {
	upload, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return Upload{}, err
	}

	return s.toView(ctx, upload, true), nil
}

// Cancel stops a queued upload and removes its staged object.
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) (Upload, error) {
	upload, err := s.repo.Cancel(ctx, userID, id)
	if err != nil {
		return Upload{}, err
	}

	if upload.FileKey != "" {
		if delErr := s.store.DeleteObject(ctx, s.bucket, upload.FileKey); delErr != nil {
			// The retention sweep picks it up later.
			s.log.Warn("failed to delete staged object on cancel", "uploadId", upload.ID, "error", delErr)
		} else if clearErr := s.repo.ClearFileKey(ctx, upload.ID); clearErr != nil {
			s.log.Warn("failed to clear file key on cancel", "uploadId", upload.ID, "error", clearErr)
		} else {
			upload.FileKey = ""
		}
	}

	s.log.UploadEvent("canceled", upload.ID.String(), "userId", userID)
	s.bus.Publish(ctx, events.UploadCanceled{
		BaseEvent: events.NewBaseEvent(),
		UploadID:  upload.ID,
		UserID:    userID,
		FileName:  upload.FileName,
	})

	return s.toView(ctx, upload, false), nil
}

func (s *Service) releaseGuard(ctx context.Context, userID uuid.UUID, key string) {
	if key == "" {
		return
	}
	if err := s.guard.Release(ctx, userID, key); err != nil {
		s.log.Warn("failed to release idempotency key", "userId", userID, "error", err)
	}
}

func (s *Service) toView(ctx context.Context, u repository.Upload, withPreview bool) Upload {
	view := Upload{
		ID:               u.ID,
		FileName:         u.FileName,
		ContentType:      u.ContentType,
		SizeBytes:        u.SizeBytes,
		AlbumID:          u.AlbumID,
		Title:            u.Title,
		Description:      u.Description,
		NoStory:          u.NoStory,
		GeoTag:           u.GeoTag,
		TakenAt:          u.TakenAt,
		TakenAtPrecision: u.TakenAtPrecision,
		Latitude:         u.Latitude,
		Longitude:        u.Longitude,
		Status:           u.Status,
		GraphPhotoID:     u.GraphPhotoID,
		FailureReason:    u.FailureReason,
		CreatedAt:        u.CreatedAt,
		PublishedAt:      u.PublishedAt,
	}

	if withPreview && u.FileKey != "" {
		if presigned, err := s.store.GenerateDownloadURL(ctx, s.bucket, u.FileKey); err == nil {
			view.PreviewURL = presigned.URL
		} else {
			s.log.Warn("failed to presign staged object", "uploadId", u.ID, "error", err)
		}
	}

	return view
}

func albumOrTimeline(albumID *string) string {
	if albumID == nil || *albumID == "" {
		return "me"
	}
	return *albumID
}
