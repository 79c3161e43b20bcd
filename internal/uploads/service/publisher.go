package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"photobridge_backend/internal/adapters/storage"
	"photobridge_backend/internal/events"
	"photobridge_backend/internal/graph"
	placesvc "photobridge_backend/internal/places/service"
	"photobridge_backend/internal/uploads/repository"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

const cleanupBatchSize = 100

// backdateGranularities maps TakenAtPrecision (1-based) onto the Graph
// backdated_time_granularity values.
var backdateGranularities = []string{"year", "month", "day", "hour", "min"}

// TokenSource hands out decrypted Graph tokens after a scope check.
// Satisfied by the accounts service.
type TokenSource interface {
	RequireScopes(ctx context.Context, userID uuid.UUID, scopes string) (string, error)
}

// PhotoUploader is the Graph upload surface. Satisfied by graph.Client.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, token, albumID string, photo io.Reader, params graph.UploadPhotoParams) (string, error)
}

// PlaceResolver finds candidate cities around a coordinate for the place
// tag. Satisfied by the places service.
type PlaceResolver interface {
	ResolveCities(ctx context.Context, token string, coord placesvc.Coordinates) ([]graph.Place, error)
}

// Publisher performs the worker side of the workflow: it takes queued
// uploads off the task queue and pushes them to the Graph API.
type Publisher struct {
	repo   Repository
	store  storage.StorageService
	tokens TokenSource
	api    PhotoUploader
	places PlaceResolver
	bucket string
	bus    events.Bus
	log    *logger.Logger
}

func NewPublisher(repo Repository, store storage.StorageService, tokens TokenSource, api PhotoUploader, places PlaceResolver, cfg config.MinIOConfig, bus events.Bus, log *logger.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		store:  store,
		tokens: tokens,
		api:    api,
		places: places,
		bucket: cfg.GetMinioBucketPhotoStaging(),
		bus:    bus,
		log:    log,
	}
}

// Publish pushes one staged upload to Facebook. A nil return means the
// task is done (published, permanently failed, or dropped); a non-nil
// return asks the queue to retry.
func (p *Publisher) Publish(ctx context.Context, uploadID uuid.UUID) error {
	upload, err := p.repo.GetForPublish(ctx, uploadID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			p.log.Warn("publish task for unknown upload, dropping", "uploadId", uploadID)
			return nil
		}
		return err
	}

	if err := p.repo.SetPublishing(ctx, upload.ID); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			p.log.Info("upload no longer pending, dropping publish task", "uploadId", upload.ID, "status", upload.Status)
			return nil
		}
		return err
	}

	token, err := p.tokens.RequireScopes(ctx, upload.UserID, graph.ScopeWrite)
	if err != nil {
		if apperr.Is(err, apperr.KindForbidden) || apperr.Is(err, apperr.KindNotFound) {
			// No account or no publish grant. Retrying will not help
			// until the user relinks.
			return p.fail(ctx, upload, fmt.Sprintf("cannot publish: %v", err))
		}
		return err
	}

	if upload.FileKey == "" {
		return p.fail(ctx, upload, "staged photo is no longer available")
	}

	object, err := p.store.DownloadFile(ctx, p.bucket, upload.FileKey)
	if err != nil {
		return fmt.Errorf("download staged photo: %w", err)
	}
	defer func() {
		_ = object.Close()
	}()

	params := graph.UploadPhotoParams{
		Caption: buildCaption(upload.Title, upload.Description),
		NoStory: upload.NoStory,
	}
	if upload.TakenAt != nil && upload.TakenAtPrecision >= 1 && upload.TakenAtPrecision <= maxBackdatePrecision {
		params.BackdatedTime = upload.TakenAt
		params.BackdatedGranularity = backdateGranularities[upload.TakenAtPrecision-1]
	}

	if upload.GeoTag && upload.Latitude != nil && upload.Longitude != nil {
		coord := placesvc.Coordinates{Latitude: *upload.Latitude, Longitude: *upload.Longitude}
		cities, resolveErr := p.places.ResolveCities(ctx, token, coord)
		if resolveErr != nil {
			p.log.Warn("place resolution failed, publishing without place tag", "uploadId", upload.ID, "error", resolveErr)
		} else if city := placesvc.NearestCity(coord, cities); city != nil {
			params.PlaceID = city.ID
		}
	}

	photoID, err := p.api.UploadPhoto(ctx, token, albumOrTimeline(upload.AlbumID), object, params)
	if err != nil {
		var graphErr *graph.Error
		if errors.As(err, &graphErr) && graphErr.Temporary() {
			return fmt.Errorf("transient graph failure: %w", err)
		}
		return p.fail(ctx, upload, fmt.Sprintf("graph upload rejected: %v", err))
	}

	if err := p.repo.SetPublished(ctx, upload.ID, photoID); err != nil {
		// The photo is on Facebook. Returning an error would re-run the
		// task and publish it twice, so log and leave the row publishing.
		p.log.Error("photo published but status update failed", "uploadId", upload.ID, "graphPhotoId", photoID, "error", err)
		return nil
	}

	p.log.UploadEvent("published", upload.ID.String(), "userId", upload.UserID, "graphPhotoId", photoID)
	p.bus.Publish(ctx, events.UploadPublished{
		BaseEvent:    events.NewBaseEvent(),
		UploadID:     upload.ID,
		UserID:       upload.UserID,
		FileName:     upload.FileName,
		AlbumID:      albumOrTimeline(upload.AlbumID),
		GraphPhotoID: photoID,
	})

	return nil
}

// CleanupStale deletes staged objects of finished uploads past the
// retention window and returns how many it removed.
func (p *Publisher) CleanupStale(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	uploads, err := p.repo.ListStaleForCleanup(ctx, cutoff, cleanupBatchSize)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, upload := range uploads {
		if delErr := p.store.DeleteObject(ctx, p.bucket, upload.FileKey); delErr != nil {
			p.log.Warn("failed to delete stale staged object", "uploadId", upload.ID, "fileKey", upload.FileKey, "error", delErr)
			continue
		}
		if clearErr := p.repo.ClearFileKey(ctx, upload.ID); clearErr != nil {
			p.log.Warn("failed to clear file key after cleanup", "uploadId", upload.ID, "error", clearErr)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		p.log.Info("stale staged objects removed", "count", cleaned)
	}

	return cleaned, nil
}

func (p *Publisher) fail(ctx context.Context, upload repository.Upload, reason string) error {
	if err := p.repo.SetFailed(ctx, upload.ID, reason); err != nil {
		p.log.Error("failed to record publish failure", "uploadId", upload.ID, "error", err)
	}

	p.log.UploadEvent("failed", upload.ID.String(), "userId", upload.UserID, "reason", reason)
	p.bus.Publish(ctx, events.UploadFailed{
		BaseEvent: events.NewBaseEvent(),
		UploadID:  upload.ID,
		UserID:    upload.UserID,
		FileName:  upload.FileName,
		Reason:    reason,
	})

	return nil
}

// buildCaption joins title and description the way the photo caption is
// rendered on Facebook: both joined by a blank line, or whichever is set.
func buildCaption(title, description string) string {
	switch {
	case title != "" && description != "":
		return title + "\n\n" + description
	case title != "":
		return title
	default:
		return description
	}
}
