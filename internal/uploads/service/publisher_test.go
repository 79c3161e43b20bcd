package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"photobridge_backend/internal/graph"
	placesvc "photobridge_backend/internal/places/service"
	"photobridge_backend/internal/uploads/repository"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) RequireScopes(_ context.Context, _ uuid.UUID, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeUploader struct {
	photoID string
	err     error
	calls   int
	albumID string
	body    []byte
	params  *graph.UploadPhotoParams
}

func (f *fakeUploader) UploadPhoto(_ context.Context, _, albumID string, photo io.Reader, params graph.UploadPhotoParams) (string, error) {
	f.calls++
	f.albumID = albumID
	f.params = &params
	data, _ := io.ReadAll(photo)
	f.body = data
	if f.err != nil {
		return "", f.err
	}
	if f.photoID == "" {
		return "ph-1", nil
	}
	return f.photoID, nil
}

type fakePlaces struct {
	cities []graph.Place
	err    error
	calls  int
}

func (f *fakePlaces) ResolveCities(_ context.Context, _ string, _ placesvc.Coordinates) ([]graph.Place, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cities, nil
}

type publisherFixture struct {
	pub      *Publisher
	repo     *fakeRepo
	store    *fakeStore
	tokens   *fakeTokens
	uploader *fakeUploader
	places   *fakePlaces
	bus      *fakeBus
}

func newPublisherFixture() *publisherFixture {
	f := &publisherFixture{
		repo:     newFakeRepo(),
		store:    newFakeStore(),
		tokens:   &fakeTokens{token: "token-123"},
		uploader: &fakeUploader{},
		places:   &fakePlaces{},
		bus:      &fakeBus{},
	}
	f.pub = NewPublisher(f.repo, f.store, f.tokens, f.uploader, f.places, testMinIOConfig{}, f.bus, logger.New("development"))
	return f
}

// queueUpload seeds a queued upload row plus its staged object.
func (f *publisherFixture) queueUpload(t *testing.T, mutate func(*repository.CreateParams)) repository.Upload {
	t.Helper()

	userID := uuid.New()
	params := repository.CreateParams{
		UserID:      userID,
		FileName:    "IMG_0042.jpg",
		ContentType: "image/jpeg",
		SizeBytes:   12,
		FileKey:     userID.String() + "/IMG_0042.jpg",
	}
	if mutate != nil {
		mutate(&params)
	}

	upload, err := f.repo.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.store.objects[upload.FileKey] = []byte("staged-bytes")
	return upload
}

func TestPublish_SendsPhotoAndRecordsRemoteID(t *testing.T) {
	f := newPublisherFixture()
	upload := f.queueUpload(t, func(p *repository.CreateParams) {
		p.Title = "Beach day"
		p.Description = "Sunset at the pier"
		p.NoStory = true
	})

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := f.repo.uploads[upload.ID]
	if row.Status != repository.StatusPublished {
		t.Fatalf("expected published status, got %q", row.Status)
	}
	if row.GraphPhotoID == nil || *row.GraphPhotoID != "ph-1" {
		t.Fatalf("expected remote photo id recorded, got %v", row.GraphPhotoID)
	}
	if string(f.uploader.body) != "staged-bytes" {
		t.Fatalf("expected staged bytes sent, got %q", f.uploader.body)
	}
	if f.uploader.albumID != "me" {
		t.Fatalf("expected timeline target for album-less upload, got %q", f.uploader.albumID)
	}
	if f.uploader.params.Caption != "Beach day\n\nSunset at the pier" {
		t.Fatalf("unexpected caption %q", f.uploader.params.Caption)
	}
	if !f.uploader.params.NoStory {
		t.Fatal("expected no_story flag forwarded")
	}
	if names := f.bus.names(); len(names) != 1 || names[0] != "uploads.upload.published" {
		t.Fatalf("expected published event, got %v", names)
	}
}

func TestPublish_CaptionFallsBackToSingleField(t *testing.T) {
	cases := []struct {
		name        string
		title       string
		description string
		want        string
	}{
		{"both", "Title", "Body", "Title\n\nBody"},
		{"title only", "Title", "", "Title"},
		{"description only", "", "Body", "Body"},
		{"neither", "", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildCaption(tc.title, tc.description); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPublish_BackdateGranularityFollowsPrecision(t *testing.T) {
	takenAt := time.Date(2016, 5, 4, 13, 30, 0, 0, time.UTC)

	cases := []struct {
		precision int
		want      string
	}{
		{1, "year"},
		{3, "day"},
		{5, "min"},
	}

	for _, tc := range cases {
		f := newPublisherFixture()
		upload := f.queueUpload(t, func(p *repository.CreateParams) {
			p.TakenAt = &takenAt
			p.TakenAtPrecision = tc.precision
		})

		if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.uploader.params.BackdatedGranularity != tc.want {
			t.Fatalf("precision %d: expected granularity %q, got %q", tc.precision, tc.want, f.uploader.params.BackdatedGranularity)
		}
		if f.uploader.params.BackdatedTime == nil || !f.uploader.params.BackdatedTime.Equal(takenAt) {
			t.Fatalf("precision %d: expected backdated time forwarded", tc.precision)
		}
	}
}

func TestPublish_UnknownCaptureTimeSkipsBackdate(t *testing.T) {
	f := newPublisherFixture()
	upload := f.queueUpload(t, nil)

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.uploader.params.BackdatedTime != nil {
		t.Fatal("expected no backdate without a capture time")
	}
}

func TestPublish_CanceledUploadIsDropped(t *testing.T) {
	f := newPublisherFixture()
	upload := f.queueUpload(t, nil)

	if _, err := f.repo.Cancel(context.Background(), upload.UserID, upload.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("expected canceled upload to be dropped without error, got %v", err)
	}
	if f.uploader.calls != 0 {
		t.Fatal("expected no Graph call for a canceled upload")
	}
	if f.repo.uploads[upload.ID].Status != repository.StatusCanceled {
		t.Fatalf("expected status to stay canceled, got %q", f.repo.uploads[upload.ID].Status)
	}
}

func TestPublish_MissingGrantMarksFailed(t *testing.T) {
	f := newPublisherFixture()
	f.tokens.err = apperr.Forbidden("publishing permission (publish_actions) was not granted")
	upload := f.queueUpload(t, nil)

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("expected permanent failure to complete the task, got %v", err)
	}

	row := f.repo.uploads[upload.ID]
	if row.Status != repository.StatusFailed {
		t.Fatalf("expected failed status, got %q", row.Status)
	}
	if row.FailureReason == nil || !strings.Contains(*row.FailureReason, "publish_actions") {
		t.Fatalf("expected failure reason to name the grant, got %v", row.FailureReason)
	}
	if names := f.bus.names(); len(names) != 1 || names[0] != "uploads.upload.failed" {
		t.Fatalf("expected failed event, got %v", names)
	}
}

func TestPublish_TransientGraphErrorAsksForRetry(t *testing.T) {
	f := newPublisherFixture()
	f.uploader.err = &graph.Error{Message: "Application request limit reached", Code: 4}
	upload := f.queueUpload(t, nil)

	if err := f.pub.Publish(context.Background(), upload.ID); err == nil {
		t.Fatal("expected an error so the queue retries")
	}

	row := f.repo.uploads[upload.ID]
	if row.Status != repository.StatusPublishing {
		t.Fatalf("expected status to stay publishing for the retry, got %q", row.Status)
	}
	if len(f.bus.published) != 0 {
		t.Fatalf("expected no terminal event yet, got %v", f.bus.names())
	}

	// The retry re-enters from the publishing status.
	f.uploader.err = nil
	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if f.repo.uploads[upload.ID].Status != repository.StatusPublished {
		t.Fatalf("expected retry to publish, got %q", f.repo.uploads[upload.ID].Status)
	}
}

func TestPublish_PermanentGraphErrorMarksFailed(t *testing.T) {
	f := newPublisherFixture()
	f.uploader.err = &graph.Error{Message: "Invalid parameter", Type: "GraphMethodException", Code: 100}
	upload := f.queueUpload(t, nil)

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("expected permanent failure to complete the task, got %v", err)
	}

	row := f.repo.uploads[upload.ID]
	if row.Status != repository.StatusFailed {
		t.Fatalf("expected failed status, got %q", row.Status)
	}
	if row.FailureReason == nil || !strings.Contains(*row.FailureReason, "Invalid parameter") {
		t.Fatalf("expected graph message in failure reason, got %v", row.FailureReason)
	}
}

func TestPublish_GeoTagPicksNearestCity(t *testing.T) {
	f := newPublisherFixture()
	lat, lon := 52.37, 4.89
	far := 53.2
	f.places.cities = []graph.Place{
		{ID: "city-far", Name: "Alkmaar", Category: "City", Location: &graph.Location{Latitude: &far, Longitude: &lon}},
		{ID: "city-near", Name: "Amsterdam", Category: "City", Location: &graph.Location{Latitude: &lat, Longitude: &lon}},
	}
	upload := f.queueUpload(t, func(p *repository.CreateParams) {
		p.GeoTag = true
		p.Latitude = &lat
		p.Longitude = &lon
	})

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.places.calls != 1 {
		t.Fatalf("expected one place resolution, got %d", f.places.calls)
	}
	if f.uploader.params.PlaceID != "city-near" {
		t.Fatalf("expected nearest city tagged, got %q", f.uploader.params.PlaceID)
	}
}

func TestPublish_PlaceResolutionFailureStillPublishes(t *testing.T) {
	f := newPublisherFixture()
	lat, lon := 52.37, 4.89
	f.places.err = fmt.Errorf("graph search unavailable")
	upload := f.queueUpload(t, func(p *repository.CreateParams) {
		p.GeoTag = true
		p.Latitude = &lat
		p.Longitude = &lon
	})

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.uploader.params.PlaceID != "" {
		t.Fatalf("expected no place tag, got %q", f.uploader.params.PlaceID)
	}
	if f.repo.uploads[upload.ID].Status != repository.StatusPublished {
		t.Fatalf("expected published status, got %q", f.repo.uploads[upload.ID].Status)
	}
}

func TestPublish_GeoTagDisabledSkipsResolution(t *testing.T) {
	f := newPublisherFixture()
	lat, lon := 52.37, 4.89
	upload := f.queueUpload(t, func(p *repository.CreateParams) {
		p.GeoTag = false
		p.Latitude = &lat
		p.Longitude = &lon
	})

	if err := f.pub.Publish(context.Background(), upload.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.places.calls != 0 {
		t.Fatal("expected no place resolution when geo tagging is off")
	}
}

func TestCleanupStale_RemovesExpiredStagedObjects(t *testing.T) {
	f := newPublisherFixture()

	old := f.queueUpload(t, nil)
	if err := f.repo.SetFailed(context.Background(), old.ID, "graph upload rejected"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale := f.repo.uploads[old.ID]
	stale.UpdatedAt = time.Now().Add(-14 * 24 * time.Hour)
	f.repo.uploads[old.ID] = stale

	fresh := f.queueUpload(t, nil)
	if err := f.repo.SetFailed(context.Background(), fresh.ID, "graph upload rejected"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	queued := f.queueUpload(t, nil)
	row := f.repo.uploads[queued.ID]
	row.UpdatedAt = time.Now().Add(-14 * 24 * time.Hour)
	f.repo.uploads[queued.ID] = row

	cleaned, err := f.pub.CleanupStale(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleaned != 1 {
		t.Fatalf("expected 1 object cleaned, got %d", cleaned)
	}
	if f.repo.uploads[old.ID].FileKey != "" {
		t.Fatal("expected stale file key cleared")
	}
	if f.repo.uploads[fresh.ID].FileKey == "" {
		t.Fatal("expected fresh upload untouched")
	}
	if f.repo.uploads[queued.ID].FileKey == "" {
		t.Fatal("expected queued upload untouched")
	}
}
