package albums

import (
	"context"
	"testing"

	"photobridge_backend/internal/graph"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeTokens struct {
	scopes []string
	err    error
}

func (f *fakeTokens) RequireScopes(_ context.Context, _ uuid.UUID, scopes string) (string, error) {
	f.scopes = append(f.scopes, scopes)
	if f.err != nil {
		return "", f.err
	}
	return "token-123", nil
}

type fakeGraph struct {
	albums       []graph.Album
	detail       *graph.AlbumDetail
	createParams *graph.CreateAlbumParams
	err          error
}

func (f *fakeGraph) Albums(_ context.Context, _ string) ([]graph.Album, error) {
	return f.albums, f.err
}

func (f *fakeGraph) Album(_ context.Context, _, _ string) (*graph.AlbumDetail, error) {
	return f.detail, f.err
}

func (f *fakeGraph) CreateAlbum(_ context.Context, _ string, params graph.CreateAlbumParams) (string, error) {
	f.createParams = &params
	if f.err != nil {
		return "", f.err
	}
	return "album-9", nil
}

func newTestService(api *fakeGraph, tokens *fakeTokens) *Service {
	return NewService(api, tokens, logger.New("development"))
}

func TestList_RequestsReadScope(t *testing.T) {
	api := &fakeGraph{albums: []graph.Album{
		{ID: "1", Name: "Vacation", CanUpload: true},
		{ID: "2", Name: "Timeline Photos", CanUpload: false},
	}}
	tokens := &fakeTokens{}
	svc := newTestService(api, tokens)

	list, err := svc.List(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 albums, got %d", len(list))
	}
	if len(tokens.scopes) != 1 || tokens.scopes[0] != graph.ScopeRead {
		t.Fatalf("expected read scope request, got %v", tokens.scopes)
	}
}

func TestCreate_DefaultsPrivacyToSelf(t *testing.T) {
	api := &fakeGraph{}
	tokens := &fakeTokens{}
	svc := newTestService(api, tokens)

	id, err := svc.Create(context.Background(), uuid.New(), CreateAlbumRequest{Name: "Trip"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "album-9" {
		t.Fatalf("expected album-9, got %q", id)
	}
	if api.createParams.Privacy != graph.PrivacySelf {
		t.Fatalf("expected default privacy SELF, got %q", api.createParams.Privacy)
	}
	if len(tokens.scopes) != 1 || tokens.scopes[0] != graph.ScopeWrite {
		t.Fatalf("expected write scope request, got %v", tokens.scopes)
	}
}

func TestCreate_StripsMarkupFromFields(t *testing.T) {
	api := &fakeGraph{}
	svc := newTestService(api, &fakeTokens{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateAlbumRequest{
		Name:        "<b>Trip</b>",
		Description: "summer <script>x</script> 2016",
		Privacy:     graph.PrivacyEveryone,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.createParams.Name != "Trip" {
		t.Fatalf("expected markup stripped from name, got %q", api.createParams.Name)
	}
	if api.createParams.Description != "summer x 2016" {
		t.Fatalf("expected markup stripped from description, got %q", api.createParams.Description)
	}
	if api.createParams.Privacy != graph.PrivacyEveryone {
		t.Fatalf("expected explicit privacy kept, got %q", api.createParams.Privacy)
	}
}

func TestCreate_PropagatesMissingPublishGrant(t *testing.T) {
	api := &fakeGraph{}
	tokens := &fakeTokens{err: apperr.Forbidden("publishing permission (publish_actions) was not granted")}
	svc := newTestService(api, tokens)

	_, err := svc.Create(context.Background(), uuid.New(), CreateAlbumRequest{Name: "Trip"})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if api.createParams != nil {
		t.Fatal("expected no Graph call without a publish grant")
	}
}

func TestGet_MapsExpiredTokenToUnauthorized(t *testing.T) {
	api := &fakeGraph{err: &graph.Error{Message: "Error validating access token", Type: "OAuthException", Code: 190}}
	svc := newTestService(api, &fakeTokens{})

	_, err := svc.Get(context.Background(), uuid.New(), "album-1")
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
