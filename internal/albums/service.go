package albums

import (
	"context"

	"photobridge_backend/internal/graph"
	"photobridge_backend/platform/logger"
	"photobridge_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	opList   = "albums.list"
	opGet    = "albums.get"
	opCreate = "albums.create"
)

// TokenSource hands out decrypted Graph access tokens for a user after
// verifying the stored grant covers the requested scopes. Implemented by
// the accounts service.
type TokenSource interface {
	RequireScopes(ctx context.Context, userID uuid.UUID, scopes string) (string, error)
}

// GraphAPI is the slice of the Graph client the album service needs.
type GraphAPI interface {
	Albums(ctx context.Context, accessToken string) ([]graph.Album, error)
	Album(ctx context.Context, accessToken, albumID string) (*graph.AlbumDetail, error)
	CreateAlbum(ctx context.Context, accessToken string, params graph.CreateAlbumParams) (string, error)
}

// Service proxies album reads and creation to the Graph API. It holds no
// state of its own; albums live on Facebook and are never persisted here.
type Service struct {
	api    GraphAPI
	tokens TokenSource
	log    *logger.Logger
}

func NewService(api GraphAPI, tokens TokenSource, log *logger.Logger) *Service {
	return &Service{
		api:    api,
		tokens: tokens,
		log:    log,
	}
}

// List returns the user's albums with their upload capability flags.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]graph.Album, error) {
	token, err := s.tokens.RequireScopes(ctx, userID, graph.ScopeRead)
	if err != nil {
		return nil, err
	}

	list, err := s.api.Albums(ctx, token)
	if err != nil {
		return nil, graph.MapError(opList, err)
	}

	return list, nil
}

// Get returns one album with its description, location and cover picture.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, albumID string) (*graph.AlbumDetail, error) {
	token, err := s.tokens.RequireScopes(ctx, userID, graph.ScopeRead)
	if err != nil {
		return nil, err
	}

	detail, err := s.api.Album(ctx, token, albumID)
	if err != nil {
		return nil, graph.MapError(opGet, err)
	}

	return detail, nil
}

// Create creates a new album on Facebook and returns its Graph ID.
// Creation needs the publish grant, not just read access.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateAlbumRequest) (string, error) {
	token, err := s.tokens.RequireScopes(ctx, userID, graph.ScopeWrite)
	if err != nil {
		return "", err
	}

	privacy := req.Privacy
	if privacy == "" {
		privacy = graph.PrivacySelf
	}

	params := graph.CreateAlbumParams{
		Name:        sanitize.Text(req.Name),
		Description: sanitize.Text(req.Description),
		Location:    sanitize.Text(req.Location),
		Privacy:     privacy,
	}

	id, err := s.api.CreateAlbum(ctx, token, params)
	if err != nil {
		return "", graph.MapError(opCreate, err)
	}

	s.log.Info("album created", "userId", userID, "albumId", id)

	return id, nil
}
