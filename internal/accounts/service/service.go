// Package service implements linking, inspection and revocation of
// Facebook accounts. Access tokens are validated against the Graph API
// on link and stored encrypted.
package service

import (
	"context"
	"fmt"
	"time"

	"photobridge_backend/internal/accounts/repository"
	"photobridge_backend/internal/accounts/tokencrypto"
	"photobridge_backend/internal/events"
	"photobridge_backend/internal/graph"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	opLink        = "accounts.service.link"
	opRefresh     = "accounts.service.refresh"
	opRevoke      = "accounts.service.revoke"
	opAccessToken = "accounts.service.access_token"

	// RevokeSourceUser marks a revocation initiated in the app.
	RevokeSourceUser = "user"
	// RevokeSourceCallback marks a revocation from a Facebook
	// deauthorization callback.
	RevokeSourceCallback = "deauthorize_callback"
)

// GraphAPI is the part of the Graph client the accounts service uses.
type GraphAPI interface {
	Me(ctx context.Context, token string) (*graph.User, error)
	Permissions(ctx context.Context, token string) (graph.PermissionSet, error)
}

// Repository persists linked accounts.
type Repository interface {
	Upsert(ctx context.Context, p repository.UpsertParams) (repository.LinkedAccount, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (repository.LinkedAccount, error)
	ListByGraphUserID(ctx context.Context, graphUserID string) ([]repository.LinkedAccount, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// Account is the caller-facing view of a linked account. It never
// carries the access token.
type Account struct {
	ID           uuid.UUID `json:"id"`
	GraphUserID  string    `json:"graphUserId"`
	DisplayName  string    `json:"displayName"`
	PictureURL   *string   `json:"pictureUrl,omitempty"`
	GrantedRead  bool      `json:"grantedRead"`
	GrantedWrite bool      `json:"grantedWrite"`
	LinkedAt     time.Time `json:"linkedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Service struct {
	repo     Repository
	api      GraphAPI
	tokenKey []byte
	bus      events.Bus
	log      *logger.Logger
}

func New(repo Repository, api GraphAPI, cfg config.AccountsConfig, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		api:      api,
		tokenKey: cfg.GetAccountTokenKey(),
		bus:      bus,
		log:      log,
	}
}

// Link validates the access token against the Graph API and stores the
// account. The token must at least grant photo read access; write
// access is recorded when present so uploads can check it later.
func (s *Service) Link(ctx context.Context, userID uuid.UUID, accessToken string) (Account, error) {
	user, err := s.api.Me(ctx, accessToken)
	if err != nil {
		return Account{}, graph.MapError(opLink, err)
	}
	perms, err := s.api.Permissions(ctx, accessToken)
	if err != nil {
		return Account{}, graph.MapError(opLink, err)
	}

	grantedRead := perms.Granted(graph.ScopeRead)
	grantedWrite := perms.Granted(graph.ScopeWrite)
	if !grantedRead {
		return Account{}, apperr.Forbidden("the token does not grant photo access (user_photos)").WithOp(opLink)
	}

	encrypted, err := tokencrypto.Encrypt(accessToken, s.tokenKey)
	if err != nil {
		return Account{}, apperr.Internal(fmt.Sprintf("encrypt access token failed: %v", err)).WithOp(opLink)
	}

	var pictureURL *string
	if user.PictureURL != "" {
		pictureURL = &user.PictureURL
	}

	account, err := s.repo.Upsert(ctx, repository.UpsertParams{
		UserID:         userID,
		GraphUserID:    user.ID,
		DisplayName:    user.Name,
		PictureURL:     pictureURL,
		EncryptedToken: encrypted,
		GrantedRead:    grantedRead,
		GrantedWrite:   grantedWrite,
	})
	if err != nil {
		return Account{}, err
	}

	s.log.Info("facebook account linked", "userId", userID, "grantedWrite", grantedWrite)
	s.bus.Publish(ctx, events.AccountLinked{
		BaseEvent:    events.NewBaseEvent(),
		AccountID:    account.ID,
		UserID:       userID,
		GraphUserID:  account.GraphUserID,
		DisplayName:  account.DisplayName,
		GrantedRead:  grantedRead,
		GrantedWrite: grantedWrite,
	})

	return toAccount(account), nil
}

// Get returns the user's linked account.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (Account, error) {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	return toAccount(account), nil
}

// Refresh re-validates the stored token against the Graph API and
// updates the profile fields and permission flags. Useful after the
// user changed app permissions on the Facebook side.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID) (Account, error) {
	stored, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return Account{}, err
	}

	token, err := tokencrypto.Decrypt(stored.EncryptedToken, s.tokenKey)
	if err != nil {
		return Account{}, apperr.Internal(fmt.Sprintf("decrypt access token failed: %v", err)).WithOp(opRefresh)
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		return Account{}, graph.MapError(opRefresh, err)
	}
	perms, err := s.api.Permissions(ctx, token)
	if err != nil {
		return Account{}, graph.MapError(opRefresh, err)
	}

	var pictureURL *string
	if user.PictureURL != "" {
		pictureURL = &user.PictureURL
	}

	account, err := s.repo.Upsert(ctx, repository.UpsertParams{
		UserID:         userID,
		GraphUserID:    user.ID,
		DisplayName:    user.Name,
		PictureURL:     pictureURL,
		EncryptedToken: stored.EncryptedToken,
		GrantedRead:    perms.Granted(graph.ScopeRead),
		GrantedWrite:   perms.Granted(graph.ScopeWrite),
	})
	if err != nil {
		return Account{}, err
	}

	return toAccount(account), nil
}

// Revoke removes the user's linked account.
func (s *Service) Revoke(ctx context.Context, userID uuid.UUID, source string) error {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}

	s.log.Info("facebook account revoked", "userId", userID, "source", source)
	s.bus.Publish(ctx, events.AccountRevoked{
		BaseEvent:   events.NewBaseEvent(),
		AccountID:   account.ID,
		UserID:      userID,
		GraphUserID: account.GraphUserID,
		Source:      source,
	})

	return nil
}

// RevokeByGraphUserID removes every link to a Facebook profile. Called
// from the deauthorization webhook, which only knows the Graph-side ID.
// Returns the user IDs whose links were removed.
func (s *Service) RevokeByGraphUserID(ctx context.Context, graphUserID string) ([]uuid.UUID, error) {
	accounts, err := s.repo.ListByGraphUserID(ctx, graphUserID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(accounts))
	for _, account := range accounts {
		if err := s.repo.Delete(ctx, account.UserID); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				continue
			}
			return userIDs, err
		}
		userIDs = append(userIDs, account.UserID)

		s.bus.Publish(ctx, events.AccountRevoked{
			BaseEvent:   events.NewBaseEvent(),
			AccountID:   account.ID,
			UserID:      account.UserID,
			GraphUserID: account.GraphUserID,
			Source:      RevokeSourceCallback,
		})
	}

	if len(userIDs) > 0 {
		s.log.Info("facebook accounts revoked via callback", "count", len(userIDs))
	}
	return userIDs, nil
}

// AccessToken returns the decrypted Graph token of the user's linked
// account. Other modules use this to call the Graph API on the user's
// behalf.
func (s *Service) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	token, err := tokencrypto.Decrypt(account.EncryptedToken, s.tokenKey)
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("decrypt access token failed: %v", err)).WithOp(opAccessToken)
	}
	return token, nil
}

// RequireScopes returns the decrypted token only when the linked
// account has granted every scope in the comma-separated list.
func (s *Service) RequireScopes(ctx context.Context, userID uuid.UUID, scopes string) (string, error) {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	switch scopes {
	case graph.ScopeWrite:
		if !account.GrantedWrite {
			return "", apperr.Forbidden("publishing permission (publish_actions) was not granted").WithOp(opAccessToken)
		}
	case graph.ScopeRead:
		if !account.GrantedRead {
			return "", apperr.Forbidden("photo access (user_photos) was not granted").WithOp(opAccessToken)
		}
	default:
		return "", apperr.Internal(fmt.Sprintf("unknown scope set %q", scopes)).WithOp(opAccessToken)
	}

	token, err := tokencrypto.Decrypt(account.EncryptedToken, s.tokenKey)
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("decrypt access token failed: %v", err)).WithOp(opAccessToken)
	}
	return token, nil
}

func toAccount(a repository.LinkedAccount) Account {
	return Account{
		ID:           a.ID,
		GraphUserID:  a.GraphUserID,
		DisplayName:  a.DisplayName,
		PictureURL:   a.PictureURL,
		GrantedRead:  a.GrantedRead,
		GrantedWrite: a.GrantedWrite,
		LinkedAt:     a.LinkedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
