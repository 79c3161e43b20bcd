package service

import (
	"context"
	"testing"

	"photobridge_backend/internal/accounts/repository"
	"photobridge_backend/internal/events"
	"photobridge_backend/internal/graph"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	accounts map[uuid.UUID]repository.LinkedAccount
	upserts  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[uuid.UUID]repository.LinkedAccount)}
}

func (r *fakeRepo) Upsert(_ context.Context, p repository.UpsertParams) (repository.LinkedAccount, error) {
	r.upserts++
	account := repository.LinkedAccount{
		ID:             uuid.New(),
		UserID:         p.UserID,
		GraphUserID:    p.GraphUserID,
		DisplayName:    p.DisplayName,
		PictureURL:     p.PictureURL,
		EncryptedToken: p.EncryptedToken,
		GrantedRead:    p.GrantedRead,
		GrantedWrite:   p.GrantedWrite,
	}
	if existing, ok := r.accounts[p.UserID]; ok {
		account.ID = existing.ID
	}
	r.accounts[p.UserID] = account
	return account, nil
}

func (r *fakeRepo) GetByUserID(_ context.Context, userID uuid.UUID) (repository.LinkedAccount, error) {
	account, ok := r.accounts[userID]
	if !ok {
		return repository.LinkedAccount{}, apperr.NotFound("no facebook account linked")
	}
	return account, nil
}

func (r *fakeRepo) ListByGraphUserID(_ context.Context, graphUserID string) ([]repository.LinkedAccount, error) {
	var out []repository.LinkedAccount
	for _, account := range r.accounts {
		if account.GraphUserID == graphUserID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, userID uuid.UUID) error {
	if _, ok := r.accounts[userID]; !ok {
		return apperr.NotFound("no facebook account linked")
	}
	delete(r.accounts, userID)
	return nil
}

type fakeGraph struct {
	user     *graph.User
	perms    graph.PermissionSet
	meErr    error
	permsErr error
}

func (g *fakeGraph) Me(context.Context, string) (*graph.User, error) {
	if g.meErr != nil {
		return nil, g.meErr
	}
	return g.user, nil
}

func (g *fakeGraph) Permissions(context.Context, string) (graph.PermissionSet, error) {
	if g.permsErr != nil {
		return nil, g.permsErr
	}
	return g.perms, nil
}

type fakeBus struct {
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, e events.Event) { b.published = append(b.published, e) }
func (b *fakeBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *fakeBus) Subscribe(string, events.Handler) {}

type testAccountsConfig struct{}

func (testAccountsConfig) GetAccountTokenKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func newTestService(repo Repository, api GraphAPI, bus events.Bus) *Service {
	return New(repo, api, testAccountsConfig{}, bus, logger.New("development"))
}

func TestLink_StoresEncryptedTokenAndPublishesEvent(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	api := &fakeGraph{
		user:  &graph.User{ID: "fb-1", Name: "Jim", PictureURL: "https://cdn/p.jpg"},
		perms: graph.PermissionSet{"user_photos": "granted", "publish_actions": "granted"},
	}
	svc := newTestService(repo, api, bus)
	userID := uuid.New()

	account, err := svc.Link(context.Background(), userID, "raw-access-token")
	if err != nil {
		t.Fatalf("Link returned error: %v", err)
	}
	if account.GraphUserID != "fb-1" || account.DisplayName != "Jim" {
		t.Fatalf("unexpected account: %+v", account)
	}
	if !account.GrantedRead || !account.GrantedWrite {
		t.Fatalf("expected both scopes granted, got %+v", account)
	}

	stored := repo.accounts[userID]
	if stored.EncryptedToken == "raw-access-token" {
		t.Fatal("token must be stored encrypted")
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	linked, ok := bus.published[0].(events.AccountLinked)
	if !ok {
		t.Fatalf("expected AccountLinked event, got %T", bus.published[0])
	}
	if linked.UserID != userID || !linked.GrantedWrite {
		t.Fatalf("unexpected event payload: %+v", linked)
	}
}

func TestLink_RejectsTokenWithoutPhotoAccess(t *testing.T) {
	repo := newFakeRepo()
	api := &fakeGraph{
		user:  &graph.User{ID: "fb-1", Name: "Jim"},
		perms: graph.PermissionSet{"email": "granted"},
	}
	svc := newTestService(repo, api, &fakeBus{})

	_, err := svc.Link(context.Background(), uuid.New(), "tok")
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if repo.upserts != 0 {
		t.Fatal("rejected link must not be persisted")
	}
}

func TestLink_MapsExpiredTokenToUnauthorized(t *testing.T) {
	api := &fakeGraph{meErr: &graph.Error{Code: 190, Type: "OAuthException", Message: "expired"}}
	svc := newTestService(newFakeRepo(), api, &fakeBus{})

	_, err := svc.Link(context.Background(), uuid.New(), "expired")
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestAccessToken_RoundTrips(t *testing.T) {
	repo := newFakeRepo()
	api := &fakeGraph{
		user:  &graph.User{ID: "fb-1", Name: "Jim"},
		perms: graph.PermissionSet{"user_photos": "granted"},
	}
	svc := newTestService(repo, api, &fakeBus{})
	userID := uuid.New()

	if _, err := svc.Link(context.Background(), userID, "raw-access-token"); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}

	token, err := svc.AccessToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("AccessToken returned error: %v", err)
	}
	if token != "raw-access-token" {
		t.Fatalf("expected decrypted token to round trip, got %q", token)
	}
}

func TestAccessToken_NotLinked(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeGraph{}, &fakeBus{})

	_, err := svc.AccessToken(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequireScopes_DeniesMissingWriteScope(t *testing.T) {
	repo := newFakeRepo()
	api := &fakeGraph{
		user:  &graph.User{ID: "fb-1", Name: "Jim"},
		perms: graph.PermissionSet{"user_photos": "granted"}, // no publish_actions
	}
	svc := newTestService(repo, api, &fakeBus{})
	userID := uuid.New()

	if _, err := svc.Link(context.Background(), userID, "tok"); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}

	if _, err := svc.RequireScopes(context.Background(), userID, graph.ScopeWrite); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for missing write scope, got %v", err)
	}

	token, err := svc.RequireScopes(context.Background(), userID, graph.ScopeRead)
	if err != nil {
		t.Fatalf("RequireScopes(read) returned error: %v", err)
	}
	if token != "tok" {
		t.Fatalf("expected decrypted token, got %q", token)
	}
}

func TestRevoke_PublishesEvent(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	api := &fakeGraph{
		user:  &graph.User{ID: "fb-1", Name: "Jim"},
		perms: graph.PermissionSet{"user_photos": "granted"},
	}
	svc := newTestService(repo, api, bus)
	userID := uuid.New()

	if _, err := svc.Link(context.Background(), userID, "tok"); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}

	if err := svc.Revoke(context.Background(), userID, RevokeSourceUser); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if len(repo.accounts) != 0 {
		t.Fatal("expected the account to be deleted")
	}

	last := bus.published[len(bus.published)-1]
	revoked, ok := last.(events.AccountRevoked)
	if !ok {
		t.Fatalf("expected AccountRevoked event, got %T", last)
	}
	if revoked.Source != RevokeSourceUser || revoked.UserID != userID {
		t.Fatalf("unexpected event payload: %+v", revoked)
	}
}

func TestRevokeByGraphUserID_RemovesAllLinks(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	api := &fakeGraph{
		user:  &graph.User{ID: "fb-shared", Name: "Jim"},
		perms: graph.PermissionSet{"user_photos": "granted"},
	}
	svc := newTestService(repo, api, bus)

	userA := uuid.New()
	userB := uuid.New()
	if _, err := svc.Link(context.Background(), userA, "tok-a"); err != nil {
		t.Fatalf("Link userA: %v", err)
	}
	if _, err := svc.Link(context.Background(), userB, "tok-b"); err != nil {
		t.Fatalf("Link userB: %v", err)
	}

	userIDs, err := svc.RevokeByGraphUserID(context.Background(), "fb-shared")
	if err != nil {
		t.Fatalf("RevokeByGraphUserID returned error: %v", err)
	}
	if len(userIDs) != 2 {
		t.Fatalf("expected 2 revoked users, got %d", len(userIDs))
	}
	if len(repo.accounts) != 0 {
		t.Fatalf("expected all links removed, %d remain", len(repo.accounts))
	}
}
