package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"photobridge_backend/internal/auth/password"
	"photobridge_backend/internal/auth/repository"
	"photobridge_backend/internal/auth/token"
	"photobridge_backend/internal/events"
	"photobridge_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type userTokenRow struct {
	userID    uuid.UUID
	tokenType string
	expiresAt time.Time
	used      bool
}

type refreshTokenRow struct {
	userID    uuid.UUID
	expiresAt time.Time
	revoked   bool
}

type fakeRepo struct {
	users         map[uuid.UUID]repository.User
	byEmail       map[string]uuid.UUID
	roles         map[uuid.UUID][]string
	userTokens    map[string]*userTokenRow
	refreshTokens map[string]*refreshTokenRow
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[uuid.UUID]repository.User),
		byEmail:       make(map[string]uuid.UUID),
		roles:         make(map[uuid.UUID][]string),
		userTokens:    make(map[string]*userTokenRow),
		refreshTokens: make(map[string]*refreshTokenRow),
	}
}

func (r *fakeRepo) CreateUser(_ context.Context, email, passwordHash string) (repository.User, error) {
	if _, ok := r.byEmail[email]; ok {
		return repository.User{}, repository.ErrEmailTaken
	}
	user := repository.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.users[user.ID] = user
	r.byEmail[email] = user.ID
	return user, nil
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (repository.User, error) {
	id, ok := r.byEmail[email]
	if !ok {
		return repository.User{}, repository.ErrNotFound
	}
	return r.users[id], nil
}

func (r *fakeRepo) GetUserByID(_ context.Context, userID uuid.UUID) (repository.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return repository.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (r *fakeRepo) MarkEmailVerified(_ context.Context, userID uuid.UUID) error {
	user := r.users[userID]
	user.EmailVerified = true
	r.users[userID] = user
	return nil
}

func (r *fakeRepo) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	user := r.users[userID]
	user.PasswordHash = passwordHash
	r.users[userID] = user
	return nil
}

func (r *fakeRepo) UpdateUserEmail(_ context.Context, userID uuid.UUID, email string) (repository.User, error) {
	if existing, ok := r.byEmail[email]; ok && existing != userID {
		return repository.User{}, repository.ErrEmailTaken
	}
	user, ok := r.users[userID]
	if !ok {
		return repository.User{}, repository.ErrNotFound
	}
	delete(r.byEmail, user.Email)
	user.Email = email
	user.EmailVerified = false
	r.users[userID] = user
	r.byEmail[email] = userID
	return user, nil
}

func (r *fakeRepo) ListUsers(_ context.Context) ([]repository.UserWithRoles, error) {
	out := make([]repository.UserWithRoles, 0, len(r.users))
	for id, user := range r.users {
		out = append(out, repository.UserWithRoles{ID: id, Email: user.Email, Roles: r.roles[id]})
	}
	return out, nil
}

func (r *fakeRepo) CreateUserToken(_ context.Context, userID uuid.UUID, tokenHash, tokenType string, expiresAt time.Time) error {
	r.userTokens[tokenHash] = &userTokenRow{userID: userID, tokenType: tokenType, expiresAt: expiresAt}
	return nil
}

func (r *fakeRepo) GetUserToken(_ context.Context, tokenHash, tokenType string) (uuid.UUID, time.Time, error) {
	row, ok := r.userTokens[tokenHash]
	if !ok || row.used || row.tokenType != tokenType {
		return uuid.UUID{}, time.Time{}, repository.ErrNotFound
	}
	return row.userID, row.expiresAt, nil
}

func (r *fakeRepo) UseUserToken(_ context.Context, tokenHash, tokenType string) error {
	if row, ok := r.userTokens[tokenHash]; ok && row.tokenType == tokenType {
		row.used = true
	}
	return nil
}

func (r *fakeRepo) CreateRefreshToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.refreshTokens[tokenHash] = &refreshTokenRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *fakeRepo) GetRefreshToken(_ context.Context, tokenHash string) (uuid.UUID, time.Time, error) {
	row, ok := r.refreshTokens[tokenHash]
	if !ok || row.revoked {
		return uuid.UUID{}, time.Time{}, repository.ErrNotFound
	}
	return row.userID, row.expiresAt, nil
}

func (r *fakeRepo) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	if row, ok := r.refreshTokens[tokenHash]; ok {
		row.revoked = true
	}
	return nil
}

func (r *fakeRepo) RevokeAllRefreshTokens(_ context.Context, userID uuid.UUID) error {
	for _, row := range r.refreshTokens {
		if row.userID == userID {
			row.revoked = true
		}
	}
	return nil
}

func (r *fakeRepo) GetUserRoles(_ context.Context, userID uuid.UUID) ([]string, error) {
	return r.roles[userID], nil
}

func (r *fakeRepo) SetUserRoles(_ context.Context, userID uuid.UUID, roles []string) error {
	if len(roles) == 0 {
		return repository.ErrInvalidRole
	}
	r.roles[userID] = roles
	return nil
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

type testAuthConfig struct{}

func (testAuthConfig) GetJWTAccessSecret() string        { return "test-secret" }
func (testAuthConfig) GetAccessTokenTTL() time.Duration  { return 15 * time.Minute }
func (testAuthConfig) GetRefreshTokenTTL() time.Duration { return 720 * time.Hour }
func (testAuthConfig) GetVerifyTokenTTL() time.Duration  { return 24 * time.Hour }
func (testAuthConfig) GetResetTokenTTL() time.Duration   { return time.Hour }

func newTestService() (*Service, *fakeRepo, *fakeBus) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	return New(repo, testAuthConfig{}, bus, logger.New("development")), repo, bus
}

// signUpVerified registers and verifies an account, returning its ID.
func signUpVerified(t *testing.T, svc *Service, bus *fakeBus, email, pass string) uuid.UUID {
	t.Helper()
	if err := svc.SignUp(context.Background(), email, pass); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	signedUp, ok := bus.published[len(bus.published)-1].(events.UserSignedUp)
	if !ok {
		t.Fatalf("expected UserSignedUp, got %T", bus.published[len(bus.published)-1])
	}
	if err := svc.VerifyEmail(context.Background(), signedUp.VerifyToken); err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	return signedUp.UserID
}

func TestSignUpStoresHashedCredentialsAndPublishesEvent(t *testing.T) {
	svc, repo, bus := newTestService()

	if err := svc.SignUp(context.Background(), "ann@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	user, err := repo.GetUserByEmail(context.Background(), "ann@example.com")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plaintext")
	}
	if err := password.Compare(user.PasswordHash, "s3cret-pass"); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if roles := repo.roles[user.ID]; len(roles) != 1 || roles[0] != DefaultRole {
		t.Fatalf("expected default role, got %v", roles)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected one event, got %d", len(bus.published))
	}
	signedUp, ok := bus.published[0].(events.UserSignedUp)
	if !ok {
		t.Fatalf("expected UserSignedUp, got %T", bus.published[0])
	}
	if signedUp.VerifyToken == "" {
		t.Fatal("expected a verify token in the event")
	}
	// Only the hash of the token may be at rest.
	if _, ok := repo.userTokens[signedUp.VerifyToken]; ok {
		t.Fatal("verify token stored in plaintext")
	}
	if _, ok := repo.userTokens[token.HashSHA256(signedUp.VerifyToken)]; !ok {
		t.Fatal("expected hashed verify token to be stored")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()

	if err := svc.SignUp(context.Background(), "ann@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("first SignUp returned error: %v", err)
	}
	if err := svc.SignUp(context.Background(), "ann@example.com", "other-pass"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInIssuesAccessJWTAndRefreshToken(t *testing.T) {
	svc, repo, bus := newTestService()
	userID := signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")

	access, refresh, err := svc.SignIn(context.Background(), "ann@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("expected both tokens")
	}

	parsed, err := jwt.Parse(access, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("access token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != userID.String() {
		t.Fatalf("unexpected sub claim: %v", claims["sub"])
	}
	if claims["type"] != "access" {
		t.Fatalf("unexpected type claim: %v", claims["type"])
	}

	row, ok := repo.refreshTokens[token.HashSHA256(refresh)]
	if !ok {
		t.Fatal("expected hashed refresh token to be stored")
	}
	if row.userID != userID {
		t.Fatal("refresh token bound to wrong user")
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	svc, _, bus := newTestService()
	signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")

	if _, _, err := svc.SignIn(context.Background(), "ann@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.SignIn(context.Background(), "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestSignInRequiresVerifiedEmail(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.SignUp(context.Background(), "ann@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	if _, _, err := svc.SignIn(context.Background(), "ann@example.com", "s3cret-pass"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, bus := newTestService()
	signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")
	_, refresh, err := svc.SignIn(context.Background(), "ann@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}

	_, newRefresh, err := svc.Refresh(context.Background(), refresh)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if newRefresh == refresh {
		t.Fatal("expected a rotated refresh token")
	}

	// The old token is revoked and cannot be replayed.
	if _, _, err := svc.Refresh(context.Background(), refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on replay, got %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, repo, _ := newTestService()
	userID := uuid.New()
	repo.users[userID] = repository.User{ID: userID, Email: "old@example.com", EmailVerified: true}
	repo.refreshTokens[token.HashSHA256("stale-token")] = &refreshTokenRow{
		userID:    userID,
		expiresAt: time.Now().Add(-time.Hour),
	}

	if _, _, err := svc.Refresh(context.Background(), "stale-token"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if !repo.refreshTokens[token.HashSHA256("stale-token")].revoked {
		t.Fatal("expected expired token to be revoked")
	}
}

func TestForgotPasswordIsSilentForUnknownEmail(t *testing.T) {
	svc, _, bus := newTestService()

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	if len(bus.published) != 0 {
		t.Fatal("unknown email must not produce an event")
	}
}

func TestResetPasswordFlow(t *testing.T) {
	svc, repo, bus := newTestService()
	userID := signUpVerified(t, svc, bus, "ann@example.com", "old-password")

	if err := svc.ForgotPassword(context.Background(), "ann@example.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	reset, ok := bus.published[len(bus.published)-1].(events.PasswordResetRequested)
	if !ok {
		t.Fatalf("expected PasswordResetRequested, got %T", bus.published[len(bus.published)-1])
	}

	if err := svc.ResetPassword(context.Background(), reset.ResetToken, "new-password"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	user := repo.users[userID]
	if err := password.Compare(user.PasswordHash, "new-password"); err != nil {
		t.Fatalf("password not updated: %v", err)
	}

	// The reset token is single use.
	if err := svc.ResetPassword(context.Background(), reset.ResetToken, "another"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on reuse, got %v", err)
	}
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	svc, repo, bus := newTestService()
	signUpVerified(t, svc, bus, "ann@example.com", "old-password")
	_, refresh, err := svc.SignIn(context.Background(), "ann@example.com", "old-password")
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}

	if err := svc.ForgotPassword(context.Background(), "ann@example.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	reset := bus.published[len(bus.published)-1].(events.PasswordResetRequested)
	if err := svc.ResetPassword(context.Background(), reset.ResetToken, "new-password"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	if !repo.refreshTokens[token.HashSHA256(refresh)].revoked {
		t.Fatal("expected existing sessions to be revoked after reset")
	}
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	svc, repo, bus := newTestService()
	if err := svc.SignUp(context.Background(), "ann@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	signedUp := bus.published[0].(events.UserSignedUp)

	if err := svc.VerifyEmail(context.Background(), signedUp.VerifyToken); err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	if !repo.users[signedUp.UserID].EmailVerified {
		t.Fatal("expected user to be verified")
	}

	if err := svc.VerifyEmail(context.Background(), signedUp.VerifyToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on reuse, got %v", err)
	}
}

func TestResendVerificationSkipsVerifiedAccounts(t *testing.T) {
	svc, _, bus := newTestService()
	signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")
	before := len(bus.published)

	if err := svc.ResendVerification(context.Background(), "ann@example.com"); err != nil {
		t.Fatalf("ResendVerification returned error: %v", err)
	}
	if len(bus.published) != before {
		t.Fatal("verified account must not get another verification event")
	}
}

func TestResendVerificationIssuesFreshToken(t *testing.T) {
	svc, _, bus := newTestService()
	if err := svc.SignUp(context.Background(), "ann@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	if err := svc.ResendVerification(context.Background(), "ann@example.com"); err != nil {
		t.Fatalf("ResendVerification returned error: %v", err)
	}
	requested, ok := bus.published[len(bus.published)-1].(events.EmailVerificationRequested)
	if !ok {
		t.Fatalf("expected EmailVerificationRequested, got %T", bus.published[len(bus.published)-1])
	}
	if err := svc.VerifyEmail(context.Background(), requested.VerifyToken); err != nil {
		t.Fatalf("fresh token should verify: %v", err)
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	svc, _, bus := newTestService()
	userID := signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")

	err := svc.ChangePassword(context.Background(), userID, "wrong", "new-password")
	if !errors.Is(err, ErrInvalidCurrentPassword) {
		t.Fatalf("expected ErrInvalidCurrentPassword, got %v", err)
	}
}

func TestUpdateEmailStartsNewVerificationRound(t *testing.T) {
	svc, _, bus := newTestService()
	userID := signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")

	profile, err := svc.UpdateEmail(context.Background(), userID, "new@example.com")
	if err != nil {
		t.Fatalf("UpdateEmail returned error: %v", err)
	}
	if profile.Email != "new@example.com" || profile.EmailVerified {
		t.Fatalf("expected unverified new address, got %+v", profile)
	}

	requested, ok := bus.published[len(bus.published)-1].(events.EmailVerificationRequested)
	if !ok {
		t.Fatalf("expected EmailVerificationRequested, got %T", bus.published[len(bus.published)-1])
	}
	if requested.Email != "new@example.com" {
		t.Fatalf("event carries wrong address: %q", requested.Email)
	}
}

func TestGetMeIncludesRoles(t *testing.T) {
	svc, _, bus := newTestService()
	userID := signUpVerified(t, svc, bus, "ann@example.com", "s3cret-pass")

	profile, err := svc.GetMe(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if profile.Email != "ann@example.com" || !profile.EmailVerified {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if len(profile.Roles) != 1 || profile.Roles[0] != DefaultRole {
		t.Fatalf("expected default role, got %v", profile.Roles)
	}
}
