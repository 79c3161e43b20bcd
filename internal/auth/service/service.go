package service

import (
	"context"
	"errors"
	"time"

	"photobridge_backend/internal/auth/password"
	"photobridge_backend/internal/auth/repository"
	"photobridge_backend/internal/auth/token"
	"photobridge_backend/internal/events"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrTokenExpired = errors.New("token expired")
var ErrTokenInvalid = errors.New("token invalid")
var ErrEmailNotVerified = errors.New("email not verified")
var ErrEmailTaken = errors.New("email already in use")
var ErrInvalidCurrentPassword = errors.New("current password is incorrect")

const accessTokenType = "access"

// DefaultRole is assigned at sign-up. Admins are promoted through the
// role endpoint by an existing admin.
const DefaultRole = "user"

// Repository is the persistence the auth service needs. Satisfied by
// *repository.Repository.
type Repository interface {
	CreateUser(ctx context.Context, email, passwordHash string) (repository.User, error)
	GetUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (repository.User, error)
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	UpdateUserEmail(ctx context.Context, userID uuid.UUID, email string) (repository.User, error)
	ListUsers(ctx context.Context) ([]repository.UserWithRoles, error)

	CreateUserToken(ctx context.Context, userID uuid.UUID, tokenHash string, tokenType string, expiresAt time.Time) error
	GetUserToken(ctx context.Context, tokenHash string, tokenType string) (uuid.UUID, time.Time, error)
	UseUserToken(ctx context.Context, tokenHash string, tokenType string) error

	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error

	GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	SetUserRoles(ctx context.Context, userID uuid.UUID, roles []string) error
}

// Profile is the user's own account view.
type Profile struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	Roles         []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Service struct {
	repo     Repository
	cfg      config.AuthServiceConfig
	eventBus events.Bus
	log      *logger.Logger
}

func New(repo Repository, cfg config.AuthServiceConfig, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, cfg: cfg, eventBus: eventBus, log: log}
}

// SignUp registers a new account and starts email verification. The
// verification email itself is sent by the notification module reacting
// to the published event.
func (s *Service) SignUp(ctx context.Context, email, plainPassword string) error {
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return err
	}

	user, err := s.repo.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return ErrEmailTaken
		}
		return err
	}

	if err := s.repo.SetUserRoles(ctx, user.ID, []string{DefaultRole}); err != nil {
		return err
	}

	verifyToken, err := s.createUserToken(ctx, user.ID, repository.TokenTypeEmailVerify, s.cfg.GetVerifyTokenTTL())
	if err != nil {
		return err
	}

	s.log.AuthEvent("sign_up", user.Email, true, "")
	s.eventBus.Publish(ctx, events.UserSignedUp{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      user.ID,
		Email:       user.Email,
		VerifyToken: verifyToken,
	})

	return nil
}

func (s *Service) SignIn(ctx context.Context, email, plainPassword string) (string, string, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		s.log.AuthEvent("sign_in", email, false, "unknown email")
		return "", "", ErrInvalidCredentials
	}

	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		s.log.AuthEvent("sign_in", email, false, "wrong password")
		return "", "", ErrInvalidCredentials
	}

	if !user.EmailVerified {
		s.log.AuthEvent("sign_in", email, false, "email not verified")
		return "", "", ErrEmailNotVerified
	}

	s.log.AuthEvent("sign_in", email, true, "")
	return s.issueTokens(ctx, user.ID)
}

// Refresh rotates the refresh token: the presented token is revoked and
// a new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	hash := token.HashSHA256(refreshToken)
	userID, expiresAt, err := s.repo.GetRefreshToken(ctx, hash)
	if err != nil {
		return "", "", ErrTokenInvalid
	}

	if time.Now().After(expiresAt) {
		_ = s.repo.RevokeRefreshToken(ctx, hash)
		return "", "", ErrTokenExpired
	}

	_ = s.repo.RevokeRefreshToken(ctx, hash)
	return s.issueTokens(ctx, userID)
}

func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	hash := token.HashSHA256(refreshToken)
	return s.repo.RevokeRefreshToken(ctx, hash)
}

// ForgotPassword starts a reset round. It succeeds silently for unknown
// addresses so the endpoint cannot be used to probe accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil
	}

	resetToken, err := s.createUserToken(ctx, user.ID, repository.TokenTypePasswordReset, s.cfg.GetResetTokenTTL())
	if err != nil {
		return err
	}

	s.eventBus.Publish(ctx, events.PasswordResetRequested{
		BaseEvent:  events.NewBaseEvent(),
		UserID:     user.ID,
		Email:      user.Email,
		ResetToken: resetToken,
	})

	return nil
}

func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	hash := token.HashSHA256(rawToken)
	userID, expiresAt, err := s.repo.GetUserToken(ctx, hash, repository.TokenTypePasswordReset)
	if err != nil {
		return ErrTokenInvalid
	}

	if time.Now().After(expiresAt) {
		return ErrTokenExpired
	}

	passwordHash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return err
	}

	_ = s.repo.UseUserToken(ctx, hash, repository.TokenTypePasswordReset)
	_ = s.repo.RevokeAllRefreshTokens(ctx, userID)

	s.log.Info("password reset completed", "userId", userID)
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	hash := token.HashSHA256(rawToken)
	userID, expiresAt, err := s.repo.GetUserToken(ctx, hash, repository.TokenTypeEmailVerify)
	if err != nil {
		return ErrTokenInvalid
	}

	if time.Now().After(expiresAt) {
		return ErrTokenExpired
	}

	if err := s.repo.MarkEmailVerified(ctx, userID); err != nil {
		return err
	}

	_ = s.repo.UseUserToken(ctx, hash, repository.TokenTypeEmailVerify)
	s.log.Info("email verified", "userId", userID)
	return nil
}

// ResendVerification issues a fresh verification token. Like
// ForgotPassword it stays silent for unknown or already verified
// addresses.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil
	}
	if user.EmailVerified {
		return nil
	}

	verifyToken, err := s.createUserToken(ctx, user.ID, repository.TokenTypeEmailVerify, s.cfg.GetVerifyTokenTTL())
	if err != nil {
		return err
	}

	s.eventBus.Publish(ctx, events.EmailVerificationRequested{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      user.ID,
		Email:       user.Email,
		VerifyToken: verifyToken,
	})

	return nil
}

func (s *Service) GetMe(ctx context.Context, userID uuid.UUID) (Profile, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	roles, err := s.repo.GetUserRoles(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	return Profile{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Roles:         roles,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}, nil
}

// UpdateEmail changes the account address. The new address starts out
// unverified and gets its own verification round.
func (s *Service) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (Profile, error) {
	current, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if current.Email == email {
		return s.GetMe(ctx, userID)
	}

	user, err := s.repo.UpdateUserEmail(ctx, userID, email)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return Profile{}, ErrEmailTaken
		}
		return Profile{}, err
	}

	verifyToken, err := s.createUserToken(ctx, user.ID, repository.TokenTypeEmailVerify, s.cfg.GetVerifyTokenTTL())
	if err != nil {
		return Profile{}, err
	}

	s.eventBus.Publish(ctx, events.EmailVerificationRequested{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      user.ID,
		Email:       user.Email,
		VerifyToken: verifyToken,
	})

	return s.GetMe(ctx, userID)
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := password.Compare(user.PasswordHash, currentPassword); err != nil {
		return ErrInvalidCurrentPassword
	}

	passwordHash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return err
	}

	// Other sessions die with the old password.
	_ = s.repo.RevokeAllRefreshTokens(ctx, userID)
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]repository.UserWithRoles, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) SetUserRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	return s.repo.SetUserRoles(ctx, userID, roles)
}

func (s *Service) issueTokens(ctx context.Context, userID uuid.UUID) (string, string, error) {
	roles, err := s.repo.GetUserRoles(ctx, userID)
	if err != nil {
		return "", "", err
	}

	accessToken, err := s.signJWT(userID, roles, s.cfg.GetAccessTokenTTL(), s.cfg.GetJWTAccessSecret())
	if err != nil {
		return "", "", err
	}

	refreshToken, err := token.GenerateRandomToken(48)
	if err != nil {
		return "", "", err
	}

	hash := token.HashSHA256(refreshToken)
	expiresAt := time.Now().Add(s.cfg.GetRefreshTokenTTL())
	if err := s.repo.CreateRefreshToken(ctx, userID, hash, expiresAt); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (s *Service) signJWT(userID uuid.UUID, roles []string, ttl time.Duration, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"type":  accessTokenType,
		"roles": roles,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenObj.SignedString([]byte(secret))
}

// createUserToken stores the hash of a fresh single-use token and
// returns the plaintext for delivery to the user.
func (s *Service) createUserToken(ctx context.Context, userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	raw, err := token.GenerateRandomToken(32)
	if err != nil {
		return "", err
	}

	hash := token.HashSHA256(raw)
	expiresAt := time.Now().Add(ttl)
	if err := s.repo.CreateUserToken(ctx, userID, hash, tokenType, expiresAt); err != nil {
		return "", err
	}

	return raw, nil
}
