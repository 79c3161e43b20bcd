package handler

import (
	"errors"
	"net/http"
	"time"

	"photobridge_backend/internal/auth/service"
	"photobridge_backend/internal/auth/transport"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/httpkit"
	"photobridge_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc       *service.Service
	cfg       config.CookieConfig
	validator *validator.Validator
}

func New(svc *service.Service, cfg config.CookieConfig, v *validator.Validator) *Handler {
	return &Handler{svc: svc, cfg: cfg, validator: v}
}

// RegisterRoutes mounts the public authentication endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sign-up", h.SignUp)
	rg.POST("/sign-in", h.SignIn)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/sign-out", h.SignOut)
	rg.POST("/forgot-password", h.ForgotPassword)
	rg.POST("/reset-password", h.ResetPassword)
	rg.POST("/verify-email", h.VerifyEmail)
	rg.POST("/resend-verification", h.ResendVerification)
}

// SignUp handles POST /api/v1/auth/sign-up.
func (h *Handler) SignUp(c *gin.Context) {
	var req transport.SignUpRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.SignUp(c.Request.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			httpkit.Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"message": "account created, check your inbox to verify your email"})
}

// SignIn handles POST /api/v1/auth/sign-in.
func (h *Handler) SignIn(c *gin.Context) {
	var req transport.SignInRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	accessToken, refreshToken, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpkit.Error(c, http.StatusUnauthorized, err.Error(), nil)
		return
	}

	h.setRefreshCookie(c, refreshToken)
	httpkit.OK(c, transport.AuthResponse{AccessToken: accessToken})
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token travels
// only in the HTTP-only cookie.
func (h *Handler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(h.cfg.GetRefreshCookieName())
	if err != nil || refreshToken == "" {
		httpkit.Error(c, http.StatusUnauthorized, service.ErrTokenInvalid.Error(), nil)
		return
	}

	accessToken, newRefreshToken, err := h.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.clearRefreshCookie(c)
		httpkit.Error(c, http.StatusUnauthorized, err.Error(), nil)
		return
	}

	h.setRefreshCookie(c, newRefreshToken)
	httpkit.OK(c, transport.AuthResponse{AccessToken: accessToken})
}

// SignOut handles POST /api/v1/auth/sign-out.
func (h *Handler) SignOut(c *gin.Context) {
	if refreshToken, err := c.Cookie(h.cfg.GetRefreshCookieName()); err == nil && refreshToken != "" {
		if err := h.svc.SignOut(c.Request.Context(), refreshToken); err != nil {
			httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	h.clearRefreshCookie(c)

	httpkit.OK(c, gin.H{"message": "signed out"})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req transport.ForgotPasswordRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httpkit.OK(c, gin.H{"message": "if the account exists, a reset link will be sent"})
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req transport.ResetPasswordRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpkit.OK(c, gin.H{"message": "password reset"})
}

// VerifyEmail handles POST /api/v1/auth/verify-email.
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req transport.VerifyEmailRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpkit.OK(c, gin.H{"message": "email verified"})
}

// ResendVerification handles POST /api/v1/auth/resend-verification.
func (h *Handler) ResendVerification(c *gin.Context) {
	var req transport.ResendVerificationRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ResendVerification(c.Request.Context(), req.Email); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpkit.OK(c, gin.H{"message": "if the account needs verification, a new link will be sent"})
}

// GetMe handles GET /api/v1/users/me.
func (h *Handler) GetMe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	profile, err := h.svc.GetMe(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.Error(c, http.StatusNotFound, "user not found", nil)
		return
	}

	httpkit.OK(c, toProfileResponse(profile))
}

// UpdateMe handles PATCH /api/v1/users/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.UpdateProfileRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	profile, err := h.svc.UpdateEmail(c.Request.Context(), identity.UserID(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			httpkit.Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpkit.OK(c, toProfileResponse(profile))
}

// ChangePassword handles POST /api/v1/users/me/password.
func (h *Handler) ChangePassword(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ChangePasswordRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), identity.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpkit.OK(c, gin.H{"message": "password updated"})
}

// ListUsers handles GET /api/v1/admin/users.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	result := make([]transport.UserSummary, len(users))
	for i, u := range users {
		result[i] = transport.UserSummary{ID: u.ID.String(), Email: u.Email, Roles: u.Roles}
	}

	httpkit.OK(c, result)
}

// SetUserRoles handles PUT /api/v1/admin/users/:id/roles.
func (h *Handler) SetUserRoles(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.RoleUpdateRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.SetUserRoles(c.Request.Context(), userID, req.Roles); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpkit.OK(c, transport.RoleUpdateResponse{UserID: userID.String(), Roles: req.Roles})
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func toProfileResponse(profile service.Profile) transport.ProfileResponse {
	return transport.ProfileResponse{
		ID:            profile.ID.String(),
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		Roles:         profile.Roles,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.UpdatedAt,
	}
}

func (h *Handler) setRefreshCookie(c *gin.Context, value string) {
	maxAge := int(h.cfg.GetRefreshTokenTTL() / time.Second)
	c.SetSameSite(h.cfg.GetRefreshCookieSameSite())
	c.SetCookie(
		h.cfg.GetRefreshCookieName(),
		value,
		maxAge,
		h.cfg.GetRefreshCookiePath(),
		h.cfg.GetRefreshCookieDomain(),
		h.cfg.GetRefreshCookieSecure(),
		true,
	)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(h.cfg.GetRefreshCookieSameSite())
	c.SetCookie(
		h.cfg.GetRefreshCookieName(),
		"",
		-1,
		h.cfg.GetRefreshCookiePath(),
		h.cfg.GetRefreshCookieDomain(),
		h.cfg.GetRefreshCookieSecure(),
		true,
	)
}
