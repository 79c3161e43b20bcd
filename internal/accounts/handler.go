package accounts

import (
	"net/http"

	"photobridge_backend/internal/accounts/service"
	"photobridge_backend/internal/accounts/transport"
	"photobridge_backend/platform/httpkit"
	"photobridge_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the linked-account endpoints.
type Handler struct {
	svc       *service.Service
	validator *validator.Validator
}

func NewHandler(svc *service.Service, v *validator.Validator) *Handler {
	return &Handler{svc: svc, validator: v}
}

// Link handles POST /api/v1/accounts/facebook.
func (h *Handler) Link(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.LinkAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	account, err := h.svc.Link(c.Request.Context(), identity.UserID(), req.AccessToken)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, account)
}

// Get handles GET /api/v1/accounts/facebook.
func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	account, err := h.svc.Get(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, account)
}

// Refresh handles POST /api/v1/accounts/facebook/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	account, err := h.svc.Refresh(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, account)
}

// Unlink handles DELETE /api/v1/accounts/facebook.
func (h *Handler) Unlink(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.Revoke(c.Request.Context(), identity.UserID(), service.RevokeSourceUser); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"message": "facebook account unlinked"})
}
