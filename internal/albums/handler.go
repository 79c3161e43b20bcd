package albums

import (
	"net/http"

	"photobridge_backend/platform/httpkit"
	"photobridge_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the album endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validator
}

func NewHandler(svc *Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// List handles GET /api/v1/albums.
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	list, err := h.svc.List(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, AlbumsResponse{Data: list})
}

// Get handles GET /api/v1/albums/:id.
func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), identity.UserID(), c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, detail)
}

// Create handles POST /api/v1/albums.
func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req CreateAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	id, err := h.svc.Create(c.Request.Context(), identity.UserID(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, CreatedAlbumResponse{ID: id})
}
