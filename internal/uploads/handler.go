package uploads

import (
	"io"
	"net/http"
	"strings"

	"photobridge_backend/internal/uploads/service"
	"photobridge_backend/internal/uploads/transport"
	"photobridge_backend/platform/httpkit"
	"photobridge_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// photoFormField is the multipart field carrying the photo bytes.
const photoFormField = "photo"

// Handler exposes the upload endpoints.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

func NewHandler(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// Intake handles POST /api/v1/uploads (multipart).
func (h *Handler) Intake(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.IntakeRequest
	if err := c.ShouldBind(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid form data", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		httpkit.Error(c, http.StatusBadRequest, "latitude and longitude must be provided together", nil)
		return
	}

	fileHeader, err := c.FormFile(photoFormField)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "a photo file is required in the 'photo' field", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "could not read the submitted photo", nil)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "could not read the submitted photo", nil)
		return
	}

	params := service.IntakeParams{
		FileName:         fileHeader.Filename,
		ContentType:      partContentType(fileHeader.Header.Get("Content-Type"), content),
		Content:          content,
		Title:            req.Title,
		Description:      req.Description,
		NoStory:          boolOrDefault(req.NoStory, true),
		GeoTag:           boolOrDefault(req.GeoTag, true),
		TakenAt:          req.TakenAt,
		TakenAtPrecision: req.TakenAtPrecision,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		IdempotencyKey:   c.GetHeader("Idempotency-Key"),
	}
	if req.AlbumID != "" {
		albumID := req.AlbumID
		params.AlbumID = &albumID
	}

	upload, created, err := h.svc.Intake(c.Request.Context(), identity.UserID(), params)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	if created {
		httpkit.JSON(c, http.StatusCreated, upload)
		return
	}
	httpkit.OK(c, upload)
}

// List handles GET /api/v1/uploads.
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid pagination parameters", nil)
		return
	}

	page, err := h.svc.List(c.Request.Context(), identity.UserID(), req.Page, req.PageSize)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, page)
}

// Get handles GET /api/v1/uploads/:id.
func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid upload id", nil)
		return
	}

	upload, err := h.svc.Get(c.Request.Context(), identity.UserID(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, upload)
}

// Cancel handles DELETE /api/v1/uploads/:id.
func (h *Handler) Cancel(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid upload id", nil)
		return
	}

	upload, err := h.svc.Cancel(c.Request.Context(), identity.UserID(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, upload)
}

// partContentType prefers the multipart header but falls back to content
// sniffing when the client sent nothing useful.
func partContentType(declared string, content []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(content)
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
