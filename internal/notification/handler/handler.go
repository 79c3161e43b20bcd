// Package handler exposes the notification feed endpoints.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"photobridge_backend/internal/notification/inapp"
	"photobridge_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *inapp.Service
}

func New(svc *inapp.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread", h.CountUnread)
	rg.GET("/unread-by-resource", h.CountUnreadByResource)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.PATCH("/read-all", h.MarkAllRead)
	rg.DELETE("/:id", h.Delete)
}

// List handles GET /api/v1/notifications.
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}

	items, total, err := h.svc.List(c.Request.Context(), identity.UserID(), page, limit)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

// CountUnread handles GET /api/v1/notifications/unread.
func (h *Handler) CountUnread(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	count, err := h.svc.CountUnread(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

// CountUnreadByResource handles GET /api/v1/notifications/unread-by-resource.
// The types query parameter holds a comma-separated resource type filter,
// for example ?types=upload,account.
func (h *Handler) CountUnreadByResource(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var resourceTypes []string
	if raw := c.Query("types"); raw != "" {
		resourceTypes = strings.Split(raw, ",")
	}

	count, err := h.svc.CountUnreadByResourceTypes(c.Request.Context(), identity.UserID(), resourceTypes)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

// MarkRead handles PATCH /api/v1/notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), identity.UserID(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"message": "notification marked read"})
}

// MarkAllRead handles PATCH /api/v1/notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.MarkAllRead(c.Request.Context(), identity.UserID()); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"message": "all notifications marked read"})
}

// Delete handles DELETE /api/v1/notifications/:id.
func (h *Handler) Delete(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), identity.UserID(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"message": "notification deleted"})
}
