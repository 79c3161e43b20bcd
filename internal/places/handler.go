package places

import (
	"context"
	"net/http"

	"photobridge_backend/internal/graph"
	"photobridge_backend/internal/places/service"
	"photobridge_backend/internal/places/transport"
	"photobridge_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TokenProvider supplies the Graph access token of a user's linked
// account. Implemented by the accounts module.
type TokenProvider interface {
	AccessToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// Handler exposes the place resolution endpoints.
type Handler struct {
	svc    *service.Service
	tokens TokenProvider
}

func NewHandler(svc *service.Service, tokens TokenProvider) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// ResolveCities handles GET /api/v1/places/cities?latitude=..&longitude=..
func (h *Handler) ResolveCities(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ResolveCitiesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "latitude and longitude are required", nil)
		return
	}

	cities, err := h.resolve(c, identity.UserID(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.CitiesResponse{Data: cities})
}

// NearestCity handles GET /api/v1/places/nearest-city?latitude=..&longitude=..
// It resolves cities around the coordinate and returns the closest one,
// the same place tag the publisher attaches to geo-tagged uploads.
func (h *Handler) NearestCity(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ResolveCitiesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "latitude and longitude are required", nil)
		return
	}

	cities, err := h.resolve(c, identity.UserID(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	coord := service.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	httpkit.OK(c, transport.NearestCityResponse{City: service.NearestCity(coord, cities)})
}

func (h *Handler) resolve(c *gin.Context, userID uuid.UUID, req transport.ResolveCitiesRequest) ([]graph.Place, error) {
	token, err := h.tokens.AccessToken(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}

	coord := service.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	cities, err := h.svc.ResolveCities(c.Request.Context(), token, coord)
	if err != nil {
		return nil, graph.MapError("places.resolve", err)
	}
	return cities, nil
}
