// Package places provides city resolution around a coordinate, used to
// suggest place tags for photo uploads.
package places

import (
	apphttp "photobridge_backend/internal/http"
	"photobridge_backend/internal/places/service"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"
)

// Module wires the place resolution routes.
type Module struct {
	handler *Handler
	service *service.Service
}

// NewModule creates the places module. The searcher is the shared Graph
// client; tokens resolves a user's linked account token.
func NewModule(searcher service.Searcher, tokens TokenProvider, cfg config.PlacesConfig, log *logger.Logger) *Module {
	cache := service.NewProximityCache(cfg.GetPlacesCacheMaxEntries(), cfg.GetPlacesCacheTTL())
	svc := service.New(searcher, cache, log)
	return &Module{
		handler: NewHandler(svc, tokens),
		service: svc,
	}
}

func (m *Module) Name() string {
	return "places"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/places")
	group.GET("/cities", m.handler.ResolveCities)
	group.GET("/nearest-city", m.handler.NearestCity)
}

// Service exposes the resolver for other modules (the upload publisher
// uses it to pick place tags).
func (m *Module) Service() *service.Service {
	return m.service
}

var _ apphttp.Module = (*Module)(nil)
