// Package webhook provides the platform callback bounded context module.
// This file defines the module that encapsulates callback setup and route
// registration.
package webhook

import (
	"photobridge_backend/internal/events"
	apphttp "photobridge_backend/internal/http"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates and initializes the webhook module with all its
// dependencies.
func NewModule(pool *pgxpool.Pool, revoker AccountRevoker, cfg config.WebhookConfig, eventBus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, revoker, cfg, eventBus, log)
	handler := NewHandler(service)

	return &Module{handler: handler}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the platform callback routes on the provided
// router context. The routes are public; authentication is the HMAC
// signature inside the signed_request body, not a JWT.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhooks/facebook")
	group.POST("/deauthorize", m.handler.HandleDeauthorize)
	group.POST("/data-deletion", m.handler.HandleDataDeletion)
	group.GET("/data-deletion/:code", m.handler.HandleDeletionStatus)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
