// Package accounts manages linked Facebook accounts: token intake,
// validation, encrypted storage and revocation.
package accounts

import (
	"photobridge_backend/internal/accounts/repository"
	"photobridge_backend/internal/accounts/service"
	"photobridge_backend/internal/events"
	apphttp "photobridge_backend/internal/http"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"
	"photobridge_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the linked-account routes and service.
type Module struct {
	handler *Handler
	service *service.Service
}

func NewModule(pool *pgxpool.Pool, api service.GraphAPI, cfg config.AccountsConfig, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.NewRepository(pool)
	svc := service.New(repo, api, cfg, bus, log)
	return &Module{
		handler: NewHandler(svc, validator.New()),
		service: svc,
	}
}

func (m *Module) Name() string {
	return "accounts"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/accounts")
	group.POST("/facebook", m.handler.Link)
	group.GET("/facebook", m.handler.Get)
	group.POST("/facebook/refresh", m.handler.Refresh)
	group.DELETE("/facebook", m.handler.Unlink)
}

// Service exposes the accounts service for other modules (token lookup
// for Graph calls, revocation from the deauthorize webhook).
func (m *Module) Service() *service.Service {
	return m.service
}

var _ apphttp.Module = (*Module)(nil)
