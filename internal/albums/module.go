package albums

import (
	apphttp "photobridge_backend/internal/http"
	"photobridge_backend/platform/logger"
	"photobridge_backend/platform/validator"
)

// Module bundles the album proxy endpoints.
type Module struct {
	handler *Handler
}

func NewModule(api GraphAPI, tokens TokenSource, log *logger.Logger) *Module {
	svc := NewService(api, tokens, log)
	return &Module{handler: NewHandler(svc, validator.New())}
}

func (m *Module) Name() string { return "albums" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/albums")
	group.GET("", m.handler.List)
	group.POST("", m.handler.Create)
	group.GET("/:id", m.handler.Get)
}

var _ apphttp.Module = (*Module)(nil)
