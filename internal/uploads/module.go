package uploads

import (
	"photobridge_backend/internal/adapters/storage"
	"photobridge_backend/internal/events"
	apphttp "photobridge_backend/internal/http"
	"photobridge_backend/internal/uploads/repository"
	"photobridge_backend/internal/uploads/service"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"
	"photobridge_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the API side of the publishing workflow. The worker
// side (service.Publisher) is wired separately in cmd/scheduler.
type Module struct {
	handler *Handler
	svc     *service.Service
}

func NewModule(pool *pgxpool.Pool, store storage.StorageService, guard service.IdempotencyGuard, enqueue service.Enqueuer, cfg config.MinIOConfig, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.NewRepository(pool)
	svc := service.New(repo, store, guard, enqueue, cfg, bus, log)

	return &Module{
		handler: NewHandler(svc, validator.New()),
		svc:     svc,
	}
}

func (m *Module) Name() string { return "uploads" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/uploads")
	group.POST("", m.handler.Intake)
	group.GET("", m.handler.List)
	group.GET("/:id", m.handler.Get)
	group.DELETE("/:id", m.handler.Cancel)
}

// Service returns the upload service for other consumers.
func (m *Module) Service() *service.Service { return m.svc }

var _ apphttp.Module = (*Module)(nil)
