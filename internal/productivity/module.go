// Package productivity provides the productivity bounded context: tenant
// goal defaults with per-agent period overrides and the cached activity
// rollup recomputed idempotently from the source tables.
package productivity

import (
	"crm_core_backend/internal/events"
	apphttp "crm_core_backend/internal/http"
	"crm_core_backend/internal/productivity/handler"
	"crm_core_backend/internal/productivity/repository"
	"crm_core_backend/internal/productivity/service"
	"crm_core_backend/platform/cache"
	"crm_core_backend/platform/logger"
	"crm_core_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the productivity bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the productivity module. The cache may
// be nil when redis is not configured.
func NewModule(pool *pgxpool.Pool, c *cache.Cache, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.NewRepository(pool)
	svc := service.NewService(repo, c, bus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "productivity"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts productivity routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/productivity")
	group.GET("/goals", m.handler.GetGoals)
	group.GET("/agents/:agentId/goals/:period", m.handler.GetResolvedGoals)
	group.GET("/agents/:agentId/summary", m.handler.GetSummary)
	group.POST("/agents/:agentId/recompute", m.handler.Recompute)

	admin := ctx.Admin.Group("/productivity")
	admin.PUT("/goals", m.handler.PutGoals)
	admin.PUT("/agents/:agentId/goals/:period", m.handler.PutOverride)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
