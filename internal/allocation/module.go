// Package allocation provides the pool lead allocation bounded context.
// Incoming consumer leads are drawn to agents with probability weighted by
// their current phase.
package allocation

import (
	"crm_core_backend/internal/allocation/handler"
	"crm_core_backend/internal/allocation/repository"
	"crm_core_backend/internal/allocation/service"
	"crm_core_backend/internal/events"
	apphttp "crm_core_backend/internal/http"
	"crm_core_backend/platform/logger"
	"crm_core_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the allocation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the allocation module.
func NewModule(pool *pgxpool.Pool, phases service.PhaseReader, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.NewRepository(pool)
	svc := service.NewService(repo, phases, bus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "allocation"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts allocation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/pool-leads")
	leads.POST("", m.handler.Create)
	leads.GET("/unassigned", m.handler.ListUnassigned)
	leads.GET("/:leadId", m.handler.Get)

	admin := ctx.Admin.Group("/pool-leads")
	admin.POST("/sweep", m.handler.Sweep)
	admin.POST("/:leadId/allocate", m.handler.Allocate)
	admin.POST("/:leadId/reset", m.handler.Reset)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
