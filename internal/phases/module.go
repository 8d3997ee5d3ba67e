// Package phases provides the phase engine bounded context module.
// It tracks each agent's position in the gamified phase ladder and runs
// the monthly rollover that demotes idle agents.
package phases

import (
	"crm_core_backend/internal/events"
	apphttp "crm_core_backend/internal/http"
	"crm_core_backend/internal/phases/handler"
	"crm_core_backend/internal/phases/repository"
	"crm_core_backend/internal/phases/service"
	"crm_core_backend/platform/logger"
	"crm_core_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the phases bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the phases module with all its dependencies.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.NewRepository(pool)
	svc := service.NewService(repo, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "phases"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for orchestrators that share transactions.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts phase engine routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	phases := ctx.Protected.Group("/phases")
	phases.GET("/config", m.handler.GetConfig)
	phases.GET("/agents", m.handler.ListAgents)
	phases.GET("/agents/:agentId", m.handler.GetAgent)
	phases.GET("/agents/:agentId/history", m.handler.History)

	admin := ctx.Admin.Group("/phases")
	admin.PUT("/config", m.handler.UpdateConfig)
	admin.POST("/agents", m.handler.Admit)
	admin.DELETE("/agents/:agentId", m.handler.Remove)
	admin.POST("/agents/:agentId/readmit", m.handler.Readmit)
	admin.POST("/rollover", m.handler.Rollover)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
