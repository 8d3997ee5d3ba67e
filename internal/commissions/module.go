// Package commissions provides the commission distribution bounded context:
// templates with copy-on-write tenant shadowing, the immutable snapshot
// ledger written at sale close and collection-proportional enablement.
package commissions

import (
	"crm_core_backend/internal/commissions/handler"
	"crm_core_backend/internal/commissions/repository"
	"crm_core_backend/internal/commissions/service"
	"crm_core_backend/internal/events"
	apphttp "crm_core_backend/internal/http"
	"crm_core_backend/platform/logger"
	"crm_core_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the commissions bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the commissions module. The phases
// dependencies let the sale-close flow update the seller's phase in the
// same transaction as the ledger insert.
func NewModule(pool *pgxpool.Pool, phases service.PhaseStore, publisher service.TransitionPublisher,
	bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.NewRepository(pool)
	svc := service.NewService(repo, phases, publisher, bus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "commissions"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts commission routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	templates := ctx.Protected.Group("/commission-templates")
	templates.GET("", m.handler.ListTemplates)
	templates.GET("/resolve/:agentId", m.handler.ResolveForAgent)
	templates.GET("/:templateId", m.handler.GetTemplate)

	sales := ctx.Protected.Group("/sales")
	sales.POST("/close", m.handler.CloseSale)
	sales.GET("/:saleId/commissions", m.handler.GetSaleLedger)
	sales.POST("/:saleId/payments", m.handler.RecordPayment)

	ctx.Protected.GET("/commissions/:commissionId/adjustments", m.handler.ListAdjustments)

	admin := ctx.Admin.Group("/commission-templates")
	admin.POST("", m.handler.CreateTemplate)
	admin.POST("/assign", m.handler.AssignTemplate)
	admin.PATCH("/:templateId", m.handler.UpdateTemplate)
	admin.DELETE("/:templateId", m.handler.DeleteTemplate)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
