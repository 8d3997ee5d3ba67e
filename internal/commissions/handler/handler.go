// Package handler exposes commission templates and the sale ledger over HTTP.
package handler

import (
	"net/http"

	"crm_core_backend/internal/commissions/service"
	"crm_core_backend/internal/commissions/transport"
	"crm_core_backend/platform/httpkit"
	"crm_core_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid ID"
)

// Handler handles HTTP requests for the commissions bounded context.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new commissions handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) tenantScope(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, false
	}
	return httpkit.MustGetTenantID(c, identity)
}

// ListTemplates returns the templates visible to the tenant.
// GET /api/v1/commission-templates
func (h *Handler) ListTemplates(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	templates, err := h.svc.ListTemplates(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TemplatesFromDomain(templates))
}

// GetTemplate returns one template.
// GET /api/v1/commission-templates/:templateId
func (h *Handler) GetTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("templateId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	tpl, err := h.svc.GetTemplate(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TemplateFromDomain(tpl))
}

// ResolveForAgent returns the template an agent's sales would use.
// GET /api/v1/commission-templates/resolve/:agentId
func (h *Handler) ResolveForAgent(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	tpl, err := h.svc.ResolveForAgent(c.Request.Context(), tenantID, agentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TemplateFromDomain(tpl))
}

// CreateTemplate creates a tenant-scoped template.
// POST /api/v1/admin/commission-templates
func (h *Handler) CreateTemplate(c *gin.Context) {
	var req transport.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	tpl, err := h.svc.CreateTemplate(c.Request.Context(), tenantID, req.ToDomain())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.TemplateFromDomain(tpl))
}

// UpdateTemplate patches a template; global templates get a tenant copy.
// PATCH /api/v1/admin/commission-templates/:templateId
func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("templateId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	tpl, err := h.svc.UpdateTemplate(c.Request.Context(), tenantID, id, req.ToPatch())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TemplateFromDomain(tpl))
}

// DeleteTemplate removes a tenant-scoped template.
// DELETE /api/v1/admin/commission-templates/:templateId
func (h *Handler) DeleteTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("templateId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.DeleteTemplate(c.Request.Context(), tenantID, id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// AssignTemplate binds an agent to a template.
// POST /api/v1/admin/commission-templates/assign
func (h *Handler) AssignTemplate(c *gin.Context) {
	var req transport.AssignTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.AssignTemplate(c.Request.Context(), tenantID, req.AgentID, req.TemplateID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseSale closes a sale: phase advancement plus the snapshot ledger.
// POST /api/v1/sales/close
func (h *Handler) CloseSale(c *gin.Context) {
	var req transport.CloseSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	rows, err := h.svc.CloseSale(c.Request.Context(), req.ToDomain(tenantID))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.LedgerRowsFromDomain(rows))
}

// GetSaleLedger returns the commission ledger of one sale.
// GET /api/v1/sales/:saleId/commissions
func (h *Handler) GetSaleLedger(c *gin.Context) {
	saleID, err := uuid.Parse(c.Param("saleId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	rows, sc, err := h.svc.LedgerForSale(c.Request.Context(), tenantID, saleID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SaleLedgerResponse{
		SaleID:             saleID,
		ExpectedTotalCents: sc.ExpectedCents,
		CollectedCents:     sc.CollectedCents,
		Rows:               transport.LedgerRowsFromDomain(rows),
	})
}

// RecordPayment updates collection progress and the enabled amounts.
// POST /api/v1/sales/:saleId/payments
func (h *Handler) RecordPayment(c *gin.Context) {
	saleID, err := uuid.Parse(c.Param("saleId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	rows, err := h.svc.RecordCollection(c.Request.Context(), tenantID, saleID,
		req.CollectedToDateCents, req.Clawback, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LedgerRowsFromDomain(rows))
}

// ListAdjustments returns the enablement audit trail of one ledger row.
// GET /api/v1/commissions/:commissionId/adjustments
func (h *Handler) ListAdjustments(c *gin.Context) {
	commissionID, err := uuid.Parse(c.Param("commissionId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	adjustments, err := h.svc.Adjustments(c.Request.Context(), tenantID, commissionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AdjustmentsFromDomain(adjustments))
}
