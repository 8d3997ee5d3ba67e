// Package handler exposes pool lead allocation over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"crm_core_backend/internal/allocation/service"
	"crm_core_backend/internal/allocation/transport"
	"crm_core_backend/platform/httpkit"
	"crm_core_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead ID"
)

// Handler handles HTTP requests for pool lead allocation.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new allocation handler.
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

// Create submits a consumer lead to the pool and allocates it when possible.
// POST /api/v1/pool-leads
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
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

	lead, err := h.svc.SubmitLead(c.Request.Context(), tenantID, service.NewLead{
		ConsumerName:  req.ConsumerName,
		ConsumerPhone: req.ConsumerPhone,
		ConsumerEmail: req.ConsumerEmail,
		Source:        req.Source,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.LeadFromDomain(lead))
}

// Get returns one pool lead.
// GET /api/v1/pool-leads/:leadId
func (h *Handler) Get(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetLead(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadFromDomain(lead))
}

// ListUnassigned returns the tenant's queued leads, oldest first.
// GET /api/v1/pool-leads/unassigned?limit=100
func (h *Handler) ListUnassigned(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	leads, err := h.svc.ListUnassigned(c.Request.Context(), tenantID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadsFromDomain(leads))
}

// Allocate runs a weighted draw for one queued lead.
// POST /api/v1/admin/pool-leads/:leadId/allocate
func (h *Handler) Allocate(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	lead, err := h.svc.Allocate(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadFromDomain(lead))
}

// Reset returns an assigned lead to the pool.
// POST /api/v1/admin/pool-leads/:leadId/reset
func (h *Handler) Reset(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	lead, err := h.svc.Reset(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadFromDomain(lead))
}

// Sweep retries allocation for every queued lead of the tenant.
// POST /api/v1/admin/pool-leads/sweep
func (h *Handler) Sweep(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	assigned, err := h.svc.Sweep(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SweepResponse{Assigned: assigned})
}
