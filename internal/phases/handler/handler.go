// Package handler exposes the phase engine over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"crm_core_backend/internal/phases/service"
	"crm_core_backend/internal/phases/transport"
	"crm_core_backend/platform/httpkit"
	"crm_core_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidAgentID   = "invalid agent ID"
)

// Handler handles HTTP requests for the phase engine.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new phases handler.
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

// GetConfig returns the tenant's phase configuration.
// GET /api/v1/phases/config
func (h *Handler) GetConfig(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	cfg, err := h.svc.GetConfig(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ConfigFromDomain(cfg))
}

// UpdateConfig saves the tenant's phase configuration.
// PUT /api/v1/admin/phases/config
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req transport.UpdateConfigRequest
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

	cfg := req.ToDomain(tenantID)
	if httpkit.HandleError(c, h.svc.UpdateConfig(c.Request.Context(), cfg)) {
		return
	}
	httpkit.OK(c, transport.ConfigFromDomain(cfg))
}

// ListAgents returns phase states for the tenant's agents.
// GET /api/v1/phases/agents?all=true
func (h *Handler) ListAgents(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	includeAll := c.Query("all") == "true"
	states, err := h.svc.ListAgents(c.Request.Context(), tenantID, !includeAll)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StatesFromDomain(states))
}

// GetAgent returns one agent's phase state.
// GET /api/v1/phases/agents/:agentId
func (h *Handler) GetAgent(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAgentID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	state, err := h.svc.GetAgent(c.Request.Context(), tenantID, agentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StateFromDomain(state))
}

// History returns an agent's transition history, newest first.
// GET /api/v1/phases/agents/:agentId/history?limit=50
func (h *Handler) History(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAgentID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.svc.History(c.Request.Context(), tenantID, agentID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TransitionsFromRepo(events))
}

// Admit places an agent into the phase system.
// POST /api/v1/admin/phases/agents
func (h *Handler) Admit(c *gin.Context) {
	var req transport.AdmitRequest
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

	state, err := h.svc.Admit(c.Request.Context(), tenantID, req.AgentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.StateFromDomain(state))
}

// Remove takes an agent out of the phase system.
// DELETE /api/v1/admin/phases/agents/:agentId
func (h *Handler) Remove(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAgentID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.Remove(c.Request.Context(), tenantID, agentID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Readmit moves a solitary agent back to phase 1.
// POST /api/v1/admin/phases/agents/:agentId/readmit
func (h *Handler) Readmit(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAgentID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.Readmit(c.Request.Context(), tenantID, agentID)) {
		return
	}

	state, err := h.svc.GetAgent(c.Request.Context(), tenantID, agentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StateFromDomain(state))
}

// Rollover runs the monthly rollover for the tenant.
// POST /api/v1/admin/phases/rollover
func (h *Handler) Rollover(c *gin.Context) {
	var req transport.RolloverRequest
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

	processed, err := h.svc.Rollover(c.Request.Context(), tenantID, req.Period)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RolloverResponse{Period: req.Period, AgentsProcessed: processed})
}
