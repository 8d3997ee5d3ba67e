// Package handler exposes productivity goals and summaries over HTTP.
package handler

import (
	"net/http"
	"time"

	"crm_core_backend/internal/productivity/domain"
	"crm_core_backend/internal/productivity/service"
	"crm_core_backend/internal/productivity/transport"
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

// Handler handles HTTP requests for the productivity bounded context.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new productivity handler.
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

// GetGoals returns the tenant default goal set.
// GET /api/v1/productivity/goals
func (h *Handler) GetGoals(c *gin.Context) {
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	goals, err := h.svc.TenantGoals(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.GoalSetFromDomain(goals))
}

// PutGoals replaces the tenant default goal set.
// PUT /api/v1/admin/productivity/goals
func (h *Handler) PutGoals(c *gin.Context) {
	var req transport.GoalSetRequest
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

	if httpkit.HandleError(c, h.svc.SetTenantGoals(c.Request.Context(), tenantID, req.ToDomain())) {
		return
	}
	httpkit.OK(c, transport.GoalSetFromDomain(req.ToDomain()))
}

// PutOverride replaces an agent's goal override for one period.
// PUT /api/v1/admin/productivity/agents/:agentId/goals/:period
func (h *Handler) PutOverride(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.GoalSetRequest
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

	if httpkit.HandleError(c, h.svc.SetOverride(c.Request.Context(), tenantID, agentID, c.Param("period"), req.ToDomain())) {
		return
	}
	httpkit.OK(c, transport.GoalSetFromDomain(req.ToDomain()))
}

// GetResolvedGoals returns the effective target set for an agent and period.
// GET /api/v1/productivity/agents/:agentId/goals/:period
func (h *Handler) GetResolvedGoals(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}
	period := c.Param("period")

	goals, err := h.svc.ResolveGoals(c.Request.Context(), tenantID, agentID, period)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ResolvedGoalsResponse{AgentID: agentID, Period: period, Goals: goals})
}

// GetSummary returns the rollup for an agent, computing it on first access.
// GET /api/v1/productivity/agents/:agentId/summary?period=2026-08&granularity=monthly
func (h *Handler) GetSummary(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	tenantID, ok := h.tenantScope(c)
	if !ok {
		return
	}

	granularity := c.DefaultQuery("granularity", domain.GranularityMonthly)
	period := c.Query("period")
	if period == "" {
		period = domain.CurrentPeriod(time.Now().UTC(), granularity)
	}

	summary, err := h.svc.GetSummary(c.Request.Context(), tenantID, agentID, period, granularity)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SummaryFromDomain(summary))
}

// Recompute rebuilds an agent's summary from the source tables.
// POST /api/v1/productivity/agents/:agentId/recompute
func (h *Handler) Recompute(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.RecomputeRequest
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

	if req.Granularity == "" {
		req.Granularity = domain.GranularityMonthly
	}
	if req.Period == "" {
		req.Period = domain.CurrentPeriod(time.Now().UTC(), req.Granularity)
	}

	summary, err := h.svc.Recompute(c.Request.Context(), tenantID, agentID, req.Period, req.Granularity)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SummaryFromDomain(summary))
}
