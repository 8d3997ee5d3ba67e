// Package transport defines request/response DTOs for the phases HTTP API.
package transport

import (
	"time"

	"crm_core_backend/internal/phases/domain"
	"crm_core_backend/internal/phases/repository"

	"github.com/google/uuid"
)

// UpdateConfigRequest is the payload for saving tenant phase configuration.
type UpdateConfigRequest struct {
	Active            bool       `json:"active"`
	PoolPropertyID    *uuid.UUID `json:"poolPropertyId"`
	AgentSharePct     int        `json:"agentSharePct" validate:"min=0,max=100"`
	CompanySharePct   int        `json:"companySharePct" validate:"min=0,max=100"`
	PhaseWeights      []int      `json:"phaseWeights" validate:"required,len=5"`
	Phase1Attempts    int        `json:"phase1Attempts" validate:"required,min=1"`
	MaxSolitaryMonths int        `json:"maxSolitaryMonths" validate:"required,min=1"`
}

// ToDomain converts the request into a domain config for the tenant.
func (r UpdateConfigRequest) ToDomain(tenantID uuid.UUID) domain.PhaseConfig {
	cfg := domain.PhaseConfig{
		TenantID:          tenantID,
		Active:            r.Active,
		PoolPropertyID:    r.PoolPropertyID,
		AgentSharePct:     r.AgentSharePct,
		CompanySharePct:   r.CompanySharePct,
		Phase1Attempts:    r.Phase1Attempts,
		MaxSolitaryMonths: r.MaxSolitaryMonths,
	}
	for i := 0; i < domain.PhaseCount && i < len(r.PhaseWeights); i++ {
		cfg.PhaseWeights[i] = r.PhaseWeights[i]
	}
	return cfg
}

// ConfigResponse is the API representation of a tenant phase configuration.
type ConfigResponse struct {
	TenantID          uuid.UUID  `json:"tenantId"`
	Active            bool       `json:"active"`
	PoolPropertyID    *uuid.UUID `json:"poolPropertyId,omitempty"`
	AgentSharePct     int        `json:"agentSharePct"`
	CompanySharePct   int        `json:"companySharePct"`
	PhaseWeights      []int      `json:"phaseWeights"`
	Phase1Attempts    int        `json:"phase1Attempts"`
	MaxSolitaryMonths int        `json:"maxSolitaryMonths"`
}

func ConfigFromDomain(cfg domain.PhaseConfig) ConfigResponse {
	weights := make([]int, domain.PhaseCount)
	copy(weights, cfg.PhaseWeights[:])
	return ConfigResponse{
		TenantID:          cfg.TenantID,
		Active:            cfg.Active,
		PoolPropertyID:    cfg.PoolPropertyID,
		AgentSharePct:     cfg.AgentSharePct,
		CompanySharePct:   cfg.CompanySharePct,
		PhaseWeights:      weights,
		Phase1Attempts:    cfg.Phase1Attempts,
		MaxSolitaryMonths: cfg.MaxSolitaryMonths,
	}
}

// AgentStateResponse is the API representation of an agent's phase state.
type AgentStateResponse struct {
	TenantID                  uuid.UUID  `json:"tenantId"`
	AgentID                   uuid.UUID  `json:"agentId"`
	InSystem                  bool       `json:"inSystem"`
	Phase                     int        `json:"phase"`
	Solitary                  bool       `json:"solitary"`
	Phase1AttemptsUsed        int        `json:"phase1AttemptsUsed"`
	SolitaryMonthsWithoutSale int        `json:"solitaryMonthsWithoutSale"`
	Prestige                  int        `json:"prestige"`
	SalesTowardNextPrestige   int        `json:"salesTowardNextPrestige"`
	UltraRecord               int        `json:"ultraRecord"`
	UltraMonth                string     `json:"ultraMonth,omitempty"`
	SalesThisMonth            int        `json:"salesThisMonth"`
	TrackedMonth              string     `json:"trackedMonth"`
	JoinedAt                  *time.Time `json:"joinedAt,omitempty"`
}

func StateFromDomain(s domain.AgentPhaseState) AgentStateResponse {
	return AgentStateResponse{
		TenantID:                  s.TenantID,
		AgentID:                   s.AgentID,
		InSystem:                  s.InSystem,
		Phase:                     s.Phase,
		Solitary:                  s.Solitary,
		Phase1AttemptsUsed:        s.Phase1AttemptsUsed,
		SolitaryMonthsWithoutSale: s.SolitaryMonthsWithoutSale,
		Prestige:                  s.Prestige,
		SalesTowardNextPrestige:   s.SalesTowardNextPrestige,
		UltraRecord:               s.UltraRecord,
		UltraMonth:                s.UltraMonth,
		SalesThisMonth:            s.SalesThisMonth,
		TrackedMonth:              s.TrackedMonth,
		JoinedAt:                  s.JoinedAt,
	}
}

func StatesFromDomain(states []domain.AgentPhaseState) []AgentStateResponse {
	out := make([]AgentStateResponse, 0, len(states))
	for _, s := range states {
		out = append(out, StateFromDomain(s))
	}
	return out
}

// TransitionResponse is one entry of an agent's phase history.
type TransitionResponse struct {
	ID            uuid.UUID  `json:"id"`
	FromPhase     int        `json:"fromPhase"`
	ToPhase       int        `json:"toPhase"`
	Kind          string     `json:"kind"`
	Reason        string     `json:"reason,omitempty"`
	SaleID        *uuid.UUID `json:"saleId,omitempty"`
	PrestigeValue *int       `json:"prestigeValue,omitempty"`
	UltraValue    *int       `json:"ultraValue,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func TransitionsFromRepo(events []repository.TransitionEvent) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, TransitionResponse{
			ID:            ev.ID,
			FromPhase:     ev.FromPhase,
			ToPhase:       ev.ToPhase,
			Kind:          ev.Kind,
			Reason:        ev.Reason,
			SaleID:        ev.SaleID,
			PrestigeValue: ev.PrestigeValue,
			UltraValue:    ev.UltraValue,
			CreatedAt:     ev.CreatedAt,
		})
	}
	return out
}

// AdmitRequest admits one agent into the phase system.
type AdmitRequest struct {
	AgentID uuid.UUID `json:"agentId" validate:"required"`
}

// RolloverRequest triggers a monthly rollover for the tenant.
type RolloverRequest struct {
	Period string `json:"period" validate:"required"`
}

// RolloverResponse reports the outcome of a rollover run.
type RolloverResponse struct {
	Period          string `json:"period"`
	AgentsProcessed int    `json:"agentsProcessed"`
}
