// Package transport defines request/response DTOs for the productivity HTTP API.
package transport

import (
	"time"

	"crm_core_backend/internal/productivity/domain"

	"github.com/google/uuid"
)

// GoalSetRequest sets nullable per-metric targets. A null field means the
// metric is not set at this level.
type GoalSetRequest struct {
	Contacts  *int `json:"contacts" validate:"omitempty,min=0"`
	Captures  *int `json:"captures" validate:"omitempty,min=0"`
	Sales     *int `json:"sales" validate:"omitempty,min=0"`
	Calls     *int `json:"calls" validate:"omitempty,min=0"`
	Visits    *int `json:"visits" validate:"omitempty,min=0"`
	Proposals *int `json:"proposals" validate:"omitempty,min=0"`
}

func (r GoalSetRequest) ToDomain() domain.GoalSet {
	return domain.GoalSet{
		Contacts:  r.Contacts,
		Captures:  r.Captures,
		Sales:     r.Sales,
		Calls:     r.Calls,
		Visits:    r.Visits,
		Proposals: r.Proposals,
	}
}

// GoalSetResponse mirrors the stored nullable targets.
type GoalSetResponse struct {
	Contacts  *int `json:"contacts"`
	Captures  *int `json:"captures"`
	Sales     *int `json:"sales"`
	Calls     *int `json:"calls"`
	Visits    *int `json:"visits"`
	Proposals *int `json:"proposals"`
}

func GoalSetFromDomain(g domain.GoalSet) GoalSetResponse {
	return GoalSetResponse{
		Contacts:  g.Contacts,
		Captures:  g.Captures,
		Sales:     g.Sales,
		Calls:     g.Calls,
		Visits:    g.Visits,
		Proposals: g.Proposals,
	}
}

// ResolvedGoalsResponse is the effective target set for one agent/period.
type ResolvedGoalsResponse struct {
	AgentID uuid.UUID    `json:"agentId"`
	Period  string       `json:"period"`
	Goals   domain.Goals `json:"goals"`
}

// RecomputeRequest triggers a summary rebuild for one period.
type RecomputeRequest struct {
	Period      string `json:"period"`
	Granularity string `json:"granularity" validate:"omitempty,oneof=monthly weekly"`
}

// SummaryResponse is the cached productivity rollup.
type SummaryResponse struct {
	AgentID       uuid.UUID       `json:"agentId"`
	Period        string          `json:"period"`
	Granularity   string          `json:"granularity"`
	Counters      domain.Counters `json:"counters"`
	PctCompliance float64         `json:"pctCompliance"`
	ComputedAt    time.Time       `json:"computedAt"`
}

func SummaryFromDomain(s domain.Summary) SummaryResponse {
	return SummaryResponse{
		AgentID:       s.AgentID,
		Period:        s.Period,
		Granularity:   s.Granularity,
		Counters:      s.Counters,
		PctCompliance: s.PctCompliance,
		ComputedAt:    s.ComputedAt,
	}
}
