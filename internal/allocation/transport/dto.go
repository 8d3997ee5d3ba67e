// Package transport defines request/response DTOs for the allocation HTTP API.
package transport

import (
	"time"

	"crm_core_backend/internal/allocation/domain"

	"github.com/google/uuid"
)

// CreateLeadRequest is the payload for submitting a consumer lead to the pool.
type CreateLeadRequest struct {
	ConsumerName  string  `json:"consumerName" validate:"required,min=2,max=200"`
	ConsumerPhone string  `json:"consumerPhone" validate:"required,min=6,max=32"`
	ConsumerEmail *string `json:"consumerEmail" validate:"omitempty,email"`
	Source        *string `json:"source" validate:"omitempty,max=100"`
}

// LeadResponse is the API representation of a pool lead.
type LeadResponse struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenantId"`
	ConsumerName    string     `json:"consumerName"`
	ConsumerPhone   string     `json:"consumerPhone"`
	ConsumerEmail   *string    `json:"consumerEmail,omitempty"`
	Source          *string    `json:"source,omitempty"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	AssignedAt      *time.Time `json:"assignedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func LeadFromDomain(l domain.PoolLead) LeadResponse {
	return LeadResponse{
		ID:              l.ID,
		TenantID:        l.TenantID,
		ConsumerName:    l.ConsumerName,
		ConsumerPhone:   l.ConsumerPhone,
		ConsumerEmail:   l.ConsumerEmail,
		Source:          l.Source,
		AssignedAgentID: l.AssignedAgentID,
		AssignedAt:      l.AssignedAt,
		CreatedAt:       l.CreatedAt,
	}
}

func LeadsFromDomain(leads []domain.PoolLead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, LeadFromDomain(l))
	}
	return out
}

// SweepResponse reports how many queued leads a sweep assigned.
type SweepResponse struct {
	Assigned int `json:"assigned"`
}
