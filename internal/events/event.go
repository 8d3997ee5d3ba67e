// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crm_core_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Phase Domain Events
// =============================================================================

// AgentAdmitted is published when an agent is admitted into the phase system.
type AgentAdmitted struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	AgentID  uuid.UUID `json:"agentId"`
}

func (e AgentAdmitted) EventName() string { return "phases.agent.admitted" }

// PhaseChanged is published whenever an agent moves between phases,
// including entering or leaving solitary.
type PhaseChanged struct {
	BaseEvent
	TenantID  uuid.UUID  `json:"tenantId"`
	AgentID   uuid.UUID  `json:"agentId"`
	FromPhase int        `json:"fromPhase"`
	ToPhase   int        `json:"toPhase"`
	Kind      string     `json:"kind"`
	SaleID    *uuid.UUID `json:"saleId,omitempty"`
}

func (e PhaseChanged) EventName() string { return "phases.agent.phase_changed" }

// PrestigeEarned is published when a phase-5 agent completes a prestige cycle.
type PrestigeEarned struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	AgentID  uuid.UUID `json:"agentId"`
	Prestige int       `json:"prestige"`
}

func (e PrestigeEarned) EventName() string { return "phases.agent.prestige_earned" }

// UltraRecordSet is published when an agent beats their monthly sales record.
type UltraRecordSet struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	AgentID  uuid.UUID `json:"agentId"`
	Record   int       `json:"record"`
	Month    string    `json:"month"`
}

func (e UltraRecordSet) EventName() string { return "phases.agent.ultra_record" }

// AgentExited is published when an agent is removed from the gamified pool
// after exceeding the solitary idle limit.
type AgentExited struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	AgentID  uuid.UUID `json:"agentId"`
	Reason   string    `json:"reason"`
}

func (e AgentExited) EventName() string { return "phases.agent.exited" }

// RolloverCompleted is published after a tenant's monthly rollover batch runs.
type RolloverCompleted struct {
	BaseEvent
	TenantID        uuid.UUID `json:"tenantId"`
	Period          string    `json:"period"`
	AgentsProcessed int       `json:"agentsProcessed"`
}

func (e RolloverCompleted) EventName() string { return "phases.rollover.completed" }

// =============================================================================
// Allocation Domain Events
// =============================================================================

// LeadAssigned is published when a pool lead is claimed for an agent.
type LeadAssigned struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	LeadID     uuid.UUID `json:"leadId"`
	AgentID    uuid.UUID `json:"agentId"`
	AgentPhase int       `json:"agentPhase"`
}

func (e LeadAssigned) EventName() string { return "allocation.lead.assigned" }

// LeadLeftUnassigned is published when no eligible agent exists for a lead.
type LeadLeftUnassigned struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
}

func (e LeadLeftUnassigned) EventName() string { return "allocation.lead.unassigned" }

// =============================================================================
// Commission Domain Events
// =============================================================================

// CommissionLedgerCreated is published after the immutable snapshot rows for
// a sale are written.
type CommissionLedgerCreated struct {
	BaseEvent
	TenantID         uuid.UUID `json:"tenantId"`
	SaleID           uuid.UUID `json:"saleId"`
	GrossAmountCents int64     `json:"grossAmountCents"`
	Participants     int       `json:"participants"`
}

func (e CommissionLedgerCreated) EventName() string { return "commissions.ledger.created" }

// CommissionEnablementUpdated is published when collection progress moves the
// enabled amounts of a sale's ledger rows.
type CommissionEnablementUpdated struct {
	BaseEvent
	TenantID     uuid.UUID `json:"tenantId"`
	SaleID       uuid.UUID `json:"saleId"`
	EnabledRatio float64   `json:"enabledRatio"`
}

func (e CommissionEnablementUpdated) EventName() string { return "commissions.enablement.updated" }

// =============================================================================
// Productivity Domain Events
// =============================================================================

// ProductivitySummaryRecomputed is published when an agent's cached rollup is
// rebuilt from the activity source tables.
type ProductivitySummaryRecomputed struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	AgentID       uuid.UUID `json:"agentId"`
	Period        string    `json:"period"`
	Granularity   string    `json:"granularity"`
	PctCompliance float64   `json:"pctCompliance"`
}

func (e ProductivitySummaryRecomputed) EventName() string { return "productivity.summary.recomputed" }
