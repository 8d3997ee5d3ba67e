package repository

import (
	"context"
	"time"

	"crm_core_backend/internal/phases/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransitionEvent is a persisted row of the append-only transition history.
type TransitionEvent struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	AgentID       uuid.UUID
	FromPhase     int
	ToPhase       int
	Kind          string
	Reason        string
	SaleID        *uuid.UUID
	PrestigeValue *int
	UltraValue    *int
	CreatedAt     time.Time
}

// RolloverRun records one completed (tenant, period) rollover batch.
type RolloverRun struct {
	TenantID        uuid.UUID
	Period          string
	AgentsProcessed int
	CompletedAt     time.Time
}

// ConfigStore provides access to per-tenant phase configuration.
type ConfigStore interface {
	GetConfig(ctx context.Context, tenantID uuid.UUID) (domain.PhaseConfig, error)
	UpsertConfig(ctx context.Context, cfg domain.PhaseConfig) error
	ListActiveTenants(ctx context.Context) ([]uuid.UUID, error)
}

// StateStore provides access to agent phase state and its audit trail.
type StateStore interface {
	GetState(ctx context.Context, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error)
	ListStates(ctx context.Context, tenantID uuid.UUID, inSystemOnly bool) ([]domain.AgentPhaseState, error)
	ListAgentIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	CreateState(ctx context.Context, state domain.AgentPhaseState, transition domain.Transition) error
	SetInSystem(ctx context.Context, tenantID, agentID uuid.UUID, inSystem bool) error
	ListTransitions(ctx context.Context, tenantID, agentID uuid.UUID, limit int) ([]TransitionEvent, error)

	// UpdateAgentLocked runs fn against the agent's current state while
	// holding a row-level lock, then persists the returned state and
	// transition events in the same transaction.
	UpdateAgentLocked(ctx context.Context, tenantID, agentID uuid.UUID,
		fn func(domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error)) error
}

// RolloverStore tracks per-(tenant, period) rollover idempotency.
type RolloverStore interface {
	HasRolloverRun(ctx context.Context, tenantID uuid.UUID, period string) (bool, error)
	InsertRolloverRun(ctx context.Context, run RolloverRun) error
}

// Store is the full persistence surface of the phases bounded context.
type Store interface {
	ConfigStore
	StateStore
	RolloverStore
}

// TxStateStore is the lower-level surface used by the sale-close
// orchestrator, which needs the phase update and the commission snapshot in
// one transaction it controls.
type TxStateStore interface {
	GetStateForUpdate(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error)
	SaveStateTx(ctx context.Context, tx pgx.Tx, state domain.AgentPhaseState) error
	InsertTransitionsTx(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID, saleTime time.Time, transitions []domain.Transition) error
}
