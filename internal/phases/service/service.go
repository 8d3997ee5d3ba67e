// Package service implements phase engine business logic: admission,
// sale-driven advancement, monthly rollovers and configuration.
package service

import (
	"context"
	"fmt"
	"time"

	"crm_core_backend/internal/events"
	"crm_core_backend/internal/phases/domain"
	"crm_core_backend/internal/phases/repository"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// rolloverConcurrency bounds how many tenants roll over in parallel.
const rolloverConcurrency = 4

type Service struct {
	store repository.Store
	bus   events.Bus
	log   *logger.Logger
}

func NewService(store repository.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// --- Configuration ---

// GetConfig returns the tenant's phase configuration, falling back to the
// defaults when the tenant has never saved one.
func (s *Service) GetConfig(ctx context.Context, tenantID uuid.UUID) (domain.PhaseConfig, error) {
	cfg, err := s.store.GetConfig(ctx, tenantID)
	if apperr.Is(err, apperr.KindNotFound) {
		return domain.DefaultConfig(tenantID), nil
	}
	if err != nil {
		return domain.PhaseConfig{}, err
	}
	return cfg, nil
}

func (s *Service) UpdateConfig(ctx context.Context, cfg domain.PhaseConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.store.UpsertConfig(ctx, cfg)
}

// --- Agent lifecycle ---

// Admit places an agent into the phase system at phase 1.
func (s *Service) Admit(ctx context.Context, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error) {
	now := time.Now()
	state, transition := domain.NewAgentState(tenantID, agentID, domain.Period(now), now)

	if err := s.store.CreateState(ctx, state, transition); err != nil {
		return domain.AgentPhaseState{}, err
	}

	s.log.PhaseTransition(tenantID.String(), agentID.String(), transition.FromPhase, transition.ToPhase, string(transition.Kind))
	s.bus.Publish(ctx, events.AgentAdmitted{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		AgentID:   agentID,
	})
	return state, nil
}

// Remove takes an agent out of the gamified pool. The state row and its
// history are kept for a later re-admission.
func (s *Service) Remove(ctx context.Context, tenantID, agentID uuid.UUID) error {
	err := s.store.UpdateAgentLocked(ctx, tenantID, agentID,
		func(state domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error) {
			if !state.InSystem {
				return state, nil, apperr.Conflict("agent is not in the phase system")
			}
			from := state.Phase
			state.InSystem = false
			return state, []domain.Transition{{
				FromPhase: from,
				ToPhase:   from,
				Kind:      domain.TransitionExit,
				Reason:    "administrative removal",
			}}, nil
		})
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, events.AgentExited{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Reason:    "administrative removal",
	})
	return nil
}

// Readmit moves a solitary agent back to phase 1.
func (s *Service) Readmit(ctx context.Context, tenantID, agentID uuid.UUID) error {
	var applied domain.Transition
	err := s.store.UpdateAgentLocked(ctx, tenantID, agentID,
		func(state domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error) {
			next, transition, ok := domain.Readmit(state)
			if !ok {
				return state, nil, apperr.Conflict("agent is not solitary")
			}
			applied = transition
			return next, []domain.Transition{transition}, nil
		})
	if err != nil {
		return err
	}

	s.log.PhaseTransition(tenantID.String(), agentID.String(), applied.FromPhase, applied.ToPhase, string(applied.Kind))
	s.bus.Publish(ctx, events.PhaseChanged{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		AgentID:   agentID,
		FromPhase: applied.FromPhase,
		ToPhase:   applied.ToPhase,
		Kind:      string(applied.Kind),
	})
	return nil
}

// --- Queries ---

func (s *Service) GetAgent(ctx context.Context, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error) {
	return s.store.GetState(ctx, tenantID, agentID)
}

func (s *Service) ListAgents(ctx context.Context, tenantID uuid.UUID, inSystemOnly bool) ([]domain.AgentPhaseState, error) {
	return s.store.ListStates(ctx, tenantID, inSystemOnly)
}

func (s *Service) History(ctx context.Context, tenantID, agentID uuid.UUID, limit int) ([]repository.TransitionEvent, error) {
	return s.store.ListTransitions(ctx, tenantID, agentID, limit)
}

// ListActiveTenants returns tenants with an active phase configuration.
func (s *Service) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListActiveTenants(ctx)
}

// --- Sales ---

// RecordSale applies one completed sale to the agent's state machine and
// publishes the resulting transition events. The sale-close orchestrator
// calls this when it does not need to share a transaction.
func (s *Service) RecordSale(ctx context.Context, tenantID, agentID, saleID uuid.UUID, occurredAt time.Time) (domain.AgentPhaseState, error) {
	var next domain.AgentPhaseState
	var applied []domain.Transition

	err := s.store.UpdateAgentLocked(ctx, tenantID, agentID,
		func(state domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error) {
			next, applied = domain.ApplySale(state, saleID, domain.Period(occurredAt))
			return next, applied, nil
		})
	if err != nil {
		return domain.AgentPhaseState{}, err
	}

	s.PublishTransitions(ctx, tenantID, agentID, applied)
	return next, nil
}

// PublishTransitions maps state machine transitions onto domain events. The
// sale-close orchestrator also calls this after committing its transaction.
func (s *Service) PublishTransitions(ctx context.Context, tenantID, agentID uuid.UUID, transitions []domain.Transition) {
	for _, tr := range transitions {
		s.log.PhaseTransition(tenantID.String(), agentID.String(), tr.FromPhase, tr.ToPhase, string(tr.Kind))

		switch tr.Kind {
		case domain.TransitionPrestige:
			prestige := 0
			if tr.PrestigeValue != nil {
				prestige = *tr.PrestigeValue
			}
			s.bus.Publish(ctx, events.PrestigeEarned{
				BaseEvent: events.NewBaseEvent(),
				TenantID:  tenantID,
				AgentID:   agentID,
				Prestige:  prestige,
			})
		case domain.TransitionUltra:
			record := 0
			if tr.UltraValue != nil {
				record = *tr.UltraValue
			}
			s.bus.Publish(ctx, events.UltraRecordSet{
				BaseEvent: events.NewBaseEvent(),
				TenantID:  tenantID,
				AgentID:   agentID,
				Record:    record,
				Month:     tr.Month,
			})
		case domain.TransitionExit:
			s.bus.Publish(ctx, events.AgentExited{
				BaseEvent: events.NewBaseEvent(),
				TenantID:  tenantID,
				AgentID:   agentID,
				Reason:    tr.Reason,
			})
		default:
			s.bus.Publish(ctx, events.PhaseChanged{
				BaseEvent: events.NewBaseEvent(),
				TenantID:  tenantID,
				AgentID:   agentID,
				FromPhase: tr.FromPhase,
				ToPhase:   tr.ToPhase,
				Kind:      string(tr.Kind),
				SaleID:    tr.SaleID,
			})
		}
	}
}

// --- Rollover ---

// Rollover closes the previous month for every in-system agent of a tenant
// and opens newPeriod. A (tenant, period) pair is processed at most once;
// repeats are no-ops.
func (s *Service) Rollover(ctx context.Context, tenantID uuid.UUID, newPeriod string) (int, error) {
	if _, err := time.Parse("2006-01", newPeriod); err != nil {
		return 0, apperr.Validation(fmt.Sprintf("invalid period %q, expected YYYY-MM", newPeriod))
	}

	done, err := s.store.HasRolloverRun(ctx, tenantID, newPeriod)
	if err != nil {
		return 0, err
	}
	if done {
		s.log.RolloverRun(tenantID.String(), newPeriod, 0, true)
		return 0, nil
	}

	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	agentIDs, err := s.store.ListAgentIDs(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	var processed int
	for _, agentID := range agentIDs {
		var applied []domain.Transition
		err := s.store.UpdateAgentLocked(ctx, tenantID, agentID,
			func(state domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error) {
				next, transitions, ok := domain.ApplyRollover(state, cfg, newPeriod)
				if !ok {
					return state, nil, nil
				}
				applied = transitions
				return next, transitions, nil
			})
		if err != nil {
			return processed, err
		}
		processed++
		s.PublishTransitions(ctx, tenantID, agentID, applied)
	}

	if err := s.store.InsertRolloverRun(ctx, repository.RolloverRun{
		TenantID:        tenantID,
		Period:          newPeriod,
		AgentsProcessed: processed,
	}); err != nil {
		return processed, err
	}

	s.log.RolloverRun(tenantID.String(), newPeriod, processed, false)
	s.bus.Publish(ctx, events.RolloverCompleted{
		BaseEvent:       events.NewBaseEvent(),
		TenantID:        tenantID,
		Period:          newPeriod,
		AgentsProcessed: processed,
	})
	return processed, nil
}

// RolloverAll runs the rollover for every tenant with an active phase
// configuration. Tenants are independent, so they run in parallel.
func (s *Service) RolloverAll(ctx context.Context, newPeriod string) error {
	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rolloverConcurrency)
	for _, tenantID := range tenants {
		g.Go(func() error {
			_, err := s.Rollover(gctx, tenantID, newPeriod)
			return err
		})
	}
	return g.Wait()
}
