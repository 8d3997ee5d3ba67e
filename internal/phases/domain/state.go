package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase bounds. Phase 0 is reserved for solitary agents.
const (
	SolitaryPhase = 0
	MinPhase      = 1
	MaxPhase      = 5
)

// PrestigeSalesTarget is the number of phase-5 sales that earn one prestige point.
const PrestigeSalesTarget = 3

// TransitionKind identifies the type of a phase transition event.
type TransitionKind string

const (
	TransitionJoin          TransitionKind = "join"
	TransitionAdvance       TransitionKind = "advance"
	TransitionDemote        TransitionKind = "demote"
	TransitionEnterSolitary TransitionKind = "enter_solitary"
	TransitionExitSolitary  TransitionKind = "exit_solitary"
	TransitionPrestige      TransitionKind = "prestige"
	TransitionUltra         TransitionKind = "ultra"
	TransitionExit          TransitionKind = "exit"
)

// AgentPhaseState is the per-(tenant, agent) gamification state.
// It is mutated only through the pure transition functions below; the
// repository persists whatever they return.
type AgentPhaseState struct {
	TenantID                  uuid.UUID
	AgentID                   uuid.UUID
	InSystem                  bool
	Phase                     int
	Solitary                  bool
	Phase1AttemptsUsed        int
	SolitaryMonthsWithoutSale int
	Prestige                  int
	SalesTowardNextPrestige   int
	UltraRecord               int
	UltraMonth                string
	SalesThisMonth            int
	TrackedMonth              string
	JoinedAt                  *time.Time
}

// Transition describes a single state machine step for the audit trail.
type Transition struct {
	FromPhase     int
	ToPhase       int
	Kind          TransitionKind
	Reason        string
	SaleID        *uuid.UUID
	PrestigeValue *int
	UltraValue    *int
	Month         string
}

// Period formats a time as the YYYY-MM period strings used throughout the
// phase engine (tracked_month, ultra_month, rollover runs).
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NewAgentState returns the state an agent holds right after admission:
// phase 1, counters zeroed, tracking the given month.
func NewAgentState(tenantID, agentID uuid.UUID, month string, now time.Time) (AgentPhaseState, Transition) {
	joined := now.UTC()
	state := AgentPhaseState{
		TenantID:     tenantID,
		AgentID:      agentID,
		InSystem:     true,
		Phase:        MinPhase,
		TrackedMonth: month,
		JoinedAt:     &joined,
	}
	return state, Transition{
		FromPhase: SolitaryPhase,
		ToPhase:   MinPhase,
		Kind:      TransitionJoin,
		Reason:    "admitted into phase system",
	}
}

// ApplySale advances the state machine for one completed sale.
//
// Phase 1-4 agents advance one phase. Phase 5 agents accumulate prestige
// credit, earning a point every PrestigeSalesTarget sales. Solitary agents
// only reset their idle counter; re-entry to the graded phases is an
// explicit administrative action.
func ApplySale(state AgentPhaseState, saleID uuid.UUID, month string) (AgentPhaseState, []Transition) {
	if !state.InSystem {
		return state, nil
	}

	// A sale arriving before the rollover job has opened the new month
	// still counts toward the month it happened in.
	if state.TrackedMonth != month {
		state.TrackedMonth = month
		state.SalesThisMonth = 0
	}
	state.SalesThisMonth++

	if state.Solitary {
		state.SolitaryMonthsWithoutSale = 0
		return state, nil
	}

	var transitions []Transition

	switch {
	case state.Phase < MaxPhase:
		from := state.Phase
		state.Phase++
		if from == MinPhase {
			state.Phase1AttemptsUsed = 0
		}
		transitions = append(transitions, Transition{
			FromPhase: from,
			ToPhase:   state.Phase,
			Kind:      TransitionAdvance,
			Reason:    "sale completed",
			SaleID:    &saleID,
		})
	default:
		state.SalesTowardNextPrestige++
		if state.SalesTowardNextPrestige >= PrestigeSalesTarget {
			state.SalesTowardNextPrestige = 0
			state.Prestige++
			prestige := state.Prestige
			transitions = append(transitions, Transition{
				FromPhase:     MaxPhase,
				ToPhase:       MaxPhase,
				Kind:          TransitionPrestige,
				Reason:        "third sale completed at phase 5",
				SaleID:        &saleID,
				PrestigeValue: &prestige,
			})
		}
	}

	return state, transitions
}

// ApplyRollover closes the tracked month and opens newPeriod.
//
// The returned bool is false when the state already tracks newPeriod, which
// makes re-running a rollover for an already processed period a no-op.
func ApplyRollover(state AgentPhaseState, cfg PhaseConfig, newPeriod string) (AgentPhaseState, []Transition, bool) {
	if !state.InSystem || state.TrackedMonth == newPeriod {
		return state, nil, false
	}

	var transitions []Transition

	if state.SalesThisMonth > state.UltraRecord {
		state.UltraRecord = state.SalesThisMonth
		state.UltraMonth = state.TrackedMonth
		record := state.UltraRecord
		transitions = append(transitions, Transition{
			FromPhase:  state.Phase,
			ToPhase:    state.Phase,
			Kind:       TransitionUltra,
			Reason:     "monthly sales record beaten",
			UltraValue: &record,
			Month:      state.UltraMonth,
		})
	}

	if state.SalesThisMonth == 0 {
		transitions = append(transitions, applyIdleMonth(&state, cfg)...)
	}

	state.SalesThisMonth = 0
	state.TrackedMonth = newPeriod

	return state, transitions, true
}

// applyIdleMonth handles a closing month with zero sales: attempt burn at
// phase 1, one-level demotion at phases 2-5, idle accrual and eventual exit
// while solitary.
func applyIdleMonth(state *AgentPhaseState, cfg PhaseConfig) []Transition {
	if state.Solitary {
		state.SolitaryMonthsWithoutSale++
		if state.SolitaryMonthsWithoutSale >= cfg.MaxSolitaryMonths {
			state.InSystem = false
			return []Transition{{
				FromPhase: SolitaryPhase,
				ToPhase:   SolitaryPhase,
				Kind:      TransitionExit,
				Reason:    "max solitary months without a sale reached",
			}}
		}
		return nil
	}

	if state.Phase == MinPhase {
		state.Phase1AttemptsUsed++
		if state.Phase1AttemptsUsed >= cfg.Phase1Attempts {
			state.Phase1AttemptsUsed = 0
			state.Phase = SolitaryPhase
			state.Solitary = true
			state.SolitaryMonthsWithoutSale = 0
			return []Transition{{
				FromPhase: MinPhase,
				ToPhase:   SolitaryPhase,
				Kind:      TransitionEnterSolitary,
				Reason:    "phase 1 attempts exhausted without a sale",
			}}
		}
		return nil
	}

	from := state.Phase
	state.Phase--
	return []Transition{{
		FromPhase: from,
		ToPhase:   state.Phase,
		Kind:      TransitionDemote,
		Reason:    "no sales during tracked month",
	}}
}

// Readmit moves a solitary agent back to phase 1. This is the explicit
// administrative re-entry path; sales alone never leave solitary.
func Readmit(state AgentPhaseState) (AgentPhaseState, Transition, bool) {
	if !state.InSystem || !state.Solitary {
		return state, Transition{}, false
	}

	state.Solitary = false
	state.Phase = MinPhase
	state.Phase1AttemptsUsed = 0
	state.SolitaryMonthsWithoutSale = 0

	return state, Transition{
		FromPhase: SolitaryPhase,
		ToPhase:   MinPhase,
		Kind:      TransitionExitSolitary,
		Reason:    "administrative re-entry",
	}, true
}
