// Package domain provides core business rules for the phase engine:
// tenant configuration invariants and the agent phase state machine.
package domain

import (
	"fmt"

	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
)

// PhaseCount is the number of graded phases. Phase 0 is solitary.
const PhaseCount = 5

// PhaseConfig is the per-tenant gamification configuration.
type PhaseConfig struct {
	TenantID          uuid.UUID
	Active            bool
	PoolPropertyID    *uuid.UUID
	AgentSharePct     int
	CompanySharePct   int
	PhaseWeights      [PhaseCount]int
	Phase1Attempts    int
	MaxSolitaryMonths int
}

// Validate enforces the configuration invariants: the agent/company split
// sums to 100 and lead-share weights never decrease with phase number.
func (c PhaseConfig) Validate() error {
	if c.AgentSharePct < 0 || c.CompanySharePct < 0 {
		return apperr.Validation("share percentages must be non-negative")
	}
	if c.AgentSharePct+c.CompanySharePct != 100 {
		return apperr.Validation("agent and company share percentages must sum to 100")
	}
	for i, w := range c.PhaseWeights {
		if w <= 0 {
			return apperr.Validation(fmt.Sprintf("phase %d weight must be positive", i+1))
		}
		if i > 0 && w < c.PhaseWeights[i-1] {
			return apperr.Validation(fmt.Sprintf("phase %d weight must not be lower than phase %d", i+1, i))
		}
	}
	if c.Phase1Attempts < 1 {
		return apperr.Validation("phase 1 attempts must be at least 1")
	}
	if c.MaxSolitaryMonths < 1 {
		return apperr.Validation("max solitary months must be at least 1")
	}
	return nil
}

// WeightFor returns the lead-share weight for a graded phase (1..5).
// Solitary agents have no weight.
func (c PhaseConfig) WeightFor(phase int) int {
	if phase < 1 || phase > PhaseCount {
		return 0
	}
	return c.PhaseWeights[phase-1]
}

// DefaultConfig returns the configuration a tenant starts with before any
// tuning: equal-step weights, three phase-1 attempts, six solitary months.
func DefaultConfig(tenantID uuid.UUID) PhaseConfig {
	return PhaseConfig{
		TenantID:          tenantID,
		Active:            false,
		AgentSharePct:     50,
		CompanySharePct:   50,
		PhaseWeights:      [PhaseCount]int{1, 2, 3, 4, 5},
		Phase1Attempts:    3,
		MaxSolitaryMonths: 6,
	}
}
