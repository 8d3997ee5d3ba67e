// Package domain implements the weighted lead draw for the allocation pool.
package domain

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Candidate is an agent eligible to receive a pool lead.
type Candidate struct {
	AgentID uuid.UUID
	Phase   int
	Weight  int
}

// PoolLead is a consumer lead waiting in the shared allocation pool.
type PoolLead struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ConsumerName    string
	ConsumerPhone   string
	ConsumerEmail   *string
	Source          *string
	AssignedAgentID *uuid.UUID
	AssignedAt      *time.Time
	CreatedAt       time.Time
}

// Assigned reports whether the lead has already been claimed.
func (l PoolLead) Assigned() bool {
	return l.AssignedAgentID != nil
}

// Draw picks one candidate with probability proportional to its weight.
// Candidates with non-positive weight never win. Returns false when no
// candidate can win.
func Draw(candidates []Candidate, rng *rand.Rand) (Candidate, bool) {
	total := 0
	for _, c := range candidates {
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	if total == 0 {
		return Candidate{}, false
	}

	pick := rng.Intn(total)
	for _, c := range candidates {
		if c.Weight <= 0 {
			continue
		}
		if pick < c.Weight {
			return c, true
		}
		pick -= c.Weight
	}
	// Unreachable while weights sum to total.
	return Candidate{}, false
}
