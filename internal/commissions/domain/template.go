// Package domain provides commission template rules and the pure
// distribution calculator used at sale-close time.
package domain

import (
	"fmt"
	"math"

	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
)

// PropertyKind distinguishes how a property is marketed.
type PropertyKind string

const (
	PropertyStandalone PropertyKind = "standalone"
	PropertyProject    PropertyKind = "project"
)

// Scenario identifies the agent's role in the sale.
type Scenario string

const (
	ScenarioCaptureOnly    Scenario = "captureOnly"
	ScenarioSellOnly       Scenario = "sellOnly"
	ScenarioCaptureAndSell Scenario = "captureAndSell"
)

// ParticipantType identifies who a ledger row pays.
type ParticipantType string

const (
	ParticipantSeller   ParticipantType = "seller"
	ParticipantCaptor   ParticipantType = "captor"
	ParticipantMentor   ParticipantType = "mentor"
	ParticipantLeader   ParticipantType = "leader"
	ParticipantReferrer ParticipantType = "referrer"
	ParticipantCompany  ParticipantType = "company"
)

const pctEpsilon = 1e-6

// Split is one captor/seller/company percentage triple. Percentages are of
// the base after fees and must sum to 100.
type Split struct {
	CaptorPct  float64 `json:"captorPct"`
	SellerPct  float64 `json:"sellerPct"`
	CompanyPct float64 `json:"companyPct"`
}

// Fee is one deduction taken from the gross commission before the split.
type Fee struct {
	Role      string `json:"role"`
	Pct       float64 `json:"pct"`
	AppliesTo string `json:"appliesTo,omitempty"`
}

// InternalSplitEntry describes how the company share is divided internally.
// Informational only; it never moves money out of the company share.
type InternalSplitEntry struct {
	Role  string  `json:"role"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

// Template is a commission distribution template. A nil TenantID marks a
// global template visible to every tenant until shadowed by a tenant copy.
type Template struct {
	ID                   uuid.UUID
	TenantID             *uuid.UUID
	Code                 string
	Name                 string
	Distributions        map[PropertyKind]map[Scenario]Split
	FeesBeforeSplit      []Fee
	CompanyInternalSplit []InternalSplitEntry
	IsDefault            bool
}

// Global reports whether the template is shared across tenants.
func (t Template) Global() bool {
	return t.TenantID == nil
}

// SplitFor returns the percentage triple for a property kind and scenario.
func (t Template) SplitFor(kind PropertyKind, scenario Scenario) (Split, bool) {
	byScenario, ok := t.Distributions[kind]
	if !ok {
		return Split{}, false
	}
	split, ok := byScenario[scenario]
	return split, ok
}

// Validate enforces template invariants: every triple sums to 100 and fee
// percentages leave something to split.
func (t Template) Validate() error {
	if t.Code == "" {
		return apperr.Validation("template code is required")
	}
	if len(t.Distributions) == 0 {
		return apperr.Validation("template needs at least one distribution")
	}

	for kind, byScenario := range t.Distributions {
		for scenario, split := range byScenario {
			sum := split.CaptorPct + split.SellerPct + split.CompanyPct
			if math.Abs(sum-100) > pctEpsilon {
				return apperr.Validation(fmt.Sprintf("distribution %s/%s sums to %.2f, must be 100", kind, scenario, sum))
			}
			if split.CaptorPct < 0 || split.SellerPct < 0 || split.CompanyPct < 0 {
				return apperr.Validation(fmt.Sprintf("distribution %s/%s has negative percentages", kind, scenario))
			}
		}
	}

	var feeSum float64
	for _, fee := range t.FeesBeforeSplit {
		if fee.Pct < 0 {
			return apperr.Validation("fee percentages must be non-negative")
		}
		feeSum += fee.Pct
	}
	if feeSum >= 100 {
		return apperr.Validation("fees before split must sum to less than 100")
	}
	return nil
}
