package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerRow is one immutable commission entry for a sale participant.
// The snapshot is write-once; only EnabledAmountCents moves afterwards.
type LedgerRow struct {
	ID                 uuid.UUID
	SaleID             uuid.UUID
	TenantID           uuid.UUID
	ParticipantType    ParticipantType
	ParticipantID      *uuid.UUID
	Scenario           Scenario
	PropertyKind       PropertyKind
	Snapshot           Computed
	GrossAmountCents   int64
	EnabledAmountCents int64
	IsOverride         bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SaleCollection tracks how much of the expected company-side total has
// actually been collected for a sale.
type SaleCollection struct {
	SaleID         uuid.UUID
	TenantID       uuid.UUID
	ExpectedCents  int64
	CollectedCents int64
	UpdatedAt      time.Time
}

// Adjustment kinds for the enablement audit trail.
const (
	AdjustmentEnablement = "enablement"
	AdjustmentClawback   = "clawback"
)

// Adjustment records one enabled-amount change on a ledger row.
type Adjustment struct {
	ID                   uuid.UUID
	CommissionID         uuid.UUID
	Kind                 string
	PreviousEnabledCents int64
	NewEnabledCents      int64
	Reason               string
	CreatedAt            time.Time
}
