package service

import (
	"context"
	"time"

	"crm_core_backend/internal/commissions/domain"
	"crm_core_backend/internal/commissions/repository"
	"crm_core_backend/internal/events"
	phasesdomain "crm_core_backend/internal/phases/domain"
	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PhaseStore is the transactional slice of the phases module the sale-close
// flow needs: the phase update and the snapshot insert share one transaction.
type PhaseStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetStateForUpdate(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID) (phasesdomain.AgentPhaseState, error)
	SaveStateTx(ctx context.Context, tx pgx.Tx, state phasesdomain.AgentPhaseState) error
	InsertTransitionsTx(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID, at time.Time, transitions []phasesdomain.Transition) error
}

// TransitionPublisher turns committed phase transitions into domain events.
type TransitionPublisher interface {
	PublishTransitions(ctx context.Context, tenantID, agentID uuid.UUID, transitions []phasesdomain.Transition)
}

// SaleClose carries everything needed to close a sale: who sold, what the
// commission is and which template scenario applies.
type SaleClose struct {
	SaleID                    uuid.UUID
	TenantID                  uuid.UUID
	SellerID                  uuid.UUID
	CaptorID                  *uuid.UUID
	PropertyKind              domain.PropertyKind
	Scenario                  domain.Scenario
	GrossCommissionCents      int64
	CompanyExpectedTotalCents int64
	ExtraFees                 []domain.Fee
	TemplateCode              string
	OccurredAt                time.Time
}

// CloseSale runs the full sale-close flow: resolve the template, compute
// the distribution, advance the seller's phase under a row lock and write
// the immutable snapshot rows in the same transaction.
func (s *Service) CloseSale(ctx context.Context, in SaleClose) ([]domain.LedgerRow, error) {
	if in.GrossCommissionCents <= 0 {
		return nil, apperr.Validation("gross commission must be positive")
	}
	if in.SaleID == uuid.Nil {
		in.SaleID = uuid.New()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now()
	}

	var tpl domain.Template
	var err error
	if in.TemplateCode != "" {
		tpl, err = s.Resolve(ctx, in.TenantID, in.TemplateCode)
	} else {
		tpl, err = s.ResolveForAgent(ctx, in.TenantID, in.SellerID)
	}
	if err != nil {
		return nil, err
	}

	computed, err := domain.ComputeDistribution(in.GrossCommissionCents, in.PropertyKind, in.Scenario, tpl, in.ExtraFees)
	if err != nil {
		return nil, err
	}

	expected := in.CompanyExpectedTotalCents
	if expected <= 0 {
		expected = computed.GrossCents
	}

	tx, err := s.phases.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not start transaction", err)
	}
	defer tx.Rollback(ctx)

	// Phase update first; the snapshot insert is race-free once the agent
	// row is locked.
	state, err := s.phases.GetStateForUpdate(ctx, tx, in.TenantID, in.SellerID)
	if err != nil {
		return nil, err
	}
	nextState, transitions := phasesdomain.ApplySale(state, in.SaleID, phasesdomain.Period(in.OccurredAt))
	if err := s.phases.SaveStateTx(ctx, tx, nextState); err != nil {
		return nil, err
	}
	if err := s.phases.InsertTransitionsTx(ctx, tx, in.TenantID, in.SellerID, in.OccurredAt, transitions); err != nil {
		return nil, err
	}

	rows := buildLedgerRows(in, computed)
	if err := s.store.InsertCollectionTx(ctx, tx, domain.SaleCollection{
		SaleID:        in.SaleID,
		TenantID:      in.TenantID,
		ExpectedCents: expected,
	}); err != nil {
		return nil, err
	}
	if err := s.store.InsertRowsTx(ctx, tx, rows); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not commit sale close", err)
	}

	s.publisher.PublishTransitions(ctx, in.TenantID, in.SellerID, transitions)
	s.bus.Publish(ctx, events.CommissionLedgerCreated{
		BaseEvent:        events.NewBaseEvent(),
		TenantID:         in.TenantID,
		SaleID:           in.SaleID,
		GrossAmountCents: in.GrossCommissionCents,
		Participants:     len(rows),
	})

	return s.store.ListBySale(ctx, in.TenantID, in.SaleID)
}

// buildLedgerRows writes one row per non-zero participant. The captor row
// falls back to the seller for capture-and-sell deals without a separate
// captor.
func buildLedgerRows(in SaleClose, computed domain.Computed) []domain.LedgerRow {
	base := domain.LedgerRow{
		SaleID:       in.SaleID,
		TenantID:     in.TenantID,
		Scenario:     in.Scenario,
		PropertyKind: in.PropertyKind,
		Snapshot:     computed,
	}

	var rows []domain.LedgerRow

	if computed.CaptorCents > 0 {
		captor := base
		captor.ParticipantType = domain.ParticipantCaptor
		captor.GrossAmountCents = computed.CaptorCents
		if in.CaptorID != nil {
			captor.ParticipantID = in.CaptorID
		} else if in.Scenario == domain.ScenarioCaptureAndSell {
			sellerID := in.SellerID
			captor.ParticipantID = &sellerID
		}
		rows = append(rows, captor)
	}

	if computed.SellerCents > 0 {
		seller := base
		seller.ParticipantType = domain.ParticipantSeller
		sellerID := in.SellerID
		seller.ParticipantID = &sellerID
		seller.GrossAmountCents = computed.SellerCents
		rows = append(rows, seller)
	}

	if computed.CompanyCents > 0 {
		company := base
		company.ParticipantType = domain.ParticipantCompany
		company.GrossAmountCents = computed.CompanyCents
		rows = append(rows, company)
	}

	for _, fee := range computed.Fees {
		if fee.AmountCents <= 0 {
			continue
		}
		referrer := base
		referrer.ParticipantType = domain.ParticipantReferrer
		referrer.GrossAmountCents = fee.AmountCents
		rows = append(rows, referrer)
	}

	return rows
}

// RecordCollection sets the company-side collected-to-date amount for a
// sale and recomputes every ledger row's enabled amount proportionally.
// Enabled amounts only move down when clawback is explicitly requested.
func (s *Service) RecordCollection(ctx context.Context, tenantID, saleID uuid.UUID, collectedToDateCents int64, clawback bool, reason string) ([]domain.LedgerRow, error) {
	if collectedToDateCents < 0 {
		return nil, apperr.Validation("collected amount must be non-negative")
	}

	var ratio float64
	err := s.store.UpdateSaleLocked(ctx, tenantID, saleID,
		func(sc domain.SaleCollection, rows []domain.LedgerRow) (domain.SaleCollection, []repository.RowUpdate, []domain.Adjustment, error) {
			if collectedToDateCents < sc.CollectedCents && !clawback {
				return sc, nil, nil, apperr.Conflict("collected amount can only decrease with an explicit clawback")
			}
			sc.CollectedCents = collectedToDateCents

			if sc.ExpectedCents > 0 {
				ratio = float64(sc.CollectedCents) / float64(sc.ExpectedCents)
				if ratio > 1 {
					ratio = 1
				}
			}

			var updates []repository.RowUpdate
			var adjustments []domain.Adjustment
			for _, row := range rows {
				next := domain.EnabledAmount(row.GrossAmountCents, sc.CollectedCents, sc.ExpectedCents)
				if next == row.EnabledAmountCents {
					continue
				}
				kind := domain.AdjustmentEnablement
				if next < row.EnabledAmountCents {
					kind = domain.AdjustmentClawback
				}
				updates = append(updates, repository.RowUpdate{RowID: row.ID, NewEnabledCents: next})
				adjustments = append(adjustments, domain.Adjustment{
					CommissionID:         row.ID,
					Kind:                 kind,
					PreviousEnabledCents: row.EnabledAmountCents,
					NewEnabledCents:      next,
					Reason:               reason,
				})
			}
			return sc, updates, adjustments, nil
		})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.CommissionEnablementUpdated{
		BaseEvent:    events.NewBaseEvent(),
		TenantID:     tenantID,
		SaleID:       saleID,
		EnabledRatio: ratio,
	})

	return s.store.ListBySale(ctx, tenantID, saleID)
}
