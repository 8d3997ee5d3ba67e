package repository

import (
	"context"
	"encoding/json"
	"errors"

	"crm_core_backend/internal/commissions/domain"
	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RowUpdate is one enabled-amount change produced by the enablement rule.
type RowUpdate struct {
	RowID           uuid.UUID
	NewEnabledCents int64
}

// LedgerStore is the persistence surface for the commission ledger.
type LedgerStore interface {
	InsertRowsTx(ctx context.Context, tx pgx.Tx, rows []domain.LedgerRow) error
	InsertCollectionTx(ctx context.Context, tx pgx.Tx, sc domain.SaleCollection) error
	ListBySale(ctx context.Context, tenantID, saleID uuid.UUID) ([]domain.LedgerRow, error)
	GetCollection(ctx context.Context, tenantID, saleID uuid.UUID) (domain.SaleCollection, error)
	ListAdjustments(ctx context.Context, commissionID uuid.UUID) ([]domain.Adjustment, error)

	// UpdateSaleLocked runs fn with the sale's collection row and ledger rows
	// locked, then persists the returned collection, row updates and
	// adjustments in the same transaction.
	UpdateSaleLocked(ctx context.Context, tenantID, saleID uuid.UUID,
		fn func(domain.SaleCollection, []domain.LedgerRow) (domain.SaleCollection, []RowUpdate, []domain.Adjustment, error)) error
}

const ledgerColumns = `id, sale_id, tenant_id, participant_type, participant_id, scenario,
	property_kind, snapshot_distribution, gross_amount_cents, enabled_amount_cents,
	is_override, created_at, updated_at`

func scanLedgerRow(row pgx.Row) (domain.LedgerRow, error) {
	var lr domain.LedgerRow
	var snapshot []byte
	if err := row.Scan(
		&lr.ID, &lr.SaleID, &lr.TenantID, &lr.ParticipantType, &lr.ParticipantID,
		&lr.Scenario, &lr.PropertyKind, &snapshot, &lr.GrossAmountCents,
		&lr.EnabledAmountCents, &lr.IsOverride, &lr.CreatedAt, &lr.UpdatedAt,
	); err != nil {
		return domain.LedgerRow{}, err
	}
	if err := json.Unmarshal(snapshot, &lr.Snapshot); err != nil {
		return domain.LedgerRow{}, err
	}
	return lr, nil
}

// InsertRowsTx writes the immutable snapshot rows for a sale. Caller owns
// the transaction so the phase update and the ledger commit together.
func (r *Repository) InsertRowsTx(ctx context.Context, tx pgx.Tx, rows []domain.LedgerRow) error {
	const op = "commissions.repository.InsertRowsTx"

	for _, lr := range rows {
		snapshot, err := json.Marshal(lr.Snapshot)
		if err != nil {
			return dbErr(op, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO commissions (sale_id, tenant_id, participant_type, participant_id,
				scenario, property_kind, snapshot_distribution, gross_amount_cents,
				enabled_amount_cents, is_override)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			lr.SaleID, lr.TenantID, string(lr.ParticipantType), lr.ParticipantID,
			string(lr.Scenario), string(lr.PropertyKind), snapshot, lr.GrossAmountCents,
			lr.EnabledAmountCents, lr.IsOverride,
		)
		if err != nil {
			return dbErr(op, err)
		}
	}
	return nil
}

// InsertCollectionTx opens collection tracking for a sale. One ledger per
// sale: a second close of the same sale is rejected here.
func (r *Repository) InsertCollectionTx(ctx context.Context, tx pgx.Tx, sc domain.SaleCollection) error {
	const op = "commissions.repository.InsertCollectionTx"

	tag, err := tx.Exec(ctx, `
		INSERT INTO sale_collections (sale_id, tenant_id, company_expected_total_cents, company_collected_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sale_id) DO NOTHING`,
		sc.SaleID, sc.TenantID, sc.ExpectedCents, sc.CollectedCents)
	if err != nil {
		return dbErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("commission ledger already exists for this sale")
	}
	return nil
}

func (r *Repository) ListBySale(ctx context.Context, tenantID, saleID uuid.UUID) ([]domain.LedgerRow, error) {
	const op = "commissions.repository.ListBySale"

	rows, err := r.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM commissions
		WHERE tenant_id = $1 AND sale_id = $2
		ORDER BY created_at, participant_type`,
		tenantID, saleID)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var out []domain.LedgerRow
	for rows.Next() {
		lr, err := scanLedgerRow(rows)
		if err != nil {
			return nil, dbErr(op, err)
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

func (r *Repository) GetCollection(ctx context.Context, tenantID, saleID uuid.UUID) (domain.SaleCollection, error) {
	const op = "commissions.repository.GetCollection"

	var sc domain.SaleCollection
	err := r.db.QueryRow(ctx, `
		SELECT sale_id, tenant_id, company_expected_total_cents, company_collected_cents, updated_at
		FROM sale_collections
		WHERE tenant_id = $1 AND sale_id = $2`,
		tenantID, saleID).Scan(&sc.SaleID, &sc.TenantID, &sc.ExpectedCents, &sc.CollectedCents, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SaleCollection{}, apperr.NotFound("sale not found in commission ledger")
	}
	if err != nil {
		return domain.SaleCollection{}, dbErr(op, err)
	}
	return sc, nil
}

func (r *Repository) ListAdjustments(ctx context.Context, commissionID uuid.UUID) ([]domain.Adjustment, error) {
	const op = "commissions.repository.ListAdjustments"

	rows, err := r.db.Query(ctx, `
		SELECT id, commission_id, kind, previous_enabled_cents, new_enabled_cents, reason, created_at
		FROM commission_adjustments
		WHERE commission_id = $1
		ORDER BY created_at`,
		commissionID)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var out []domain.Adjustment
	for rows.Next() {
		var a domain.Adjustment
		if err := rows.Scan(&a.ID, &a.CommissionID, &a.Kind, &a.PreviousEnabledCents,
			&a.NewEnabledCents, &a.Reason, &a.CreatedAt); err != nil {
			return nil, dbErr(op, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateSaleLocked serializes enablement updates per sale.
func (r *Repository) UpdateSaleLocked(ctx context.Context, tenantID, saleID uuid.UUID,
	fn func(domain.SaleCollection, []domain.LedgerRow) (domain.SaleCollection, []RowUpdate, []domain.Adjustment, error)) error {
	const op = "commissions.repository.UpdateSaleLocked"

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return dbErr(op, err)
	}
	defer tx.Rollback(ctx)

	var sc domain.SaleCollection
	err = tx.QueryRow(ctx, `
		SELECT sale_id, tenant_id, company_expected_total_cents, company_collected_cents, updated_at
		FROM sale_collections
		WHERE tenant_id = $1 AND sale_id = $2
		FOR UPDATE`,
		tenantID, saleID).Scan(&sc.SaleID, &sc.TenantID, &sc.ExpectedCents, &sc.CollectedCents, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("sale not found in commission ledger")
	}
	if err != nil {
		return dbErr(op, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM commissions
		WHERE tenant_id = $1 AND sale_id = $2
		ORDER BY created_at, participant_type
		FOR UPDATE`,
		tenantID, saleID)
	if err != nil {
		return dbErr(op, err)
	}

	var ledger []domain.LedgerRow
	for rows.Next() {
		lr, err := scanLedgerRow(rows)
		if err != nil {
			rows.Close()
			return dbErr(op, err)
		}
		ledger = append(ledger, lr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dbErr(op, err)
	}

	next, updates, adjustments, err := fn(sc, ledger)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sale_collections
		SET company_collected_cents = $3, company_expected_total_cents = $4, updated_at = now()
		WHERE tenant_id = $1 AND sale_id = $2`,
		tenantID, saleID, next.CollectedCents, next.ExpectedCents)
	if err != nil {
		return dbErr(op, err)
	}

	for _, u := range updates {
		_, err = tx.Exec(ctx, `
			UPDATE commissions SET enabled_amount_cents = $2, updated_at = now()
			WHERE id = $1`,
			u.RowID, u.NewEnabledCents)
		if err != nil {
			return dbErr(op, err)
		}
	}

	for _, a := range adjustments {
		_, err = tx.Exec(ctx, `
			INSERT INTO commission_adjustments (commission_id, kind, previous_enabled_cents, new_enabled_cents, reason)
			VALUES ($1, $2, $3, $4, $5)`,
			a.CommissionID, a.Kind, a.PreviousEnabledCents, a.NewEnabledCents, a.Reason)
		if err != nil {
			return dbErr(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return dbErr(op, err)
	}
	return nil
}

var _ LedgerStore = (*Repository)(nil)
