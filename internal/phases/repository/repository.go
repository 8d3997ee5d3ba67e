// Package repository provides PostgreSQL persistence for the phase engine.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_core_backend/internal/phases/domain"
	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func dbErr(op string, err error) error {
	return apperr.Wrap(apperr.KindInternal, "database operation failed", err).WithOp(op)
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx exposes transaction control to orchestrators that combine a phase
// update with writes owned by other modules.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.BeginTx(ctx, pgx.TxOptions{})
}

// --- Config ---

const configColumns = `tenant_id, active, pool_property_id, agent_share_pct, company_share_pct,
	phase_weights, phase1_attempts, max_solitary_months`

func (r *Repository) GetConfig(ctx context.Context, tenantID uuid.UUID) (domain.PhaseConfig, error) {
	const op = "phases.repository.GetConfig"

	query := fmt.Sprintf(`SELECT %s FROM phase_configs WHERE tenant_id = $1`, configColumns)

	var cfg domain.PhaseConfig
	var weights []int32
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&cfg.TenantID, &cfg.Active, &cfg.PoolPropertyID,
		&cfg.AgentSharePct, &cfg.CompanySharePct,
		&weights, &cfg.Phase1Attempts, &cfg.MaxSolitaryMonths,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PhaseConfig{}, apperr.NotFound("phase configuration not found")
	}
	if err != nil {
		return domain.PhaseConfig{}, dbErr(op, err)
	}

	if len(weights) != domain.PhaseCount {
		return domain.PhaseConfig{}, dbErr(op, fmt.Errorf("phase_weights has %d entries", len(weights)))
	}
	for i, w := range weights {
		cfg.PhaseWeights[i] = int(w)
	}
	return cfg, nil
}

func (r *Repository) UpsertConfig(ctx context.Context, cfg domain.PhaseConfig) error {
	const op = "phases.repository.UpsertConfig"

	weights := make([]int32, domain.PhaseCount)
	for i, w := range cfg.PhaseWeights {
		weights[i] = int32(w)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO phase_configs (tenant_id, active, pool_property_id, agent_share_pct,
			company_share_pct, phase_weights, phase1_attempts, max_solitary_months)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			active = EXCLUDED.active,
			pool_property_id = EXCLUDED.pool_property_id,
			agent_share_pct = EXCLUDED.agent_share_pct,
			company_share_pct = EXCLUDED.company_share_pct,
			phase_weights = EXCLUDED.phase_weights,
			phase1_attempts = EXCLUDED.phase1_attempts,
			max_solitary_months = EXCLUDED.max_solitary_months,
			updated_at = now()`,
		cfg.TenantID, cfg.Active, cfg.PoolPropertyID, cfg.AgentSharePct,
		cfg.CompanySharePct, weights, cfg.Phase1Attempts, cfg.MaxSolitaryMonths,
	)
	if err != nil {
		return dbErr(op, err)
	}
	return nil
}

func (r *Repository) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	const op = "phases.repository.ListActiveTenants"

	rows, err := r.db.Query(ctx, `SELECT tenant_id FROM phase_configs WHERE active = true`)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr(op, err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// --- Agent state ---

const stateColumns = `tenant_id, agent_id, in_system, phase, solitary, phase1_attempts_used,
	solitary_months_without_sale, prestige, sales_toward_next_prestige,
	ultra_record, ultra_month, sales_this_month, tracked_month, joined_at`

func scanState(row pgx.Row) (domain.AgentPhaseState, error) {
	var s domain.AgentPhaseState
	err := row.Scan(
		&s.TenantID, &s.AgentID, &s.InSystem, &s.Phase, &s.Solitary,
		&s.Phase1AttemptsUsed, &s.SolitaryMonthsWithoutSale,
		&s.Prestige, &s.SalesTowardNextPrestige,
		&s.UltraRecord, &s.UltraMonth, &s.SalesThisMonth, &s.TrackedMonth, &s.JoinedAt,
	)
	return s, err
}

func (r *Repository) GetState(ctx context.Context, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error) {
	const op = "phases.repository.GetState"

	query := fmt.Sprintf(`SELECT %s FROM agent_phase_states WHERE tenant_id = $1 AND agent_id = $2`, stateColumns)

	state, err := scanState(r.db.QueryRow(ctx, query, tenantID, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AgentPhaseState{}, apperr.NotFound("agent not found in phase system")
	}
	if err != nil {
		return domain.AgentPhaseState{}, dbErr(op, err)
	}
	return state, nil
}

// GetStateForUpdate locks the agent row for the duration of the caller's
// transaction. Concurrent sale and rollover updates serialize on this lock.
func (r *Repository) GetStateForUpdate(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error) {
	const op = "phases.repository.GetStateForUpdate"

	query := fmt.Sprintf(`SELECT %s FROM agent_phase_states WHERE tenant_id = $1 AND agent_id = $2 FOR UPDATE`, stateColumns)

	state, err := scanState(tx.QueryRow(ctx, query, tenantID, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AgentPhaseState{}, apperr.NotFound("agent not found in phase system")
	}
	if err != nil {
		return domain.AgentPhaseState{}, dbErr(op, err)
	}
	return state, nil
}

func (r *Repository) ListStates(ctx context.Context, tenantID uuid.UUID, inSystemOnly bool) ([]domain.AgentPhaseState, error) {
	const op = "phases.repository.ListStates"

	query := fmt.Sprintf(`SELECT %s FROM agent_phase_states WHERE tenant_id = $1`, stateColumns)
	if inSystemOnly {
		query += ` AND in_system = true`
	}
	query += ` ORDER BY phase DESC, prestige DESC, agent_id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var states []domain.AgentPhaseState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, dbErr(op, err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (r *Repository) ListAgentIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	const op = "phases.repository.ListAgentIDs"

	rows, err := r.db.Query(ctx,
		`SELECT agent_id FROM agent_phase_states WHERE tenant_id = $1 AND in_system = true ORDER BY agent_id`,
		tenantID)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr(op, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) CreateState(ctx context.Context, state domain.AgentPhaseState, transition domain.Transition) error {
	const op = "phases.repository.CreateState"

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return dbErr(op, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_phase_states (tenant_id, agent_id, in_system, phase, solitary,
			phase1_attempts_used, solitary_months_without_sale, prestige,
			sales_toward_next_prestige, ultra_record, ultra_month,
			sales_this_month, tracked_month, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		state.TenantID, state.AgentID, state.InSystem, state.Phase, state.Solitary,
		state.Phase1AttemptsUsed, state.SolitaryMonthsWithoutSale, state.Prestige,
		state.SalesTowardNextPrestige, state.UltraRecord, state.UltraMonth,
		state.SalesThisMonth, state.TrackedMonth, state.JoinedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("agent is already in the phase system")
		}
		return dbErr(op, err)
	}

	if err := insertTransitions(ctx, tx, state.TenantID, state.AgentID, []domain.Transition{transition}); err != nil {
		return dbErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return dbErr(op, err)
	}
	return nil
}

func (r *Repository) SetInSystem(ctx context.Context, tenantID, agentID uuid.UUID, inSystem bool) error {
	const op = "phases.repository.SetInSystem"

	tag, err := r.db.Exec(ctx, `
		UPDATE agent_phase_states SET in_system = $3, updated_at = now()
		WHERE tenant_id = $1 AND agent_id = $2`,
		tenantID, agentID, inSystem)
	if err != nil {
		return dbErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent not found in phase system")
	}
	return nil
}

// UpdateAgentLocked applies fn under a row lock and persists the result
// together with any transition events, all in one transaction.
func (r *Repository) UpdateAgentLocked(ctx context.Context, tenantID, agentID uuid.UUID,
	fn func(domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error)) error {
	const op = "phases.repository.UpdateAgentLocked"

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return dbErr(op, err)
	}
	defer tx.Rollback(ctx)

	state, err := r.GetStateForUpdate(ctx, tx, tenantID, agentID)
	if err != nil {
		return err
	}

	next, transitions, err := fn(state)
	if err != nil {
		return err
	}

	if err := r.SaveStateTx(ctx, tx, next); err != nil {
		return err
	}
	if err := insertTransitions(ctx, tx, tenantID, agentID, transitions); err != nil {
		return dbErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return dbErr(op, err)
	}
	return nil
}

func (r *Repository) SaveStateTx(ctx context.Context, tx pgx.Tx, state domain.AgentPhaseState) error {
	const op = "phases.repository.SaveStateTx"

	tag, err := tx.Exec(ctx, `
		UPDATE agent_phase_states SET
			in_system = $3, phase = $4, solitary = $5, phase1_attempts_used = $6,
			solitary_months_without_sale = $7, prestige = $8, sales_toward_next_prestige = $9,
			ultra_record = $10, ultra_month = $11, sales_this_month = $12,
			tracked_month = $13, updated_at = now()
		WHERE tenant_id = $1 AND agent_id = $2`,
		state.TenantID, state.AgentID, state.InSystem, state.Phase, state.Solitary,
		state.Phase1AttemptsUsed, state.SolitaryMonthsWithoutSale, state.Prestige,
		state.SalesTowardNextPrestige, state.UltraRecord, state.UltraMonth,
		state.SalesThisMonth, state.TrackedMonth,
	)
	if err != nil {
		return dbErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent not found in phase system")
	}
	return nil
}

func (r *Repository) InsertTransitionsTx(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID, _ time.Time, transitions []domain.Transition) error {
	const op = "phases.repository.InsertTransitionsTx"
	if err := insertTransitions(ctx, tx, tenantID, agentID, transitions); err != nil {
		return dbErr(op, err)
	}
	return nil
}

func insertTransitions(ctx context.Context, tx pgx.Tx, tenantID, agentID uuid.UUID, transitions []domain.Transition) error {
	for _, tr := range transitions {
		_, err := tx.Exec(ctx, `
			INSERT INTO phase_transition_events (tenant_id, agent_id, from_phase, to_phase,
				kind, reason, sale_id, prestige_value, ultra_value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			tenantID, agentID, tr.FromPhase, tr.ToPhase,
			string(tr.Kind), tr.Reason, tr.SaleID, tr.PrestigeValue, tr.UltraValue,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ListTransitions(ctx context.Context, tenantID, agentID uuid.UUID, limit int) ([]TransitionEvent, error) {
	const op = "phases.repository.ListTransitions"

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, agent_id, from_phase, to_phase, kind, reason,
			sale_id, prestige_value, ultra_value, created_at
		FROM phase_transition_events
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		tenantID, agentID, limit)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var events []TransitionEvent
	for rows.Next() {
		var ev TransitionEvent
		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.AgentID, &ev.FromPhase, &ev.ToPhase,
			&ev.Kind, &ev.Reason, &ev.SaleID, &ev.PrestigeValue, &ev.UltraValue, &ev.CreatedAt,
		); err != nil {
			return nil, dbErr(op, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Rollover runs ---

func (r *Repository) HasRolloverRun(ctx context.Context, tenantID uuid.UUID, period string) (bool, error) {
	const op = "phases.repository.HasRolloverRun"

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM phase_rollover_runs WHERE tenant_id = $1 AND period = $2)`,
		tenantID, period).Scan(&exists)
	if err != nil {
		return false, dbErr(op, err)
	}
	return exists, nil
}

func (r *Repository) InsertRolloverRun(ctx context.Context, run RolloverRun) error {
	const op = "phases.repository.InsertRolloverRun"

	_, err := r.db.Exec(ctx, `
		INSERT INTO phase_rollover_runs (tenant_id, period, agents_processed)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, period) DO NOTHING`,
		run.TenantID, run.Period, run.AgentsProcessed)
	if err != nil {
		return dbErr(op, err)
	}
	return nil
}
