// Package repository implements productivity persistence on Postgres.
package repository

import (
	"context"
	"errors"
	"time"

	"crm_core_backend/internal/productivity/domain"
	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence contract the productivity service depends on.
type Store interface {
	GetTenantGoals(ctx context.Context, tenantID uuid.UUID) (domain.GoalSet, error)
	UpsertTenantGoals(ctx context.Context, tenantID uuid.UUID, goals domain.GoalSet) error
	GetOverride(ctx context.Context, tenantID, agentID uuid.UUID, period string) (domain.GoalSet, error)
	UpsertOverride(ctx context.Context, tenantID, agentID uuid.UUID, period string, goals domain.GoalSet) error
	GetSummary(ctx context.Context, tenantID, agentID uuid.UUID, period, granularity string) (domain.Summary, error)
	UpsertSummary(ctx context.Context, s domain.Summary) error
	CountActivities(ctx context.Context, tenantID, agentID uuid.UUID, from, to time.Time) (domain.Counters, error)
}

// Repository is the pgx-backed Store implementation.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a productivity repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func dbErr(op string, err error) error {
	return apperr.Wrap(apperr.KindInternal, "database operation failed", err).WithOp(op)
}

const goalColumns = `contacts_goal, captures_goal, sales_goal, calls_goal, visits_goal, proposals_goal`

func scanGoals(row pgx.Row) (domain.GoalSet, error) {
	var g domain.GoalSet
	err := row.Scan(&g.Contacts, &g.Captures, &g.Sales, &g.Calls, &g.Visits, &g.Proposals)
	return g, err
}

// GetTenantGoals returns the tenant's default goal set.
func (r *Repository) GetTenantGoals(ctx context.Context, tenantID uuid.UUID) (domain.GoalSet, error) {
	const op = "productivity.GetTenantGoals"

	goals, err := scanGoals(r.db.QueryRow(ctx,
		`SELECT `+goalColumns+` FROM productivity_goals WHERE tenant_id = $1`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GoalSet{}, apperr.NotFound("no productivity goals configured").WithOp(op)
	}
	if err != nil {
		return domain.GoalSet{}, dbErr(op, err)
	}
	return goals, nil
}

// UpsertTenantGoals replaces the tenant's default goal set.
func (r *Repository) UpsertTenantGoals(ctx context.Context, tenantID uuid.UUID, g domain.GoalSet) error {
	const op = "productivity.UpsertTenantGoals"

	_, err := r.db.Exec(ctx, `
		INSERT INTO productivity_goals (tenant_id, `+goalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			contacts_goal = EXCLUDED.contacts_goal,
			captures_goal = EXCLUDED.captures_goal,
			sales_goal = EXCLUDED.sales_goal,
			calls_goal = EXCLUDED.calls_goal,
			visits_goal = EXCLUDED.visits_goal,
			proposals_goal = EXCLUDED.proposals_goal,
			updated_at = now()`,
		tenantID, g.Contacts, g.Captures, g.Sales, g.Calls, g.Visits, g.Proposals)
	if err != nil {
		return dbErr(op, err)
	}
	return nil
}

// GetOverride returns the agent-period goal override.
func (r *Repository) GetOverride(ctx context.Context, tenantID, agentID uuid.UUID, period string) (domain.GoalSet, error) {
	const op = "productivity.GetOverride"

	goals, err := scanGoals(r.db.QueryRow(ctx,
		`SELECT `+goalColumns+` FROM productivity_goal_overrides
		 WHERE tenant_id = $1 AND agent_id = $2 AND period = $3`,
		tenantID, agentID, period))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GoalSet{}, apperr.NotFound("no goal override for this period").WithOp(op)
	}
	if err != nil {
		return domain.GoalSet{}, dbErr(op, err)
	}
	return goals, nil
}

// UpsertOverride replaces the agent-period goal override.
func (r *Repository) UpsertOverride(ctx context.Context, tenantID, agentID uuid.UUID, period string, g domain.GoalSet) error {
	const op = "productivity.UpsertOverride"

	_, err := r.db.Exec(ctx, `
		INSERT INTO productivity_goal_overrides (tenant_id, agent_id, period, `+goalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, agent_id, period) DO UPDATE SET
			contacts_goal = EXCLUDED.contacts_goal,
			captures_goal = EXCLUDED.captures_goal,
			sales_goal = EXCLUDED.sales_goal,
			calls_goal = EXCLUDED.calls_goal,
			visits_goal = EXCLUDED.visits_goal,
			proposals_goal = EXCLUDED.proposals_goal,
			updated_at = now()`,
		tenantID, agentID, period, g.Contacts, g.Captures, g.Sales, g.Calls, g.Visits, g.Proposals)
	if err != nil {
		return dbErr(op, err)
	}
	return nil
}

// GetSummary returns the cached rollup row.
func (r *Repository) GetSummary(ctx context.Context, tenantID, agentID uuid.UUID, period, granularity string) (domain.Summary, error) {
	const op = "productivity.GetSummary"

	s := domain.Summary{TenantID: tenantID, AgentID: agentID, Period: period, Granularity: granularity}
	err := r.db.QueryRow(ctx, `
		SELECT contacts, captures, sales, calls, visits, proposals, pct_compliance, computed_at
		FROM productivity_summaries
		WHERE tenant_id = $1 AND agent_id = $2 AND period = $3 AND granularity = $4`,
		tenantID, agentID, period, granularity).
		Scan(&s.Counters.Contacts, &s.Counters.Captures, &s.Counters.Sales,
			&s.Counters.Calls, &s.Counters.Visits, &s.Counters.Proposals,
			&s.PctCompliance, &s.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Summary{}, apperr.NotFound("summary not computed for this period").WithOp(op)
	}
	if err != nil {
		return domain.Summary{}, dbErr(op, err)
	}
	return s, nil
}

// UpsertSummary writes the cached rollup row, last write wins.
func (r *Repository) UpsertSummary(ctx context.Context, s domain.Summary) error {
	const op = "productivity.UpsertSummary"

	_, err := r.db.Exec(ctx, `
		INSERT INTO productivity_summaries
			(tenant_id, agent_id, period, granularity,
			 contacts, captures, sales, calls, visits, proposals, pct_compliance, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, agent_id, period, granularity) DO UPDATE SET
			contacts = EXCLUDED.contacts,
			captures = EXCLUDED.captures,
			sales = EXCLUDED.sales,
			calls = EXCLUDED.calls,
			visits = EXCLUDED.visits,
			proposals = EXCLUDED.proposals,
			pct_compliance = EXCLUDED.pct_compliance,
			computed_at = EXCLUDED.computed_at`,
		s.TenantID, s.AgentID, s.Period, s.Granularity,
		s.Counters.Contacts, s.Counters.Captures, s.Counters.Sales,
		s.Counters.Calls, s.Counters.Visits, s.Counters.Proposals,
		s.PctCompliance, s.ComputedAt)
	if err != nil {
		return dbErr(op, err)
	}
	return nil
}

// CountActivities aggregates the agent's source counters over [from, to).
// Activities live in the externally owned crm_activities table; sales come
// from the commission ledger's seller rows.
func (r *Repository) CountActivities(ctx context.Context, tenantID, agentID uuid.UUID, from, to time.Time) (domain.Counters, error) {
	const op = "productivity.CountActivities"

	var c domain.Counters
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'contact'),
			COUNT(*) FILTER (WHERE kind = 'capture'),
			COUNT(*) FILTER (WHERE kind = 'call'),
			COUNT(*) FILTER (WHERE kind = 'visit'),
			COUNT(*) FILTER (WHERE kind = 'proposal')
		FROM crm_activities
		WHERE tenant_id = $1 AND agent_id = $2 AND occurred_at >= $3 AND occurred_at < $4`,
		tenantID, agentID, from, to).
		Scan(&c.Contacts, &c.Captures, &c.Calls, &c.Visits, &c.Proposals)
	if err != nil {
		return domain.Counters{}, dbErr(op, err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT sale_id)
		FROM commissions
		WHERE tenant_id = $1 AND participant_id = $2 AND participant_type = 'seller'
		  AND created_at >= $3 AND created_at < $4`,
		tenantID, agentID, from, to).Scan(&c.Sales)
	if err != nil {
		return domain.Counters{}, dbErr(op, err)
	}

	return c, nil
}

var _ Store = (*Repository)(nil)
