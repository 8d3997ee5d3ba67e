// Package repository provides PostgreSQL persistence for pool leads.
package repository

import (
	"context"
	"errors"

	"crm_core_backend/internal/allocation/domain"
	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface of the allocation bounded context.
type Store interface {
	CreateLead(ctx context.Context, lead domain.PoolLead) (domain.PoolLead, error)
	GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (domain.PoolLead, error)
	ListUnassigned(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.PoolLead, error)
	ClaimLead(ctx context.Context, tenantID, leadID, agentID uuid.UUID) (bool, error)
	ResetLead(ctx context.Context, tenantID, leadID uuid.UUID) error
	ListCandidates(ctx context.Context, tenantID uuid.UUID) ([]domain.Candidate, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func dbErr(op string, err error) error {
	return apperr.Wrap(apperr.KindInternal, "database operation failed", err).WithOp(op)
}

const leadColumns = `id, tenant_id, consumer_name, consumer_phone, consumer_email, source,
	assigned_agent_id, assigned_at, created_at`

func scanLead(row pgx.Row) (domain.PoolLead, error) {
	var l domain.PoolLead
	err := row.Scan(
		&l.ID, &l.TenantID, &l.ConsumerName, &l.ConsumerPhone, &l.ConsumerEmail,
		&l.Source, &l.AssignedAgentID, &l.AssignedAt, &l.CreatedAt,
	)
	return l, err
}

func (r *Repository) CreateLead(ctx context.Context, lead domain.PoolLead) (domain.PoolLead, error) {
	const op = "allocation.repository.CreateLead"

	row := r.db.QueryRow(ctx, `
		INSERT INTO pool_leads (tenant_id, consumer_name, consumer_phone, consumer_email, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+leadColumns,
		lead.TenantID, lead.ConsumerName, lead.ConsumerPhone, lead.ConsumerEmail, lead.Source,
	)
	created, err := scanLead(row)
	if err != nil {
		return domain.PoolLead{}, dbErr(op, err)
	}
	return created, nil
}

func (r *Repository) GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (domain.PoolLead, error) {
	const op = "allocation.repository.GetLead"

	row := r.db.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM pool_leads WHERE tenant_id = $1 AND id = $2`,
		tenantID, leadID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PoolLead{}, apperr.NotFound("pool lead not found")
	}
	if err != nil {
		return domain.PoolLead{}, dbErr(op, err)
	}
	return lead, nil
}

func (r *Repository) ListUnassigned(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.PoolLead, error) {
	const op = "allocation.repository.ListUnassigned"

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM pool_leads
		WHERE tenant_id = $1 AND assigned_agent_id IS NULL
		ORDER BY created_at
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var leads []domain.PoolLead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, dbErr(op, err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// ClaimLead assigns the lead to the agent only if it is still unassigned.
// Returns false when another allocation won the race.
func (r *Repository) ClaimLead(ctx context.Context, tenantID, leadID, agentID uuid.UUID) (bool, error) {
	const op = "allocation.repository.ClaimLead"

	tag, err := r.db.Exec(ctx, `
		UPDATE pool_leads
		SET assigned_agent_id = $3, assigned_at = now(), updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND assigned_agent_id IS NULL`,
		tenantID, leadID, agentID)
	if err != nil {
		return false, dbErr(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetLead returns an assigned lead to the pool.
func (r *Repository) ResetLead(ctx context.Context, tenantID, leadID uuid.UUID) error {
	const op = "allocation.repository.ResetLead"

	tag, err := r.db.Exec(ctx, `
		UPDATE pool_leads
		SET assigned_agent_id = NULL, assigned_at = NULL, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, leadID)
	if err != nil {
		return dbErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pool lead not found")
	}
	return nil
}

// ListCandidates returns the agents currently eligible for pool leads:
// in the system and not solitary. Weights are filled in by the service
// from the tenant configuration.
func (r *Repository) ListCandidates(ctx context.Context, tenantID uuid.UUID) ([]domain.Candidate, error) {
	const op = "allocation.repository.ListCandidates"

	rows, err := r.db.Query(ctx, `
		SELECT agent_id, phase
		FROM agent_phase_states
		WHERE tenant_id = $1 AND in_system = true AND solitary = false`,
		tenantID)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.AgentID, &c.Phase); err != nil {
			return nil, dbErr(op, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

var _ Store = (*Repository)(nil)
