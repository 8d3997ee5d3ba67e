package notification

import (
	"context"
	"errors"

	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxDirectory reads agent contact details from the externally owned
// crm_agents table.
type PgxDirectory struct {
	db *pgxpool.Pool
}

// NewPgxDirectory creates an agent directory backed by Postgres.
func NewPgxDirectory(db *pgxpool.Pool) *PgxDirectory {
	return &PgxDirectory{db: db}
}

// EmailFor returns the agent's email address.
func (d *PgxDirectory) EmailFor(ctx context.Context, tenantID, agentID uuid.UUID) (string, error) {
	const op = "notification.EmailFor"

	var email string
	err := d.db.QueryRow(ctx,
		`SELECT email FROM crm_agents WHERE tenant_id = $1 AND id = $2`,
		tenantID, agentID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("agent not found").WithOp(op)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "database operation failed", err).WithOp(op)
	}
	return email, nil
}

var _ AgentDirectory = (*PgxDirectory)(nil)
