// Package repository provides PostgreSQL persistence for commission
// templates and the snapshot ledger.
package repository

import (
	"context"
	"encoding/json"
	"errors"

	"crm_core_backend/internal/commissions/domain"
	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TemplateStore is the persistence surface for commission templates.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (domain.Template, error)
	ResolveByCode(ctx context.Context, tenantID uuid.UUID, code string) (domain.Template, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]domain.Template, error)
	CreateTemplate(ctx context.Context, tpl domain.Template) (domain.Template, error)
	UpdateTenantTemplate(ctx context.Context, tenantID uuid.UUID, tpl domain.Template) error
	DeleteTenantTemplate(ctx context.Context, tenantID, id uuid.UUID) error
	GetDefaultTemplate(ctx context.Context, tenantID uuid.UUID) (domain.Template, error)
	AssignAgentTemplate(ctx context.Context, tenantID, agentID, templateID uuid.UUID) error
	GetAgentTemplateID(ctx context.Context, tenantID, agentID uuid.UUID) (uuid.UUID, bool, error)
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

const templateColumns = `id, tenant_id, code, name, distributions, fees_before_split,
	company_internal_split, is_default`

func scanTemplate(row pgx.Row) (domain.Template, error) {
	var t domain.Template
	var distributions, fees, internal []byte
	if err := row.Scan(
		&t.ID, &t.TenantID, &t.Code, &t.Name,
		&distributions, &fees, &internal, &t.IsDefault,
	); err != nil {
		return domain.Template{}, err
	}
	if err := json.Unmarshal(distributions, &t.Distributions); err != nil {
		return domain.Template{}, err
	}
	if err := json.Unmarshal(fees, &t.FeesBeforeSplit); err != nil {
		return domain.Template{}, err
	}
	if err := json.Unmarshal(internal, &t.CompanyInternalSplit); err != nil {
		return domain.Template{}, err
	}
	return t, nil
}

func templateJSON(tpl domain.Template) (distributions, fees, internal []byte, err error) {
	if distributions, err = json.Marshal(tpl.Distributions); err != nil {
		return nil, nil, nil, err
	}
	if tpl.FeesBeforeSplit == nil {
		tpl.FeesBeforeSplit = []domain.Fee{}
	}
	if fees, err = json.Marshal(tpl.FeesBeforeSplit); err != nil {
		return nil, nil, nil, err
	}
	if tpl.CompanyInternalSplit == nil {
		tpl.CompanyInternalSplit = []domain.InternalSplitEntry{}
	}
	if internal, err = json.Marshal(tpl.CompanyInternalSplit); err != nil {
		return nil, nil, nil, err
	}
	return distributions, fees, internal, nil
}

func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (domain.Template, error) {
	const op = "commissions.repository.GetTemplate"

	row := r.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM commission_templates WHERE id = $1`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, apperr.NotFound("commission template not found")
	}
	if err != nil {
		return domain.Template{}, dbErr(op, err)
	}
	return tpl, nil
}

// ResolveByCode looks up the tenant's own row first, then the global row.
// A tenant copy shadows the global template with the same code.
func (r *Repository) ResolveByCode(ctx context.Context, tenantID uuid.UUID, code string) (domain.Template, error) {
	const op = "commissions.repository.ResolveByCode"

	row := r.db.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM commission_templates
		WHERE code = $2 AND (tenant_id = $1 OR tenant_id IS NULL)
		ORDER BY tenant_id NULLS LAST
		LIMIT 1`,
		tenantID, code)
	tpl, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, apperr.NotFound("commission template not found")
	}
	if err != nil {
		return domain.Template{}, dbErr(op, err)
	}
	return tpl, nil
}

// ListTemplates returns the tenant's templates plus global templates the
// tenant has not shadowed.
func (r *Repository) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]domain.Template, error) {
	const op = "commissions.repository.ListTemplates"

	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM commission_templates t
		WHERE t.tenant_id = $1
		   OR (t.tenant_id IS NULL AND NOT EXISTS (
			SELECT 1 FROM commission_templates s
			WHERE s.tenant_id = $1 AND s.code = t.code))
		ORDER BY t.code`,
		tenantID)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, dbErr(op, err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *Repository) CreateTemplate(ctx context.Context, tpl domain.Template) (domain.Template, error) {
	const op = "commissions.repository.CreateTemplate"

	distributions, fees, internal, err := templateJSON(tpl)
	if err != nil {
		return domain.Template{}, dbErr(op, err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO commission_templates (tenant_id, code, name, distributions,
			fees_before_split, company_internal_split, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+templateColumns,
		tpl.TenantID, tpl.Code, tpl.Name, distributions, fees, internal, tpl.IsDefault,
	)
	created, err := scanTemplate(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Template{}, apperr.Conflict("a template with this code already exists")
		}
		return domain.Template{}, dbErr(op, err)
	}
	return created, nil
}

// UpdateTenantTemplate rewrites a tenant-owned row. Global rows are never
// updated through here; the service copies them first.
func (r *Repository) UpdateTenantTemplate(ctx context.Context, tenantID uuid.UUID, tpl domain.Template) error {
	const op = "commissions.repository.UpdateTenantTemplate"

	distributions, fees, internal, err := templateJSON(tpl)
	if err != nil {
		return dbErr(op, err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE commission_templates
		SET name = $3, distributions = $4, fees_before_split = $5,
			company_internal_split = $6, is_default = $7, updated_at = now()
		WHERE id = $2 AND tenant_id = $1`,
		tenantID, tpl.ID, tpl.Name, distributions, fees, internal, tpl.IsDefault,
	)
	if err != nil {
		return dbErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("commission template not found")
	}
	return nil
}

func (r *Repository) DeleteTenantTemplate(ctx context.Context, tenantID, id uuid.UUID) error {
	const op = "commissions.repository.DeleteTenantTemplate"

	tag, err := r.db.Exec(ctx,
		`DELETE FROM commission_templates WHERE id = $2 AND tenant_id = $1`,
		tenantID, id)
	if err != nil {
		return dbErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("commission template not found")
	}
	return nil
}

// GetDefaultTemplate prefers the tenant's default over the global default.
func (r *Repository) GetDefaultTemplate(ctx context.Context, tenantID uuid.UUID) (domain.Template, error) {
	const op = "commissions.repository.GetDefaultTemplate"

	row := r.db.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM commission_templates
		WHERE is_default = true AND (tenant_id = $1 OR tenant_id IS NULL)
		ORDER BY tenant_id NULLS LAST
		LIMIT 1`,
		tenantID)
	tpl, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, apperr.NotFound("no default commission template configured")
	}
	if err != nil {
		return domain.Template{}, dbErr(op, err)
	}
	return tpl, nil
}

func (r *Repository) AssignAgentTemplate(ctx context.Context, tenantID, agentID, templateID uuid.UUID) error {
	const op = "commissions.repository.AssignAgentTemplate"

	_, err := r.db.Exec(ctx, `
		INSERT INTO agent_template_assignments (tenant_id, agent_id, template_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, agent_id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			updated_at = now()`,
		tenantID, agentID, templateID)
	if err != nil {
		return dbErr(op, err)
	}
	return nil
}

func (r *Repository) GetAgentTemplateID(ctx context.Context, tenantID, agentID uuid.UUID) (uuid.UUID, bool, error) {
	const op = "commissions.repository.GetAgentTemplateID"

	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT template_id FROM agent_template_assignments WHERE tenant_id = $1 AND agent_id = $2`,
		tenantID, agentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, dbErr(op, err)
	}
	return id, true, nil
}

var _ TemplateStore = (*Repository)(nil)
