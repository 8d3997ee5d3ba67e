// Package service implements commission template resolution with
// copy-on-write semantics, the sale-close snapshot flow and proportional
// enablement of commission payouts.
package service

import (
	"context"

	"crm_core_backend/internal/commissions/domain"
	"crm_core_backend/internal/commissions/repository"
	"crm_core_backend/internal/events"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

// Store combines the template and ledger persistence surfaces.
type Store interface {
	repository.TemplateStore
	repository.LedgerStore
}

type Service struct {
	store     Store
	phases    PhaseStore
	publisher TransitionPublisher
	bus       events.Bus
	log       *logger.Logger
}

func NewService(store Store, phases PhaseStore, publisher TransitionPublisher, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		phases:    phases,
		publisher: publisher,
		bus:       bus,
		log:       log,
	}
}

// TemplatePatch carries the updatable template fields. Nil fields are kept.
type TemplatePatch struct {
	Name                 *string
	Distributions        map[domain.PropertyKind]map[domain.Scenario]domain.Split
	FeesBeforeSplit      *[]domain.Fee
	CompanyInternalSplit *[]domain.InternalSplitEntry
	IsDefault            *bool
}

func (p TemplatePatch) apply(tpl domain.Template) domain.Template {
	if p.Name != nil {
		tpl.Name = *p.Name
	}
	if p.Distributions != nil {
		tpl.Distributions = p.Distributions
	}
	if p.FeesBeforeSplit != nil {
		tpl.FeesBeforeSplit = *p.FeesBeforeSplit
	}
	if p.CompanyInternalSplit != nil {
		tpl.CompanyInternalSplit = *p.CompanyInternalSplit
	}
	if p.IsDefault != nil {
		tpl.IsDefault = *p.IsDefault
	}
	return tpl
}

func visibleTo(tpl domain.Template, tenantID uuid.UUID) bool {
	return tpl.Global() || *tpl.TenantID == tenantID
}

// ListTemplates returns the templates visible to the tenant: its own rows
// plus unshadowed globals.
func (s *Service) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]domain.Template, error) {
	return s.store.ListTemplates(ctx, tenantID)
}

func (s *Service) GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (domain.Template, error) {
	tpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	if !visibleTo(tpl, tenantID) {
		return domain.Template{}, apperr.NotFound("commission template not found")
	}
	return tpl, nil
}

// CreateTemplate creates a tenant-scoped template.
func (s *Service) CreateTemplate(ctx context.Context, tenantID uuid.UUID, tpl domain.Template) (domain.Template, error) {
	tpl.TenantID = &tenantID
	if err := tpl.Validate(); err != nil {
		return domain.Template{}, err
	}
	return s.store.CreateTemplate(ctx, tpl)
}

// UpdateTemplate patches a template. Patching a global template never
// mutates the shared row: a tenant-scoped copy with the same code is
// created instead, and it shadows the global one from then on.
func (s *Service) UpdateTemplate(ctx context.Context, tenantID, id uuid.UUID, patch TemplatePatch) (domain.Template, error) {
	tpl, err := s.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return domain.Template{}, err
	}

	merged := patch.apply(tpl)
	if err := merged.Validate(); err != nil {
		return domain.Template{}, err
	}

	if tpl.Global() {
		merged.TenantID = &tenantID
		return s.store.CreateTemplate(ctx, merged)
	}

	if err := s.store.UpdateTenantTemplate(ctx, tenantID, merged); err != nil {
		return domain.Template{}, err
	}
	return merged, nil
}

// DeleteTemplate removes a tenant-scoped template. Global templates cannot
// be deleted from a tenant context.
func (s *Service) DeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error {
	tpl, err := s.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if tpl.Global() {
		return apperr.Forbidden("global templates cannot be deleted from a tenant")
	}
	return s.store.DeleteTenantTemplate(ctx, tenantID, id)
}

// Resolve returns the template for a code: the tenant copy when one exists,
// the global row otherwise.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, code string) (domain.Template, error) {
	return s.store.ResolveByCode(ctx, tenantID, code)
}

// ResolveForAgent resolves the template used for an agent's sales:
// explicit assignment, else tenant default, else global default. A missing
// default is a configuration error, surfaced rather than zero-split.
func (s *Service) ResolveForAgent(ctx context.Context, tenantID, agentID uuid.UUID) (domain.Template, error) {
	templateID, assigned, err := s.store.GetAgentTemplateID(ctx, tenantID, agentID)
	if err != nil {
		return domain.Template{}, err
	}
	if assigned {
		tpl, err := s.GetTemplate(ctx, tenantID, templateID)
		if err == nil {
			return tpl, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return domain.Template{}, err
		}
		// Stale assignment falls through to the defaults.
	}
	return s.store.GetDefaultTemplate(ctx, tenantID)
}

// AssignTemplate binds an agent to a specific template.
func (s *Service) AssignTemplate(ctx context.Context, tenantID, agentID, templateID uuid.UUID) error {
	if _, err := s.GetTemplate(ctx, tenantID, templateID); err != nil {
		return err
	}
	return s.store.AssignAgentTemplate(ctx, tenantID, agentID, templateID)
}

// LedgerForSale returns the commission rows of a sale.
func (s *Service) LedgerForSale(ctx context.Context, tenantID, saleID uuid.UUID) ([]domain.LedgerRow, domain.SaleCollection, error) {
	rows, err := s.store.ListBySale(ctx, tenantID, saleID)
	if err != nil {
		return nil, domain.SaleCollection{}, err
	}
	if len(rows) == 0 {
		return nil, domain.SaleCollection{}, apperr.NotFound("no commission ledger for this sale")
	}
	sc, err := s.store.GetCollection(ctx, tenantID, saleID)
	if err != nil {
		return nil, domain.SaleCollection{}, err
	}
	return rows, sc, nil
}

// Adjustments returns the enablement audit trail of one ledger row.
func (s *Service) Adjustments(ctx context.Context, tenantID, commissionID uuid.UUID) ([]domain.Adjustment, error) {
	return s.store.ListAdjustments(ctx, commissionID)
}
