// Package transport defines request/response DTOs for the commissions HTTP API.
package transport

import (
	"time"

	"crm_core_backend/internal/commissions/domain"
	"crm_core_backend/internal/commissions/service"

	"github.com/google/uuid"
)

// TemplateResponse is the API representation of a commission template.
type TemplateResponse struct {
	ID                   uuid.UUID                                              `json:"id"`
	TenantID             *uuid.UUID                                             `json:"tenantId,omitempty"`
	Code                 string                                                 `json:"code"`
	Name                 string                                                 `json:"name"`
	Global               bool                                                   `json:"global"`
	Distributions        map[domain.PropertyKind]map[domain.Scenario]domain.Split `json:"distributions"`
	FeesBeforeSplit      []domain.Fee                                           `json:"feesBeforeSplit"`
	CompanyInternalSplit []domain.InternalSplitEntry                            `json:"companyInternalSplit"`
	IsDefault            bool                                                   `json:"isDefault"`
}

func TemplateFromDomain(t domain.Template) TemplateResponse {
	return TemplateResponse{
		ID:                   t.ID,
		TenantID:             t.TenantID,
		Code:                 t.Code,
		Name:                 t.Name,
		Global:               t.Global(),
		Distributions:        t.Distributions,
		FeesBeforeSplit:      t.FeesBeforeSplit,
		CompanyInternalSplit: t.CompanyInternalSplit,
		IsDefault:            t.IsDefault,
	}
}

func TemplatesFromDomain(templates []domain.Template) []TemplateResponse {
	out := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, TemplateFromDomain(t))
	}
	return out
}

// CreateTemplateRequest creates a tenant-scoped template.
type CreateTemplateRequest struct {
	Code                 string                                                 `json:"code" validate:"required,min=2,max=100"`
	Name                 string                                                 `json:"name" validate:"required,min=2,max=200"`
	Distributions        map[domain.PropertyKind]map[domain.Scenario]domain.Split `json:"distributions" validate:"required"`
	FeesBeforeSplit      []domain.Fee                                           `json:"feesBeforeSplit"`
	CompanyInternalSplit []domain.InternalSplitEntry                            `json:"companyInternalSplit"`
	IsDefault            bool                                                   `json:"isDefault"`
}

func (r CreateTemplateRequest) ToDomain() domain.Template {
	return domain.Template{
		Code:                 r.Code,
		Name:                 r.Name,
		Distributions:        r.Distributions,
		FeesBeforeSplit:      r.FeesBeforeSplit,
		CompanyInternalSplit: r.CompanyInternalSplit,
		IsDefault:            r.IsDefault,
	}
}

// UpdateTemplateRequest patches a template; omitted fields are kept.
type UpdateTemplateRequest struct {
	Name                 *string                                                `json:"name" validate:"omitempty,min=2,max=200"`
	Distributions        map[domain.PropertyKind]map[domain.Scenario]domain.Split `json:"distributions"`
	FeesBeforeSplit      *[]domain.Fee                                          `json:"feesBeforeSplit"`
	CompanyInternalSplit *[]domain.InternalSplitEntry                           `json:"companyInternalSplit"`
	IsDefault            *bool                                                  `json:"isDefault"`
}

func (r UpdateTemplateRequest) ToPatch() service.TemplatePatch {
	return service.TemplatePatch{
		Name:                 r.Name,
		Distributions:        r.Distributions,
		FeesBeforeSplit:      r.FeesBeforeSplit,
		CompanyInternalSplit: r.CompanyInternalSplit,
		IsDefault:            r.IsDefault,
	}
}

// AssignTemplateRequest binds an agent to a template.
type AssignTemplateRequest struct {
	AgentID    uuid.UUID `json:"agentId" validate:"required"`
	TemplateID uuid.UUID `json:"templateId" validate:"required"`
}

// CloseSaleRequest closes a sale and creates its commission ledger.
type CloseSaleRequest struct {
	SaleID                    *uuid.UUID   `json:"saleId"`
	SellerID                  uuid.UUID    `json:"sellerId" validate:"required"`
	CaptorID                  *uuid.UUID   `json:"captorId"`
	PropertyKind              string       `json:"propertyKind" validate:"required,oneof=standalone project"`
	Scenario                  string       `json:"scenario" validate:"required,oneof=captureOnly sellOnly captureAndSell"`
	GrossCommissionCents      int64        `json:"grossCommissionCents" validate:"required,gt=0"`
	CompanyExpectedTotalCents int64        `json:"companyExpectedTotalCents" validate:"min=0"`
	ExtraFees                 []domain.Fee `json:"extraFees"`
	TemplateCode              string       `json:"templateCode"`
}

func (r CloseSaleRequest) ToDomain(tenantID uuid.UUID) service.SaleClose {
	in := service.SaleClose{
		TenantID:                  tenantID,
		SellerID:                  r.SellerID,
		CaptorID:                  r.CaptorID,
		PropertyKind:              domain.PropertyKind(r.PropertyKind),
		Scenario:                  domain.Scenario(r.Scenario),
		GrossCommissionCents:      r.GrossCommissionCents,
		CompanyExpectedTotalCents: r.CompanyExpectedTotalCents,
		ExtraFees:                 r.ExtraFees,
		TemplateCode:              r.TemplateCode,
	}
	if r.SaleID != nil {
		in.SaleID = *r.SaleID
	}
	return in
}

// PaymentRequest reports company-side collection progress for a sale.
type PaymentRequest struct {
	CollectedToDateCents int64  `json:"collectedToDateCents" validate:"min=0"`
	Clawback             bool   `json:"clawback"`
	Reason               string `json:"reason" validate:"max=500"`
}

// LedgerRowResponse is one commission ledger entry.
type LedgerRowResponse struct {
	ID                 uuid.UUID       `json:"id"`
	SaleID             uuid.UUID       `json:"saleId"`
	ParticipantType    string          `json:"participantType"`
	ParticipantID      *uuid.UUID      `json:"participantId,omitempty"`
	Scenario           string          `json:"scenario"`
	PropertyKind       string          `json:"propertyKind"`
	Snapshot           domain.Computed `json:"snapshot"`
	GrossAmountCents   int64           `json:"grossAmountCents"`
	EnabledAmountCents int64           `json:"enabledAmountCents"`
	IsOverride         bool            `json:"isOverride"`
	CreatedAt          time.Time       `json:"createdAt"`
}

func LedgerRowFromDomain(lr domain.LedgerRow) LedgerRowResponse {
	return LedgerRowResponse{
		ID:                 lr.ID,
		SaleID:             lr.SaleID,
		ParticipantType:    string(lr.ParticipantType),
		ParticipantID:      lr.ParticipantID,
		Scenario:           string(lr.Scenario),
		PropertyKind:       string(lr.PropertyKind),
		Snapshot:           lr.Snapshot,
		GrossAmountCents:   lr.GrossAmountCents,
		EnabledAmountCents: lr.EnabledAmountCents,
		IsOverride:         lr.IsOverride,
		CreatedAt:          lr.CreatedAt,
	}
}

func LedgerRowsFromDomain(rows []domain.LedgerRow) []LedgerRowResponse {
	out := make([]LedgerRowResponse, 0, len(rows))
	for _, lr := range rows {
		out = append(out, LedgerRowFromDomain(lr))
	}
	return out
}

// SaleLedgerResponse is the full ledger view of one sale.
type SaleLedgerResponse struct {
	SaleID               uuid.UUID           `json:"saleId"`
	ExpectedTotalCents   int64               `json:"expectedTotalCents"`
	CollectedCents       int64               `json:"collectedCents"`
	Rows                 []LedgerRowResponse `json:"rows"`
}

// AdjustmentResponse is one audit entry of an enabled-amount change.
type AdjustmentResponse struct {
	ID                   uuid.UUID `json:"id"`
	CommissionID         uuid.UUID `json:"commissionId"`
	Kind                 string    `json:"kind"`
	PreviousEnabledCents int64     `json:"previousEnabledCents"`
	NewEnabledCents      int64     `json:"newEnabledCents"`
	Reason               string    `json:"reason,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

func AdjustmentsFromDomain(adjustments []domain.Adjustment) []AdjustmentResponse {
	out := make([]AdjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, AdjustmentResponse{
			ID:                   a.ID,
			CommissionID:         a.CommissionID,
			Kind:                 a.Kind,
			PreviousEnabledCents: a.PreviousEnabledCents,
			NewEnabledCents:      a.NewEnabledCents,
			Reason:               a.Reason,
			CreatedAt:            a.CreatedAt,
		})
	}
	return out
}
