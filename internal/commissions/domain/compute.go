package domain

import (
	"fmt"
	"math"

	"crm_core_backend/platform/apperr"
)

// FeeAmount is one applied pre-split deduction.
type FeeAmount struct {
	Role        string  `json:"role"`
	Pct         float64 `json:"pct"`
	AmountCents int64   `json:"amountCents"`
}

// Computed is the result of one distribution computation. It is stored
// verbatim as the immutable snapshot on every ledger row of the sale.
type Computed struct {
	TemplateID        string       `json:"templateId"`
	TemplateCode      string       `json:"templateCode"`
	PropertyKind      PropertyKind `json:"propertyKind"`
	Scenario          Scenario     `json:"scenario"`
	GrossCents        int64        `json:"grossCents"`
	Fees              []FeeAmount  `json:"fees"`
	TotalFeesCents    int64        `json:"totalFeesCents"`
	BaseForSplitCents int64        `json:"baseForSplitCents"`
	Split             Split        `json:"split"`
	CaptorCents       int64        `json:"captorCents"`
	SellerCents       int64        `json:"sellerCents"`
	CompanyCents      int64        `json:"companyCents"`

	CompanyInternalSplit []InternalSplitEntry `json:"companyInternalSplit,omitempty"`
}

func pctOf(amountCents int64, pct float64) int64 {
	return int64(math.Round(float64(amountCents) * pct / 100))
}

// ComputeDistribution splits a gross commission according to the template.
// Fees (template fees plus extraFees) are taken as percentages of the gross,
// then the captor/seller/company triple for (propertyKind, scenario) is
// applied to the remaining base. Pure function; all I/O stays in the service.
func ComputeDistribution(grossCents int64, kind PropertyKind, scenario Scenario, tpl Template, extraFees []Fee) (Computed, error) {
	if grossCents < 0 {
		return Computed{}, apperr.Validation("gross commission must be non-negative")
	}

	split, ok := tpl.SplitFor(kind, scenario)
	if !ok {
		return Computed{}, apperr.Validation(fmt.Sprintf("template %q has no distribution for %s/%s", tpl.Code, kind, scenario))
	}

	fees := make([]FeeAmount, 0, len(tpl.FeesBeforeSplit)+len(extraFees))
	var totalFees int64
	for _, fee := range append(append([]Fee{}, tpl.FeesBeforeSplit...), extraFees...) {
		amount := pctOf(grossCents, fee.Pct)
		fees = append(fees, FeeAmount{Role: fee.Role, Pct: fee.Pct, AmountCents: amount})
		totalFees += amount
	}
	if totalFees > grossCents {
		return Computed{}, apperr.Validation("fees exceed the gross commission")
	}

	base := grossCents - totalFees
	captor := pctOf(base, split.CaptorPct)
	seller := pctOf(base, split.SellerPct)
	// The company share absorbs rounding so the three parts always rebuild
	// the base exactly.
	company := base - captor - seller

	return Computed{
		TemplateID:           tpl.ID.String(),
		TemplateCode:         tpl.Code,
		PropertyKind:         kind,
		Scenario:             scenario,
		GrossCents:           grossCents,
		Fees:                 fees,
		TotalFeesCents:       totalFees,
		BaseForSplitCents:    base,
		Split:                split,
		CaptorCents:          captor,
		SellerCents:          seller,
		CompanyCents:         company,
		CompanyInternalSplit: tpl.CompanyInternalSplit,
	}, nil
}

// EnabledAmount returns the payable portion of a ledger row's gross, given
// collection progress on the company side. The ratio is capped at 1 so
// overcollection never pays more than the snapshot amount.
func EnabledAmount(rowGrossCents, collectedCents, expectedCents int64) int64 {
	if expectedCents <= 0 || collectedCents <= 0 {
		return 0
	}
	ratio := float64(collectedCents) / float64(expectedCents)
	if ratio > 1 {
		ratio = 1
	}
	return int64(math.Round(float64(rowGrossCents) * ratio))
}
