package domain

import (
	"testing"

	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
)

func testTemplate() Template {
	return Template{
		ID:   uuid.New(),
		Code: "residential-standard",
		Name: "Residential standard",
		Distributions: map[PropertyKind]map[Scenario]Split{
			PropertyStandalone: {
				ScenarioCaptureAndSell: {CaptorPct: 40, SellerPct: 40, CompanyPct: 20},
				ScenarioSellOnly:       {CaptorPct: 0, SellerPct: 50, CompanyPct: 50},
				ScenarioCaptureOnly:    {CaptorPct: 30, SellerPct: 0, CompanyPct: 70},
			},
		},
		FeesBeforeSplit: []Fee{{Role: "referrer", Pct: 10}},
	}
}

func TestComputeDistributionWorkedExample(t *testing.T) {
	// $10,000 gross, 10% referral fee, 40/40/20 split over the $9,000 base.
	computed, err := ComputeDistribution(1_000_000, PropertyStandalone, ScenarioCaptureAndSell, testTemplate(), nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if computed.TotalFeesCents != 100_000 {
		t.Fatalf("expected fees 100000, got %d", computed.TotalFeesCents)
	}
	if computed.BaseForSplitCents != 900_000 {
		t.Fatalf("expected base 900000, got %d", computed.BaseForSplitCents)
	}
	if computed.CaptorCents != 360_000 || computed.SellerCents != 360_000 || computed.CompanyCents != 180_000 {
		t.Fatalf("expected 360000/360000/180000, got %d/%d/%d",
			computed.CaptorCents, computed.SellerCents, computed.CompanyCents)
	}
}

func TestComputeDistributionConservesMoney(t *testing.T) {
	tpl := testTemplate()
	tpl.Distributions[PropertyStandalone][ScenarioCaptureAndSell] = Split{
		CaptorPct: 33.33, SellerPct: 33.33, CompanyPct: 33.34,
	}

	odds := []int64{1, 99, 101, 12_345, 999_999, 1_000_001}
	for _, gross := range odds {
		computed, err := ComputeDistribution(gross, PropertyStandalone, ScenarioCaptureAndSell, tpl, nil)
		if err != nil {
			t.Fatalf("gross %d: %v", gross, err)
		}
		total := computed.CaptorCents + computed.SellerCents + computed.CompanyCents
		if total != computed.BaseForSplitCents {
			t.Fatalf("gross %d: split parts sum to %d, base is %d", gross, total, computed.BaseForSplitCents)
		}
		if computed.BaseForSplitCents+computed.TotalFeesCents != gross {
			t.Fatalf("gross %d: base+fees do not rebuild gross", gross)
		}
	}
}

func TestComputeDistributionExtraFees(t *testing.T) {
	computed, err := ComputeDistribution(1_000_000, PropertyStandalone, ScenarioCaptureAndSell, testTemplate(),
		[]Fee{{Role: "partner", Pct: 5}})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if len(computed.Fees) != 2 {
		t.Fatalf("expected 2 fees, got %d", len(computed.Fees))
	}
	if computed.TotalFeesCents != 150_000 {
		t.Fatalf("expected fees 150000, got %d", computed.TotalFeesCents)
	}
	if computed.BaseForSplitCents != 850_000 {
		t.Fatalf("expected base 850000, got %d", computed.BaseForSplitCents)
	}
}

func TestComputeDistributionUnknownScenario(t *testing.T) {
	_, err := ComputeDistribution(100_000, PropertyProject, ScenarioSellOnly, testTemplate(), nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnabledAmountProportional(t *testing.T) {
	cases := []struct {
		name      string
		gross     int64
		collected int64
		expected  int64
		want      int64
	}{
		{"nothing collected", 360_000, 0, 180_000, 0},
		{"half collected", 360_000, 90_000, 180_000, 180_000},
		{"fully collected", 360_000, 180_000, 180_000, 360_000},
		{"overcollected caps at gross", 360_000, 250_000, 180_000, 360_000},
		{"zero expected", 360_000, 50_000, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EnabledAmount(tc.gross, tc.collected, tc.expected); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestTemplateValidate(t *testing.T) {
	valid := testTemplate()
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badSum := testTemplate()
	badSum.Distributions[PropertyStandalone][ScenarioSellOnly] = Split{CaptorPct: 10, SellerPct: 50, CompanyPct: 50}
	if err := badSum.Validate(); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for bad sum, got %v", err)
	}

	badFees := testTemplate()
	badFees.FeesBeforeSplit = []Fee{{Role: "a", Pct: 60}, {Role: "b", Pct: 45}}
	if err := badFees.Validate(); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for fee sum, got %v", err)
	}
}
