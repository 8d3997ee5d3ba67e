package domain

import (
	"testing"

	"github.com/google/uuid"
)

func testConfig() PhaseConfig {
	return PhaseConfig{
		TenantID:          uuid.New(),
		Active:            true,
		AgentSharePct:     50,
		CompanySharePct:   50,
		PhaseWeights:      [PhaseCount]int{1, 2, 3, 4, 10},
		Phase1Attempts:    3,
		MaxSolitaryMonths: 6,
	}
}

func activeState(phase int) AgentPhaseState {
	return AgentPhaseState{
		TenantID:     uuid.New(),
		AgentID:      uuid.New(),
		InSystem:     true,
		Phase:        phase,
		TrackedMonth: "2026-01",
	}
}

func TestApplySaleAdvancesOnePhase(t *testing.T) {
	for phase := MinPhase; phase < MaxPhase; phase++ {
		state := activeState(phase)
		next, transitions := ApplySale(state, uuid.New(), "2026-01")

		if next.Phase != phase+1 {
			t.Fatalf("phase %d: expected advance to %d, got %d", phase, phase+1, next.Phase)
		}
		if len(transitions) != 1 || transitions[0].Kind != TransitionAdvance {
			t.Fatalf("phase %d: expected one advance transition, got %+v", phase, transitions)
		}
		if next.SalesThisMonth != 1 {
			t.Fatalf("phase %d: expected sales counter 1, got %d", phase, next.SalesThisMonth)
		}
	}
}

func TestApplySaleResetsPhase1Attempts(t *testing.T) {
	state := activeState(MinPhase)
	state.Phase1AttemptsUsed = 2

	next, _ := ApplySale(state, uuid.New(), "2026-01")

	if next.Phase1AttemptsUsed != 0 {
		t.Fatalf("expected attempts reset, got %d", next.Phase1AttemptsUsed)
	}
}

func TestApplySalePrestigeEveryThreeSalesAtPhase5(t *testing.T) {
	state := activeState(MaxPhase)

	var prestigeEvents int
	for i := 0; i < 3; i++ {
		var transitions []Transition
		state, transitions = ApplySale(state, uuid.New(), "2026-01")
		for _, tr := range transitions {
			if tr.Kind == TransitionPrestige {
				prestigeEvents++
				if tr.PrestigeValue == nil || *tr.PrestigeValue != 1 {
					t.Fatalf("expected prestige value 1, got %+v", tr.PrestigeValue)
				}
			}
		}
	}

	if prestigeEvents != 1 {
		t.Fatalf("expected exactly 1 prestige event after 3 sales, got %d", prestigeEvents)
	}
	if state.Prestige != 1 {
		t.Fatalf("expected prestige 1, got %d", state.Prestige)
	}
	if state.SalesTowardNextPrestige != 0 {
		t.Fatalf("expected prestige counter reset, got %d", state.SalesTowardNextPrestige)
	}
	if state.Phase != MaxPhase {
		t.Fatalf("expected agent to remain at phase 5, got %d", state.Phase)
	}
}

func TestApplySaleWhileSolitaryOnlyResetsIdleCounter(t *testing.T) {
	state := activeState(SolitaryPhase)
	state.Solitary = true
	state.SolitaryMonthsWithoutSale = 4

	next, transitions := ApplySale(state, uuid.New(), "2026-01")

	if !next.Solitary {
		t.Fatal("sale must not leave solitary automatically")
	}
	if next.SolitaryMonthsWithoutSale != 0 {
		t.Fatalf("expected idle counter reset, got %d", next.SolitaryMonthsWithoutSale)
	}
	if len(transitions) != 0 {
		t.Fatalf("expected no transitions, got %+v", transitions)
	}
}

func TestApplySaleCrossMonthResetsCounter(t *testing.T) {
	state := activeState(2)
	state.SalesThisMonth = 4

	next, _ := ApplySale(state, uuid.New(), "2026-02")

	if next.TrackedMonth != "2026-02" {
		t.Fatalf("expected tracked month update, got %q", next.TrackedMonth)
	}
	if next.SalesThisMonth != 1 {
		t.Fatalf("expected counter restarted at 1, got %d", next.SalesThisMonth)
	}
}

func TestRolloverIdleMonthDemotesOneLevel(t *testing.T) {
	for phase := 2; phase <= MaxPhase; phase++ {
		state := activeState(phase)
		next, transitions, processed := ApplyRollover(state, testConfig(), "2026-02")

		if !processed {
			t.Fatalf("phase %d: expected rollover to process", phase)
		}
		if next.Phase != phase-1 {
			t.Fatalf("phase %d: expected demotion to %d, got %d", phase, phase-1, next.Phase)
		}
		if len(transitions) != 1 || transitions[0].Kind != TransitionDemote {
			t.Fatalf("phase %d: expected one demote transition, got %+v", phase, transitions)
		}
		if next.Solitary {
			t.Fatalf("phase %d: demotion must never enter solitary directly", phase)
		}
	}
}

func TestRolloverPhase1AttemptsLeadToSolitaryExactlyOnce(t *testing.T) {
	cfg := testConfig()
	state := activeState(MinPhase)

	var entries int
	periods := []string{"2026-02", "2026-03", "2026-04", "2026-05"}
	for _, period := range periods {
		var transitions []Transition
		state, transitions, _ = ApplyRollover(state, cfg, period)
		for _, tr := range transitions {
			if tr.Kind == TransitionEnterSolitary {
				entries++
			}
		}
	}

	if entries != 1 {
		t.Fatalf("expected exactly one solitary entry, got %d", entries)
	}
	if !state.Solitary || state.Phase != SolitaryPhase {
		t.Fatalf("expected solitary state, got %+v", state)
	}
}

func TestRolloverSolitaryExitAfterMaxMonths(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSolitaryMonths = 2

	state := activeState(SolitaryPhase)
	state.Solitary = true

	state, transitions, _ := ApplyRollover(state, cfg, "2026-02")
	if len(transitions) != 0 {
		t.Fatalf("first idle month should not exit, got %+v", transitions)
	}

	state, transitions, _ = ApplyRollover(state, cfg, "2026-03")
	if len(transitions) != 1 || transitions[0].Kind != TransitionExit {
		t.Fatalf("expected exit transition, got %+v", transitions)
	}
	if state.InSystem {
		t.Fatal("exited agent must leave the system")
	}
}

func TestRolloverIsIdempotentPerPeriod(t *testing.T) {
	cfg := testConfig()
	state := activeState(3)

	first, _, processed := ApplyRollover(state, cfg, "2026-02")
	if !processed {
		t.Fatal("expected first rollover to process")
	}

	second, transitions, processed := ApplyRollover(first, cfg, "2026-02")
	if processed {
		t.Fatal("expected repeated rollover to be a no-op")
	}
	if len(transitions) != 0 {
		t.Fatalf("expected no transitions on repeat, got %+v", transitions)
	}
	if second != first {
		t.Fatalf("expected unchanged state, got %+v vs %+v", second, first)
	}
}

func TestRolloverUltraRecord(t *testing.T) {
	state := activeState(2)
	state.SalesThisMonth = 5
	state.UltraRecord = 3

	next, transitions, _ := ApplyRollover(state, testConfig(), "2026-02")

	if next.UltraRecord != 5 || next.UltraMonth != "2026-01" {
		t.Fatalf("expected ultra record 5 for 2026-01, got %d/%q", next.UltraRecord, next.UltraMonth)
	}

	var sawUltra bool
	for _, tr := range transitions {
		if tr.Kind == TransitionUltra {
			sawUltra = true
			if tr.UltraValue == nil || *tr.UltraValue != 5 {
				t.Fatalf("expected ultra value 5, got %+v", tr.UltraValue)
			}
		}
	}
	if !sawUltra {
		t.Fatal("expected an ultra transition")
	}
	if next.SalesThisMonth != 0 {
		t.Fatalf("expected monthly counter reset, got %d", next.SalesThisMonth)
	}
}

func TestRolloverMonthWithSalesHoldsPhase(t *testing.T) {
	state := activeState(3)
	state.SalesThisMonth = 2
	state.UltraRecord = 9

	next, transitions, _ := ApplyRollover(state, testConfig(), "2026-02")

	if next.Phase != 3 {
		t.Fatalf("expected phase held at 3, got %d", next.Phase)
	}
	if len(transitions) != 0 {
		t.Fatalf("expected no transitions, got %+v", transitions)
	}
}

func TestReadmitOnlyFromSolitary(t *testing.T) {
	state := activeState(SolitaryPhase)
	state.Solitary = true
	state.SolitaryMonthsWithoutSale = 3

	next, transition, ok := Readmit(state)
	if !ok {
		t.Fatal("expected readmit to apply")
	}
	if next.Solitary || next.Phase != MinPhase {
		t.Fatalf("expected phase 1 non-solitary, got %+v", next)
	}
	if transition.Kind != TransitionExitSolitary {
		t.Fatalf("expected exit_solitary, got %q", transition.Kind)
	}

	if _, _, ok := Readmit(activeState(2)); ok {
		t.Fatal("readmit must not apply to graded agents")
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*PhaseConfig)
		wantErr bool
	}{
		{"valid", func(c *PhaseConfig) {}, false},
		{"share sum", func(c *PhaseConfig) { c.AgentSharePct = 60 }, true},
		{"decreasing weights", func(c *PhaseConfig) { c.PhaseWeights = [PhaseCount]int{5, 4, 3, 2, 1} }, true},
		{"zero weight", func(c *PhaseConfig) { c.PhaseWeights[0] = 0 }, true},
		{"flat weights ok", func(c *PhaseConfig) { c.PhaseWeights = [PhaseCount]int{2, 2, 2, 2, 2} }, false},
		{"zero attempts", func(c *PhaseConfig) { c.Phase1Attempts = 0 }, true},
		{"zero solitary months", func(c *PhaseConfig) { c.MaxSolitaryMonths = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
