package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"crm_core_backend/internal/events"
	"crm_core_backend/internal/phases/domain"
	"crm_core_backend/internal/phases/repository"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

type stateKey struct {
	tenantID uuid.UUID
	agentID  uuid.UUID
}

type fakeStore struct {
	mu          sync.Mutex
	configs     map[uuid.UUID]domain.PhaseConfig
	states      map[stateKey]domain.AgentPhaseState
	transitions map[stateKey][]domain.Transition
	runs        map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs:     make(map[uuid.UUID]domain.PhaseConfig),
		states:      make(map[stateKey]domain.AgentPhaseState),
		transitions: make(map[stateKey][]domain.Transition),
		runs:        make(map[string]bool),
	}
}

func (f *fakeStore) GetConfig(_ context.Context, tenantID uuid.UUID) (domain.PhaseConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[tenantID]
	if !ok {
		return domain.PhaseConfig{}, apperr.NotFound("phase configuration not found")
	}
	return cfg, nil
}

func (f *fakeStore) UpsertConfig(_ context.Context, cfg domain.PhaseConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.TenantID] = cfg
	return nil
}

func (f *fakeStore) ListActiveTenants(_ context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for id, cfg := range f.configs {
		if cfg.Active {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) GetState(_ context.Context, tenantID, agentID uuid.UUID) (domain.AgentPhaseState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[stateKey{tenantID, agentID}]
	if !ok {
		return domain.AgentPhaseState{}, apperr.NotFound("agent not found in phase system")
	}
	return state, nil
}

func (f *fakeStore) ListStates(_ context.Context, tenantID uuid.UUID, inSystemOnly bool) ([]domain.AgentPhaseState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AgentPhaseState
	for key, state := range f.states {
		if key.tenantID != tenantID {
			continue
		}
		if inSystemOnly && !state.InSystem {
			continue
		}
		out = append(out, state)
	}
	return out, nil
}

func (f *fakeStore) ListAgentIDs(_ context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for key, state := range f.states {
		if key.tenantID == tenantID && state.InSystem {
			out = append(out, key.agentID)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateState(_ context.Context, state domain.AgentPhaseState, transition domain.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey{state.TenantID, state.AgentID}
	if _, exists := f.states[key]; exists {
		return apperr.Conflict("agent is already in the phase system")
	}
	f.states[key] = state
	f.transitions[key] = append(f.transitions[key], transition)
	return nil
}

func (f *fakeStore) SetInSystem(_ context.Context, tenantID, agentID uuid.UUID, inSystem bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey{tenantID, agentID}
	state, ok := f.states[key]
	if !ok {
		return apperr.NotFound("agent not found in phase system")
	}
	state.InSystem = inSystem
	f.states[key] = state
	return nil
}

func (f *fakeStore) ListTransitions(_ context.Context, tenantID, agentID uuid.UUID, limit int) ([]repository.TransitionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.TransitionEvent
	for _, tr := range f.transitions[stateKey{tenantID, agentID}] {
		out = append(out, repository.TransitionEvent{
			TenantID:  tenantID,
			AgentID:   agentID,
			FromPhase: tr.FromPhase,
			ToPhase:   tr.ToPhase,
			Kind:      string(tr.Kind),
			Reason:    tr.Reason,
		})
	}
	return out, nil
}

func (f *fakeStore) UpdateAgentLocked(_ context.Context, tenantID, agentID uuid.UUID,
	fn func(domain.AgentPhaseState) (domain.AgentPhaseState, []domain.Transition, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey{tenantID, agentID}
	state, ok := f.states[key]
	if !ok {
		return apperr.NotFound("agent not found in phase system")
	}
	next, transitions, err := fn(state)
	if err != nil {
		return err
	}
	f.states[key] = next
	f.transitions[key] = append(f.transitions[key], transitions...)
	return nil
}

func (f *fakeStore) HasRolloverRun(_ context.Context, tenantID uuid.UUID, period string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[tenantID.String()+"/"+period], nil
}

func (f *fakeStore) InsertRolloverRun(_ context.Context, run repository.RolloverRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.TenantID.String()+"/"+run.Period] = true
	return nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, ev := range b.events {
		out = append(out, ev.EventName())
	}
	return out
}

func newTestService() (*Service, *fakeStore, *captureBus) {
	store := newFakeStore()
	bus := &captureBus{}
	return NewService(store, bus, logger.New("development")), store, bus
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func TestAdmitCreatesPhase1State(t *testing.T) {
	svc, _, bus := newTestService()
	tenantID, agentID := uuid.New(), uuid.New()

	state, err := svc.Admit(context.Background(), tenantID, agentID)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if state.Phase != domain.MinPhase || !state.InSystem {
		t.Fatalf("expected in-system phase 1, got %+v", state)
	}
	if !contains(bus.names(), "phases.agent.admitted") {
		t.Fatalf("expected admitted event, got %v", bus.names())
	}

	if _, err := svc.Admit(context.Background(), tenantID, agentID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on double admit, got %v", err)
	}
}

func TestRemoveKeepsHistory(t *testing.T) {
	svc, store, _ := newTestService()
	tenantID, agentID := uuid.New(), uuid.New()

	if _, err := svc.Admit(context.Background(), tenantID, agentID); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := svc.Remove(context.Background(), tenantID, agentID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	state, err := svc.GetAgent(context.Background(), tenantID, agentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.InSystem {
		t.Fatal("expected agent out of system")
	}
	if len(store.transitions[stateKey{tenantID, agentID}]) != 2 {
		t.Fatal("expected join and exit transitions preserved")
	}

	if err := svc.Remove(context.Background(), tenantID, agentID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on double remove, got %v", err)
	}
}

func TestReadmitRequiresSolitary(t *testing.T) {
	svc, store, _ := newTestService()
	tenantID, agentID := uuid.New(), uuid.New()

	if _, err := svc.Admit(context.Background(), tenantID, agentID); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := svc.Readmit(context.Background(), tenantID, agentID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for graded agent, got %v", err)
	}

	key := stateKey{tenantID, agentID}
	state := store.states[key]
	state.Phase = domain.SolitaryPhase
	state.Solitary = true
	store.states[key] = state

	if err := svc.Readmit(context.Background(), tenantID, agentID); err != nil {
		t.Fatalf("readmit: %v", err)
	}
	if got := store.states[key]; got.Phase != domain.MinPhase || got.Solitary {
		t.Fatalf("expected phase 1 non-solitary, got %+v", got)
	}
}

func TestRecordSalePublishesPhaseChange(t *testing.T) {
	svc, _, bus := newTestService()
	tenantID, agentID := uuid.New(), uuid.New()

	if _, err := svc.Admit(context.Background(), tenantID, agentID); err != nil {
		t.Fatalf("admit: %v", err)
	}

	state, err := svc.RecordSale(context.Background(), tenantID, agentID, uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if state.Phase != 2 {
		t.Fatalf("expected phase 2, got %d", state.Phase)
	}
	if !contains(bus.names(), "phases.agent.phase_changed") {
		t.Fatalf("expected phase change event, got %v", bus.names())
	}
}

func TestRolloverProcessesOncePerPeriod(t *testing.T) {
	svc, store, bus := newTestService()
	tenantID := uuid.New()
	idle, seller := uuid.New(), uuid.New()

	cfg := domain.DefaultConfig(tenantID)
	cfg.Active = true
	if err := svc.UpdateConfig(context.Background(), cfg); err != nil {
		t.Fatalf("config: %v", err)
	}

	store.states[stateKey{tenantID, idle}] = domain.AgentPhaseState{
		TenantID: tenantID, AgentID: idle, InSystem: true, Phase: 3, TrackedMonth: "2026-01",
	}
	store.states[stateKey{tenantID, seller}] = domain.AgentPhaseState{
		TenantID: tenantID, AgentID: seller, InSystem: true, Phase: 2,
		TrackedMonth: "2026-01", SalesThisMonth: 2,
	}

	processed, err := svc.Rollover(context.Background(), tenantID, "2026-02")
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected 2 agents processed, got %d", processed)
	}
	if got := store.states[stateKey{tenantID, idle}]; got.Phase != 2 {
		t.Fatalf("expected idle agent demoted to 2, got %d", got.Phase)
	}
	if got := store.states[stateKey{tenantID, seller}]; got.Phase != 2 || got.SalesThisMonth != 0 {
		t.Fatalf("expected seller held at 2 with counter reset, got %+v", got)
	}
	if !contains(bus.names(), "phases.rollover.completed") {
		t.Fatalf("expected rollover event, got %v", bus.names())
	}

	processed, err = svc.Rollover(context.Background(), tenantID, "2026-02")
	if err != nil {
		t.Fatalf("repeat rollover: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected repeat to be a no-op, got %d", processed)
	}
}

func TestRolloverRejectsBadPeriod(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Rollover(context.Background(), uuid.New(), "02-2026"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateConfigValidates(t *testing.T) {
	svc, _, _ := newTestService()
	cfg := domain.DefaultConfig(uuid.New())
	cfg.AgentSharePct = 70

	if err := svc.UpdateConfig(context.Background(), cfg); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetConfigFallsBackToDefault(t *testing.T) {
	svc, _, _ := newTestService()
	tenantID := uuid.New()

	cfg, err := svc.GetConfig(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.TenantID != tenantID || cfg.Active {
		t.Fatalf("expected inactive default config, got %+v", cfg)
	}
}
