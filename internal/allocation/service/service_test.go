package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"crm_core_backend/internal/allocation/domain"
	"crm_core_backend/internal/events"
	phasesdomain "crm_core_backend/internal/phases/domain"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.PoolLead
	candidates []domain.Candidate
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: make(map[uuid.UUID]domain.PoolLead)}
}

func (f *fakeRepo) CreateLead(_ context.Context, lead domain.PoolLead) (domain.PoolLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead.ID = uuid.New()
	lead.CreatedAt = time.Now()
	f.leads[lead.ID] = lead
	return lead, nil
}

func (f *fakeRepo) GetLead(_ context.Context, _, leadID uuid.UUID) (domain.PoolLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[leadID]
	if !ok {
		return domain.PoolLead{}, apperr.NotFound("pool lead not found")
	}
	return lead, nil
}

func (f *fakeRepo) ListUnassigned(_ context.Context, tenantID uuid.UUID, _ int) ([]domain.PoolLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PoolLead
	for _, lead := range f.leads {
		if lead.TenantID == tenantID && !lead.Assigned() {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (f *fakeRepo) ClaimLead(_ context.Context, _, leadID, agentID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[leadID]
	if !ok || lead.Assigned() {
		return false, nil
	}
	now := time.Now()
	lead.AssignedAgentID = &agentID
	lead.AssignedAt = &now
	f.leads[leadID] = lead
	return true, nil
}

func (f *fakeRepo) ResetLead(_ context.Context, _, leadID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[leadID]
	if !ok {
		return apperr.NotFound("pool lead not found")
	}
	lead.AssignedAgentID = nil
	lead.AssignedAt = nil
	f.leads[leadID] = lead
	return nil
}

func (f *fakeRepo) ListCandidates(context.Context, uuid.UUID) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates, nil
}

type fakePhases struct {
	cfg phasesdomain.PhaseConfig
}

func (f *fakePhases) GetConfig(context.Context, uuid.UUID) (phasesdomain.PhaseConfig, error) {
	return f.cfg, nil
}

func (f *fakePhases) ListActiveTenants(context.Context) ([]uuid.UUID, error) {
	if f.cfg.Active {
		return []uuid.UUID{f.cfg.TenantID}, nil
	}
	return nil, nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event)          {}
func (nopBus) PublishSync(context.Context, events.Event) error { return nil }
func (nopBus) Subscribe(string, events.Handler)               {}

func newTestService(active bool) (*Service, *fakeRepo, uuid.UUID) {
	tenantID := uuid.New()
	cfg := phasesdomain.DefaultConfig(tenantID)
	cfg.Active = active

	repo := newFakeRepo()
	svc := NewService(repo, &fakePhases{cfg: cfg}, nopBus{}, logger.New("development"))
	return svc, repo, tenantID
}

func TestSubmitLeadAssignsWhenEligible(t *testing.T) {
	svc, repo, tenantID := newTestService(true)
	agentID := uuid.New()
	repo.candidates = []domain.Candidate{{AgentID: agentID, Phase: 3}}

	lead, err := svc.SubmitLead(context.Background(), tenantID, NewLead{
		ConsumerName:  "Marta Ruiz",
		ConsumerPhone: "612 345 678",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !lead.Assigned() || *lead.AssignedAgentID != agentID {
		t.Fatalf("expected lead assigned to %s, got %+v", agentID, lead)
	}
	if lead.ConsumerPhone != "+34612345678" {
		t.Fatalf("expected normalized phone, got %q", lead.ConsumerPhone)
	}
}

func TestSubmitLeadQueuesWithoutCandidates(t *testing.T) {
	svc, _, tenantID := newTestService(true)

	lead, err := svc.SubmitLead(context.Background(), tenantID, NewLead{
		ConsumerName:  "Jordi Puig",
		ConsumerPhone: "+34911222333",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if lead.Assigned() {
		t.Fatal("expected lead to stay queued")
	}
}

func TestSubmitLeadQueuesWhenEngineInactive(t *testing.T) {
	svc, repo, tenantID := newTestService(false)
	repo.candidates = []domain.Candidate{{AgentID: uuid.New(), Phase: 5}}

	lead, err := svc.SubmitLead(context.Background(), tenantID, NewLead{
		ConsumerName:  "Nuria Sala",
		ConsumerPhone: "+34600111222",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if lead.Assigned() {
		t.Fatal("inactive engine must not assign leads")
	}
}

func TestAllocateRejectsAssignedLead(t *testing.T) {
	svc, repo, tenantID := newTestService(true)
	repo.candidates = []domain.Candidate{{AgentID: uuid.New(), Phase: 2}}

	lead, err := svc.SubmitLead(context.Background(), tenantID, NewLead{
		ConsumerName:  "Pau Vidal",
		ConsumerPhone: "+34600999888",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.Allocate(context.Background(), tenantID, lead.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestResetReturnsLeadToPool(t *testing.T) {
	svc, repo, tenantID := newTestService(true)
	repo.candidates = []domain.Candidate{{AgentID: uuid.New(), Phase: 2}}

	lead, err := svc.SubmitLead(context.Background(), tenantID, NewLead{
		ConsumerName:  "Clara Bosch",
		ConsumerPhone: "+34655444333",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	reset, err := svc.Reset(context.Background(), tenantID, lead.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Assigned() {
		t.Fatal("expected lead unassigned after reset")
	}
}

func TestSweepAssignsQueuedLeads(t *testing.T) {
	svc, repo, tenantID := newTestService(false)

	for i := 0; i < 3; i++ {
		if _, err := svc.SubmitLead(context.Background(), tenantID, NewLead{
			ConsumerName:  "Queued Lead",
			ConsumerPhone: "+34600000001",
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	// Activate the engine and add an agent, then sweep the backlog.
	repo.candidates = []domain.Candidate{{AgentID: uuid.New(), Phase: 4}}
	cfg := phasesdomain.DefaultConfig(tenantID)
	cfg.Active = true
	active := NewService(repo, &fakePhases{cfg: cfg}, nopBus{}, logger.New("development"))

	assigned, err := active.Sweep(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if assigned != 3 {
		t.Fatalf("expected 3 leads assigned, got %d", assigned)
	}
}
