// Package service implements pool lead intake and weighted allocation.
package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"crm_core_backend/internal/allocation/domain"
	"crm_core_backend/internal/allocation/repository"
	"crm_core_backend/internal/events"
	phasesdomain "crm_core_backend/internal/phases/domain"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/logger"
	"crm_core_backend/platform/phone"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const sweepConcurrency = 4

// PhaseReader is the slice of the phases module the allocator depends on.
type PhaseReader interface {
	GetConfig(ctx context.Context, tenantID uuid.UUID) (phasesdomain.PhaseConfig, error)
	ListActiveTenants(ctx context.Context) ([]uuid.UUID, error)
}

// NewLead carries the fields of an incoming consumer lead.
type NewLead struct {
	ConsumerName  string
	ConsumerPhone string
	ConsumerEmail *string
	Source        *string
}

type Service struct {
	repo   repository.Store
	phases PhaseReader
	bus    events.Bus
	log    *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(repo repository.Store, phases PhaseReader, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		phases: phases,
		bus:    bus,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) draw(candidates []domain.Candidate) (domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Draw(candidates, s.rng)
}

// SubmitLead stores an incoming lead and immediately tries to allocate it.
// When no eligible agent exists or the phase engine is inactive, the lead
// stays queued for a later sweep.
func (s *Service) SubmitLead(ctx context.Context, tenantID uuid.UUID, in NewLead) (domain.PoolLead, error) {
	if in.ConsumerName == "" || in.ConsumerPhone == "" {
		return domain.PoolLead{}, apperr.Validation("consumer name and phone are required")
	}

	lead, err := s.repo.CreateLead(ctx, domain.PoolLead{
		TenantID:      tenantID,
		ConsumerName:  in.ConsumerName,
		ConsumerPhone: phone.NormalizeE164(in.ConsumerPhone),
		ConsumerEmail: in.ConsumerEmail,
		Source:        in.Source,
	})
	if err != nil {
		return domain.PoolLead{}, err
	}

	assigned, err := s.tryAllocate(ctx, tenantID, lead)
	if err != nil {
		return domain.PoolLead{}, err
	}
	if assigned != nil {
		return *assigned, nil
	}
	return lead, nil
}

// Allocate runs a weighted draw for one queued lead.
func (s *Service) Allocate(ctx context.Context, tenantID, leadID uuid.UUID) (domain.PoolLead, error) {
	lead, err := s.repo.GetLead(ctx, tenantID, leadID)
	if err != nil {
		return domain.PoolLead{}, err
	}
	if lead.Assigned() {
		return domain.PoolLead{}, apperr.Conflict("lead is already assigned")
	}

	assigned, err := s.tryAllocate(ctx, tenantID, lead)
	if err != nil {
		return domain.PoolLead{}, err
	}
	if assigned != nil {
		return *assigned, nil
	}
	return lead, nil
}

// tryAllocate draws an eligible agent and claims the lead for them. A nil
// result with nil error means the lead stays queued.
func (s *Service) tryAllocate(ctx context.Context, tenantID uuid.UUID, lead domain.PoolLead) (*domain.PoolLead, error) {
	cfg, err := s.phases.GetConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, nil
	}

	candidates, err := s.repo.ListCandidates(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].Weight = cfg.WeightFor(candidates[i].Phase)
	}

	winner, ok := s.draw(candidates)
	if !ok {
		s.bus.Publish(ctx, events.LeadLeftUnassigned{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  tenantID,
			LeadID:    lead.ID,
		})
		return nil, nil
	}

	claimed, err := s.repo.ClaimLead(ctx, tenantID, lead.ID, winner.AgentID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperr.Conflict("lead was assigned concurrently")
	}

	s.log.LeadAssigned(tenantID.String(), lead.ID.String(), winner.AgentID.String(), winner.Phase)
	s.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent:  events.NewBaseEvent(),
		TenantID:   tenantID,
		LeadID:     lead.ID,
		AgentID:    winner.AgentID,
		AgentPhase: winner.Phase,
	})

	updated, err := s.repo.GetLead(ctx, tenantID, lead.ID)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Reset returns an assigned lead to the pool.
func (s *Service) Reset(ctx context.Context, tenantID, leadID uuid.UUID) (domain.PoolLead, error) {
	if err := s.repo.ResetLead(ctx, tenantID, leadID); err != nil {
		return domain.PoolLead{}, err
	}
	return s.repo.GetLead(ctx, tenantID, leadID)
}

func (s *Service) GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (domain.PoolLead, error) {
	return s.repo.GetLead(ctx, tenantID, leadID)
}

func (s *Service) ListUnassigned(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.PoolLead, error) {
	return s.repo.ListUnassigned(ctx, tenantID, limit)
}

// Sweep retries allocation for the tenant's queued leads, oldest first.
// It stops early once a draw finds no eligible agent, since later leads
// would hit the same empty pool.
func (s *Service) Sweep(ctx context.Context, tenantID uuid.UUID) (int, error) {
	leads, err := s.repo.ListUnassigned(ctx, tenantID, 0)
	if err != nil {
		return 0, err
	}

	var assigned int
	for _, lead := range leads {
		result, err := s.tryAllocate(ctx, tenantID, lead)
		if apperr.Is(err, apperr.KindConflict) {
			continue
		}
		if err != nil {
			return assigned, err
		}
		if result == nil {
			break
		}
		assigned++
	}
	return assigned, nil
}

// SweepAll sweeps the queue of every tenant with an active configuration.
func (s *Service) SweepAll(ctx context.Context) error {
	tenants, err := s.phases.ListActiveTenants(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, tenantID := range tenants {
		g.Go(func() error {
			_, err := s.Sweep(gctx, tenantID)
			return err
		})
	}
	return g.Wait()
}
