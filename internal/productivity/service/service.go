// Package service implements the productivity goal resolution and the
// idempotent summary recompute.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_core_backend/internal/events"
	"crm_core_backend/internal/productivity/domain"
	"crm_core_backend/internal/productivity/repository"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/cache"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

// Service wires goal resolution and summary recompute over the store.
// The cache may be nil; reads then always hit Postgres.
type Service struct {
	store repository.Store
	cache *cache.Cache
	bus   events.Bus
	log   *logger.Logger
}

// NewService creates the productivity service.
func NewService(store repository.Store, c *cache.Cache, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, cache: c, bus: bus, log: log}
}

func summaryKey(tenantID, agentID uuid.UUID, period, granularity string) string {
	return fmt.Sprintf("productivity:summary:%s:%s:%s:%s", tenantID, agentID, period, granularity)
}

// TenantGoals returns the tenant default goal set. An unconfigured tenant
// gets an empty set, every metric disabled.
func (s *Service) TenantGoals(ctx context.Context, tenantID uuid.UUID) (domain.GoalSet, error) {
	goals, err := s.store.GetTenantGoals(ctx, tenantID)
	if apperr.Is(err, apperr.KindNotFound) {
		return domain.GoalSet{}, nil
	}
	return goals, err
}

// SetTenantGoals replaces the tenant default goal set.
func (s *Service) SetTenantGoals(ctx context.Context, tenantID uuid.UUID, goals domain.GoalSet) error {
	return s.store.UpsertTenantGoals(ctx, tenantID, goals)
}

// SetOverride replaces the agent's goal override for one period.
func (s *Service) SetOverride(ctx context.Context, tenantID, agentID uuid.UUID, period string, goals domain.GoalSet) error {
	if err := validateAnyPeriod(period); err != nil {
		return err
	}
	return s.store.UpsertOverride(ctx, tenantID, agentID, period, goals)
}

// ResolveGoals merges the agent-period override over the tenant defaults.
// Metrics set at no level resolve to zero, meaning disabled.
func (s *Service) ResolveGoals(ctx context.Context, tenantID, agentID uuid.UUID, period string) (domain.Goals, error) {
	if err := validateAnyPeriod(period); err != nil {
		return domain.Goals{}, err
	}

	override, err := s.store.GetOverride(ctx, tenantID, agentID, period)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return domain.Goals{}, err
	}
	tenant, err := s.store.GetTenantGoals(ctx, tenantID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return domain.Goals{}, err
	}
	return domain.ResolveGoals(override, tenant), nil
}

// GetSummary returns the cached rollup for an agent and period, computing
// it on first access. The cache row is a read model only; the database row
// stays the durable record.
func (s *Service) GetSummary(ctx context.Context, tenantID, agentID uuid.UUID, period, granularity string) (domain.Summary, error) {
	if err := domain.ValidatePeriod(period, granularity); err != nil {
		return domain.Summary{}, err
	}

	var cached domain.Summary
	if err := s.cache.Get(ctx, summaryKey(tenantID, agentID, period, granularity), &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("productivity cache read failed", "error", err)
	}

	summary, err := s.store.GetSummary(ctx, tenantID, agentID, period, granularity)
	if apperr.Is(err, apperr.KindNotFound) {
		return s.Recompute(ctx, tenantID, agentID, period, granularity)
	}
	if err != nil {
		return domain.Summary{}, err
	}

	s.cacheSummary(ctx, summary)
	return summary, nil
}

// Recompute rebuilds one agent's summary from the activity source tables.
// Running it twice with no new source data leaves the stored row unchanged,
// computed_at included.
func (s *Service) Recompute(ctx context.Context, tenantID, agentID uuid.UUID, period, granularity string) (domain.Summary, error) {
	if err := domain.ValidatePeriod(period, granularity); err != nil {
		return domain.Summary{}, err
	}
	from, to, err := domain.PeriodRange(period, granularity)
	if err != nil {
		return domain.Summary{}, err
	}

	counters, err := s.store.CountActivities(ctx, tenantID, agentID, from, to)
	if err != nil {
		return domain.Summary{}, err
	}
	goals, err := s.ResolveGoals(ctx, tenantID, agentID, period)
	if err != nil {
		return domain.Summary{}, err
	}

	next := domain.Summary{
		TenantID:      tenantID,
		AgentID:       agentID,
		Period:        period,
		Granularity:   granularity,
		Counters:      counters,
		PctCompliance: domain.Compliance(counters, goals),
		ComputedAt:    time.Now().UTC(),
	}

	existing, err := s.store.GetSummary(ctx, tenantID, agentID, period, granularity)
	if err == nil && existing.Equivalent(next) {
		s.cacheSummary(ctx, existing)
		return existing, nil
	}
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return domain.Summary{}, err
	}

	if err := s.store.UpsertSummary(ctx, next); err != nil {
		return domain.Summary{}, err
	}
	s.cacheSummary(ctx, next)

	s.bus.Publish(ctx, events.ProductivitySummaryRecomputed{
		BaseEvent:     events.NewBaseEvent(),
		TenantID:      tenantID,
		AgentID:       agentID,
		Period:        period,
		Granularity:   granularity,
		PctCompliance: next.PctCompliance,
	})
	s.log.Info("productivity summary recomputed",
		"tenant_id", tenantID.String(),
		"agent_id", agentID.String(),
		"period", period,
		"granularity", granularity,
		"pct_compliance", next.PctCompliance,
	)

	return next, nil
}

func (s *Service) cacheSummary(ctx context.Context, summary domain.Summary) {
	key := summaryKey(summary.TenantID, summary.AgentID, summary.Period, summary.Granularity)
	if err := s.cache.Set(ctx, key, summary); err != nil {
		s.log.Warn("productivity cache write failed", "error", err)
	}
}

// validateAnyPeriod accepts a period in either granularity; goal overrides
// are keyed by the raw period string.
func validateAnyPeriod(period string) error {
	if domain.ValidatePeriod(period, domain.GranularityMonthly) == nil {
		return nil
	}
	if domain.ValidatePeriod(period, domain.GranularityWeekly) == nil {
		return nil
	}
	return apperr.Validation("period must be formatted as YYYY-MM or YYYY-Www")
}
