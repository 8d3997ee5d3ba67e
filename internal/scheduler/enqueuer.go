package scheduler

import (
	"context"
	"time"

	"crm_core_backend/internal/events"
	prodomain "crm_core_backend/internal/productivity/domain"
	"crm_core_backend/platform/logger"
)

// Unassigned leads get a delayed sweep retry; eligibility may have changed
// by then (an agent admitted, a rollover demotion reversed).
const sweepRetryDelay = 10 * time.Minute

// Enqueuer bridges domain events to background jobs: a sale-driven phase
// change schedules the seller's productivity recompute, and a lead left
// unassigned schedules a sweep retry. Enqueue failures are logged and
// swallowed; the publishing flow must not depend on redis.
type Enqueuer struct {
	client *Client
	log    *logger.Logger
}

// NewEnqueuer creates an event-to-job bridge.
func NewEnqueuer(client *Client, log *logger.Logger) *Enqueuer {
	return &Enqueuer{client: client, log: log}
}

// Register subscribes the enqueuer to the events it turns into jobs.
func (e *Enqueuer) Register(bus events.Bus) {
	bus.Subscribe(events.PhaseChanged{}.EventName(), events.HandlerFunc(e.onPhaseChanged))
	bus.Subscribe(events.LeadLeftUnassigned{}.EventName(), events.HandlerFunc(e.onLeadLeftUnassigned))
}

func (e *Enqueuer) onPhaseChanged(ctx context.Context, event events.Event) error {
	changed, ok := event.(events.PhaseChanged)
	if !ok || changed.SaleID == nil {
		return nil
	}

	err := e.client.EnqueueProductivityRecompute(ctx, ProductivityRecomputePayload{
		TenantID:    changed.TenantID.String(),
		AgentID:     changed.AgentID.String(),
		Period:      prodomain.CurrentPeriod(time.Now().UTC(), prodomain.GranularityMonthly),
		Granularity: prodomain.GranularityMonthly,
	})
	if err != nil {
		e.log.Warn("failed to enqueue productivity recompute", "agent_id", changed.AgentID.String(), "error", err)
	}
	return nil
}

func (e *Enqueuer) onLeadLeftUnassigned(ctx context.Context, event events.Event) error {
	lead, ok := event.(events.LeadLeftUnassigned)
	if !ok {
		return nil
	}

	err := e.client.EnqueueLeadSweepIn(ctx, LeadSweepPayload{TenantID: lead.TenantID.String()}, sweepRetryDelay)
	if err != nil {
		e.log.Warn("failed to enqueue lead sweep retry", "tenant_id", lead.TenantID.String(), "error", err)
	}
	return nil
}
