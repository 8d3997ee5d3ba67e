package scheduler

import (
	"context"
	"fmt"
	"time"

	allocservice "crm_core_backend/internal/allocation/service"
	phasesservice "crm_core_backend/internal/phases/service"
	prodservice "crm_core_backend/internal/productivity/service"
	"crm_core_backend/platform/config"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes background jobs and drives the corresponding services.
// The client lets the rollover fan-out re-enqueue per-tenant tasks so each
// tenant retries independently; when nil the fan-out runs inline.
type Worker struct {
	server       *asynq.Server
	mux          *asynq.ServeMux
	client       *Client
	phases       *phasesservice.Service
	allocation   *allocservice.Service
	productivity *prodservice.Service
	log          *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, client *Client, phases *phasesservice.Service, allocation *allocservice.Service,
	productivity *prodservice.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:       server,
		mux:          mux,
		client:       client,
		phases:       phases,
		allocation:   allocation,
		productivity: productivity,
		log:          log,
	}

	mux.HandleFunc(TaskPhaseRollover, w.handlePhaseRollover)
	mux.HandleFunc(TaskPhaseRolloverAll, w.handlePhaseRolloverAll)
	mux.HandleFunc(TaskLeadSweep, w.handleLeadSweep)
	mux.HandleFunc(TaskLeadSweepAll, w.handleLeadSweepAll)
	mux.HandleFunc(TaskProductivityRecompute, w.handleProductivityRecompute)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handlePhaseRollover(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePhaseRolloverPayload(task)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	_, err = w.phases.Rollover(ctx, tenantID, payload.Period)
	return err
}

func (w *Worker) handlePhaseRolloverAll(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePhaseRolloverAllPayload(task)
	if err != nil {
		return err
	}

	period := payload.Period
	if period == "" {
		period = time.Now().UTC().Format("2006-01")
	}

	if w.client == nil {
		return w.phases.RolloverAll(ctx, period)
	}

	// One task per tenant so a failing tenant retries alone.
	tenants, err := w.phases.ListActiveTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range tenants {
		if err := w.client.EnqueuePhaseRollover(ctx, PhaseRolloverPayload{
			TenantID: tenantID.String(),
			Period:   period,
		}); err != nil {
			return err
		}
	}
	w.log.Info("phase rollover fan-out enqueued", "period", period, "tenants", len(tenants))
	return nil
}

func (w *Worker) handleLeadSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadSweepPayload(task)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	assigned, err := w.allocation.Sweep(ctx, tenantID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		w.log.Info("lead sweep assigned queued leads", "tenant_id", payload.TenantID, "assigned", assigned)
	}
	return nil
}

func (w *Worker) handleLeadSweepAll(ctx context.Context, _ *asynq.Task) error {
	return w.allocation.SweepAll(ctx)
}

func (w *Worker) handleProductivityRecompute(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProductivityRecomputePayload(task)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}
	agentID, err := uuid.Parse(payload.AgentID)
	if err != nil {
		return err
	}

	_, err = w.productivity.Recompute(ctx, tenantID, agentID, payload.Period, payload.Granularity)
	return err
}
