package scheduler

import (
	"context"
	"fmt"

	"crm_core_backend/platform/config"
	"crm_core_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring jobs: the monthly phase rollover fan-out
// and the lead sweep. Entries carry static payloads; the rollover period is
// resolved by the worker at run time.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

const (
	// First day of the month, 03:00 UTC; the rollover handler resolves the
	// period to the month that just started.
	rolloverCron = "0 3 1 * *"
	sweepCron    = "*/15 * * * *"
)

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})

	rollover, err := NewPhaseRolloverAllTask(PhaseRolloverAllPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(rolloverCron, rollover, asynq.Queue(queue)); err != nil {
		return nil, err
	}

	sweep, err := NewLeadSweepAllTask()
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(sweepCron, sweep, asynq.Queue(queue)); err != nil {
		return nil, err
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
