// Package scheduler defines the asynq task types and the worker that
// executes the periodic rollover, sweep, and recompute jobs.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPhaseRollover = "phases.rollover"

const TaskPhaseRolloverAll = "phases.rollover.all"

const TaskLeadSweep = "allocation.sweep"

const TaskLeadSweepAll = "allocation.sweep.all"

const TaskProductivityRecompute = "productivity.recompute"

type PhaseRolloverPayload struct {
	TenantID string `json:"tenantId"`
	Period   string `json:"period"`
}

// PhaseRolloverAllPayload fans the rollover out over every active tenant.
// An empty period means "the month that just started", resolved at run time
// so periodic entries can carry a static payload.
type PhaseRolloverAllPayload struct {
	Period string `json:"period,omitempty"`
}

type LeadSweepPayload struct {
	TenantID string `json:"tenantId"`
}

type LeadSweepAllPayload struct{}

type ProductivityRecomputePayload struct {
	TenantID    string `json:"tenantId"`
	AgentID     string `json:"agentId"`
	Period      string `json:"period"`
	Granularity string `json:"granularity"`
}

func NewPhaseRolloverTask(payload PhaseRolloverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPhaseRollover, data), nil
}

func ParsePhaseRolloverPayload(task *asynq.Task) (PhaseRolloverPayload, error) {
	var payload PhaseRolloverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PhaseRolloverPayload{}, err
	}
	return payload, nil
}

func NewPhaseRolloverAllTask(payload PhaseRolloverAllPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPhaseRolloverAll, data), nil
}

func ParsePhaseRolloverAllPayload(task *asynq.Task) (PhaseRolloverAllPayload, error) {
	var payload PhaseRolloverAllPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PhaseRolloverAllPayload{}, err
	}
	return payload, nil
}

func NewLeadSweepTask(payload LeadSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadSweep, data), nil
}

func ParseLeadSweepPayload(task *asynq.Task) (LeadSweepPayload, error) {
	var payload LeadSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadSweepPayload{}, err
	}
	return payload, nil
}

func NewLeadSweepAllTask() (*asynq.Task, error) {
	data, err := json.Marshal(LeadSweepAllPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadSweepAll, data), nil
}

func NewProductivityRecomputeTask(payload ProductivityRecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProductivityRecompute, data), nil
}

func ParseProductivityRecomputePayload(task *asynq.Task) (ProductivityRecomputePayload, error) {
	var payload ProductivityRecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProductivityRecomputePayload{}, err
	}
	return payload, nil
}
