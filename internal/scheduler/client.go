package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"crm_core_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues background jobs. A nil Client is a valid no-op, so
// callers never need to branch on whether redis is configured.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, err error, opts ...asynq.Option) error {
	if err != nil {
		return err
	}
	if c == nil || c.client == nil {
		return nil
	}
	opts = append(opts, asynq.Queue(c.queue))
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	return err
}

// EnqueuePhaseRollover schedules one tenant's monthly rollover. The run is
// idempotent per (tenant, period), so duplicate enqueues are harmless.
func (c *Client) EnqueuePhaseRollover(ctx context.Context, payload PhaseRolloverPayload) error {
	task, err := NewPhaseRolloverTask(payload)
	return c.enqueue(ctx, task, err)
}

// EnqueueLeadSweepIn schedules a reallocation pass over one tenant's
// unassigned pool leads after the given delay.
func (c *Client) EnqueueLeadSweepIn(ctx context.Context, payload LeadSweepPayload, delay time.Duration) error {
	task, err := NewLeadSweepTask(payload)
	return c.enqueue(ctx, task, err, asynq.ProcessIn(delay))
}

// EnqueueProductivityRecompute schedules a summary rebuild for one agent.
func (c *Client) EnqueueProductivityRecompute(ctx context.Context, payload ProductivityRecomputePayload) error {
	task, err := NewProductivityRecomputeTask(payload)
	return c.enqueue(ctx, task, err)
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
