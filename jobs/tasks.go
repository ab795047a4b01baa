package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meridian-scm/meridian/internal/forecast"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeMilestoneNotify alerts portal users about milestone changes.
	TaskTypeMilestoneNotify = "forecast:milestone_notify"
	// TaskTypeLedgerRefresh re-warms the reconciliation summary cache.
	TaskTypeLedgerRefresh = "ledger:summary_refresh"
)

// NewMilestoneNotifyTask constructs an Asynq task from a milestone event.
func NewMilestoneNotifyTask(evt forecast.MilestoneUpdatedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMilestoneNotify, data), nil
}

// LedgerRefreshPayload controls the summary refresh behaviour.
type LedgerRefreshPayload struct {
	// Bump advances the cache version before warming, discarding every
	// previously cached range.
	Bump bool `json:"bump"`
}

// NewLedgerRefreshTask constructs an Asynq task for a cache refresh.
func NewLedgerRefreshTask(payload LedgerRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLedgerRefresh, data), nil
}

// Client submits jobs to the queue. It satisfies forecast.Notifier.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueMilestoneUpdate enqueues a milestone notification task.
func (c *Client) EnqueueMilestoneUpdate(ctx context.Context, evt forecast.MilestoneUpdatedEvent) error {
	task, err := NewMilestoneNotifyTask(evt)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueLedgerRefresh enqueues a summary cache refresh.
func (c *Client) EnqueueLedgerRefresh(ctx context.Context, payload LedgerRefreshPayload) (*asynq.TaskInfo, error) {
	task, err := NewLedgerRefreshTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
