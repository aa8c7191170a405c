package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer submits screenshot jobs to the queue
type Enqueuer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
	timeout   time.Duration
}

// EnqueuerConfig holds enqueue options applied to every task
type EnqueuerConfig struct {
	RedisURL  string
	QueueName string
	MaxRetry  int           // default 3
	Timeout   time.Duration // per-task deadline enforced by asynq; 0 keeps asynq's default
}

// NewEnqueuer creates an enqueue client
func NewEnqueuer(cfg *EnqueuerConfig) (*Enqueuer, error) {
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}

	return &Enqueuer{
		client:    asynq.NewClient(redisOpt),
		queueName: cfg.QueueName,
		maxRetry:  maxRetry,
		timeout:   cfg.Timeout,
	}, nil
}

// Enqueue submits payload and returns the job ID. A payload JobID doubles as
// the asynq task ID, so resubmitting the same job while it is pending fails.
func (e *Enqueuer) Enqueue(ctx context.Context, payload *Payload) (string, error) {
	task, err := NewAnalyzeTask(payload, e.options(payload)...)
	if err != nil {
		return "", err
	}

	info, err := e.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", fmt.Errorf("job %s is already queued: %w", payload.JobID, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	if payload.JobID != "" {
		return payload.JobID, nil
	}
	return info.ID, nil
}

func (e *Enqueuer) options(payload *Payload) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(e.queueName),
		asynq.MaxRetry(e.maxRetry),
		asynq.Retention(24 * time.Hour),
	}
	if e.timeout > 0 {
		opts = append(opts, asynq.Timeout(e.timeout))
	}
	if payload.JobID != "" {
		opts = append(opts, asynq.TaskID(payload.JobID))
	}
	return opts
}

// Close closes the enqueue client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
