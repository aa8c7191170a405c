/**
 * Queue Consumer for the Scan Worker
 *
 * Consumes scan:analyze tasks from Redis with asynq and runs each through
 * the screenshot processor. Failed tasks are retried with exponential
 * backoff unless their error is permanent.
 */

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/processor"
)

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler *Handler
	config  *ConsumerConfig
	logger  *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL        string
	QueueName       string
	Concurrency     int
	Processor       processor.ScreenshotProcessorInterface
	Events          EventPublisher // optional
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			RetryDelayFunc:  RetryDelay,
			ShutdownTimeout: shutdownTimeout,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				id, _ := asynq.GetTaskID(ctx)
				logger.Warn("Task processing error", "type", task.Type(), "task", id, "error", err)
			}),
			Logger: asynqLogger{logger: logger.With("subsystem", "asynq")},
		},
	)

	handler := NewHandler(cfg.Processor, cfg.Events, logger)

	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeAnalyze, handler)

	return &Consumer{
		server:  server,
		mux:     mux,
		handler: handler,
		config:  cfg,
		logger:  logger,
	}, nil
}

// RetryDelay is exponential backoff: 5s, 10s, 20s, capped at 60s
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 4 {
		return 60 * time.Second
	}
	return min(time.Duration(5*(1<<uint(n)))*time.Second, 60*time.Second)
}

// Start starts the queue consumer; it returns once the server is running
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName,
	)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for running tasks up to the shutdown timeout and stops the server
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer...")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"taskType":    TaskTypeAnalyze,
	}
}
