package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
)

// Job lifecycle events
const (
	EventCompleted = "job:completed"
	EventFailed    = "job:failed"
)

// Event is published when a job finishes
type Event struct {
	Event       string                 `json:"event"`
	JobID       string                 `json:"jobId"`
	ImageSHA256 string                 `json:"imageSha256,omitempty"`
	Cached      bool                   `json:"cached,omitempty"`
	Result      *analysis.Result       `json:"result,omitempty"`
	Error       map[string]interface{} `json:"error,omitempty"`
	Timestamp   string                 `json:"timestamp"`
}

// EventPublisher announces job events to listeners
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// RedisEventPublisher publishes events on a Redis pub/sub channel
type RedisEventPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisEventPublisher publishes on "<queue>:events"
func NewRedisEventPublisher(client *redis.Client, queueName string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, channel: EventChannel(queueName)}
}

// EventChannel returns the pub/sub channel for a queue
func EventChannel(queueName string) string {
	return queueName + ":events"
}

// Publish implements EventPublisher
func (p *RedisEventPublisher) Publish(ctx context.Context, event *Event) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Event, err)
	}
	return nil
}
