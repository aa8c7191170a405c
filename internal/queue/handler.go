package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/processor"
)

// Handler runs scan:analyze tasks through the screenshot processor
type Handler struct {
	processor processor.ScreenshotProcessorInterface
	events    EventPublisher
	logger    *logging.Logger
}

// NewHandler creates a task handler. events may be nil.
func NewHandler(proc processor.ScreenshotProcessorInterface, events EventPublisher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewLogger("queue")
	}
	return &Handler{processor: proc, events: events, logger: logger}
}

// ProcessTask implements asynq.Handler
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.JobID = id
		}
	}

	attempt, _ := asynq.GetRetryCount(ctx)
	logger := h.logger.With("job", payload.JobID, "attempt", attempt+1)
	logger.Info("Processing screenshot", "image", payload.ImageRef, "bytes", len(payload.Image))

	result, err := h.processor.ProcessScreenshot(ctx, payload.Request())
	duration := time.Since(startTime)

	if err != nil {
		retry := shouldRetry(err)
		logger.Error("Screenshot job failed",
			"error", err,
			"retry", retry,
			"duration_ms", duration.Milliseconds(),
		)
		if !retry || finalAttempt(ctx) {
			h.publish(ctx, logger, failedEvent(payload.JobID, result, err))
		}
		if !retry {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if w := task.ResultWriter(); w != nil {
		if data, err := json.Marshal(result); err == nil {
			if _, err := w.Write(data); err != nil {
				logger.Warn("Failed to write task result", "error", err)
			}
		}
	}

	h.publish(ctx, logger, &Event{
		Event:       EventCompleted,
		JobID:       result.JobID,
		ImageSHA256: result.ImageSHA256,
		Cached:      result.Cached,
		Result:      &result.Result,
	})

	logger.Info("Screenshot job completed",
		"type", string(result.Result.Type),
		"cached", result.Cached,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

func (h *Handler) publish(ctx context.Context, logger *logging.Logger, event *Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish job event", "event", event.Event, "error", err)
	}
}

// shouldRetry retries uncoded failures (downloads) and retryable codes
func shouldRetry(err error) bool {
	return werrors.CodeOf(err) == "" || werrors.IsRetryable(err)
}

// finalAttempt reports whether asynq will not run the task again on failure.
// Outside a server every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok || !ok2 {
		return true
	}
	return retried >= maxRetry
}

func failedEvent(jobID string, result *processor.ProcessResult, err error) *Event {
	event := &Event{Event: EventFailed, JobID: jobID}
	if result != nil {
		event.JobID = result.JobID
		event.ImageSHA256 = result.ImageSHA256
	}
	var pe *werrors.ProcessingError
	if errors.As(err, &pe) {
		event.Error = pe.ToMap()
	} else {
		event.Error = map[string]interface{}{"message": err.Error()}
	}
	return event
}
