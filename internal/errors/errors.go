package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the screenshot scan worker
 *
 * Only engine start-up and undecodable input escape an image analysis.
 * Everything below the image level is absorbed and degrades the result.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Recognition errors
	ErrorEngineInitFailed        ErrorCode = "ENGINE_INIT_FAILED"
	ErrorRegionRecognitionFailed ErrorCode = "REGION_RECOGNITION_FAILED"

	// Resolution errors (absorbed, logged only)
	ErrorUnresolvedMatch ErrorCode = "UNRESOLVED_MATCH"
	ErrorUnparseableEcho ErrorCode = "UNPARSEABLE_ECHO"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorInvalidImage      ErrorCode = "INVALID_IMAGE"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrorCacheFailed   ErrorCode = "CACHE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewEngineInitError(poolSize int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineInitFailed,
		Message:   fmt.Sprintf("Recognition pool failed to start %d engines", poolSize),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"pool_size": poolSize,
		},
		Cause: cause,
	}
}

func NewRegionRecognitionError(imageRef string, region string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRegionRecognitionFailed,
		Message:   fmt.Sprintf("Recognition failed for region: %s", region),
		JobID:     imageRef,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region": region,
		},
		Cause: cause,
	}
}

func NewUnresolvedMatchError(field string, raw string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnresolvedMatch,
		Message:   fmt.Sprintf("No reference entry matched %s", field),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"field": field,
			"raw":   raw,
		},
	}
}

func NewUnparseableEchoError(raw string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnparseableEcho,
		Message:   "Echo text yielded no name",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"raw_length": len(raw),
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewInvalidImageError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidImage,
		Message:   "Screenshot could not be decoded",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store analysis result",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewCacheFailedError(key string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCacheFailed,
		Message:   "Result cache operation failed",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"key": key,
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRetryable reports whether a later attempt of the same job can succeed
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrorEngineInitFailed, ErrorProcessingTimeout, ErrorStorageFailed:
		return true
	}
	return false
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
