package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/wuwabuilds/scan-worker/internal/processor"
)

// TaskTypeAnalyze is the asynq task type of a screenshot analysis job
const TaskTypeAnalyze = "scan:analyze"

// Payload is the task payload of a screenshot analysis job. Image is
// marshaled as base64; a Node.js Buffer object is also accepted.
type Payload struct {
	JobID    string `json:"jobId"`
	ImageRef string `json:"imageRef,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Image    []byte `json:"image,omitempty"`
}

// UnmarshalJSON accepts image as a base64 string or as {"type":"Buffer","data":[...]}
func (p *Payload) UnmarshalJSON(data []byte) error {
	type Alias Payload
	aux := &struct {
		Image interface{} `json:"image,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	switch v := aux.Image.(type) {
	case nil:
		p.Image = nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image: %w", err)
		}
		p.Image = decoded
	case map[string]interface{}:
		buf, err := decodeBufferObject(v)
		if err != nil {
			return err
		}
		p.Image = buf
	default:
		return fmt.Errorf("image must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

func decodeBufferObject(v map[string]interface{}) ([]byte, error) {
	if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
		return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
	}
	dataArray, ok := v["data"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("Buffer object missing 'data' array")
	}
	buf := make([]byte, len(dataArray))
	for i, val := range dataArray {
		byteVal, ok := val.(float64)
		if !ok || byteVal < 0 || byteVal > 255 {
			return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
		}
		buf[i] = byte(byteVal)
	}
	return buf, nil
}

// Validate checks the payload names an image source
func (p *Payload) Validate() error {
	if len(p.Image) == 0 && p.ImageURL == "" {
		return fmt.Errorf("payload has neither image nor imageUrl")
	}
	return nil
}

// Request converts the payload to a processor request
func (p *Payload) Request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:    p.JobID,
		ImageRef: p.ImageRef,
		ImageURL: p.ImageURL,
		Data:     p.Image,
	}
}

// NewAnalyzeTask builds the asynq task for payload
func NewAnalyzeTask(payload *Payload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeAnalyze, data, opts...), nil
}
