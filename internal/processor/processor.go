/**
 * Screenshot Processor for the Scan Worker
 *
 * Runs one submitted screenshot through the pipeline:
 * - load the image bytes (inline buffer or URL)
 * - reuse a cached result for identical bytes
 * - decode and analyze every catalog region under the processing timeout
 * - cache and persist the final AnalysisResult with the job status
 */

package processor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/imaging"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/storage"
)

// Analyzer recognizes and classifies one decoded image.
// *scheduler.Scheduler implements it.
type Analyzer interface {
	AnalyzeWithRegions(ctx context.Context, ref string, img image.Image) (analysis.Result, []analysis.RawRegionResult, error)
}

// ResultStore caches results by image digest and persists job status.
// *storage.StorageManager implements it.
type ResultStore interface {
	CachedResult(ctx context.Context, digest string) (*analysis.Result, bool, error)
	CacheResult(ctx context.Context, digest string, result analysis.Result) error
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ScreenshotProcessorInterface defines the interface for screenshot processing
type ScreenshotProcessorInterface interface {
	ProcessScreenshot(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Analyzer          Analyzer
	Store             ResultStore // nil disables caching and persistence
	Logger            *logging.Logger
	ProcessingTimeout time.Duration
	MaxImageSize      int64        // bytes; 0 means DefaultMaxImageSize
	HTTPClient        *http.Client // used for ImageURL downloads
}

// ProcessRequest represents a screenshot processing request. Data takes
// precedence over ImageURL.
type ProcessRequest struct {
	JobID    string
	ImageRef string
	ImageURL string
	Data     []byte
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID            string          `json:"jobId"`
	ImageRef         string          `json:"imageRef,omitempty"`
	ImageSHA256      string          `json:"imageSha256"`
	Result           analysis.Result `json:"result"`
	Cached           bool            `json:"cached"`
	FailedRegions    []string        `json:"failedRegions,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// ScreenshotProcessor handles screenshot processing
type ScreenshotProcessor struct {
	analyzer Analyzer
	store    ResultStore
	logger   *logging.Logger
	timeout  time.Duration
	loader   *loader
}

// NewScreenshotProcessor creates a new screenshot processor
func NewScreenshotProcessor(cfg *ProcessorConfig) (*ScreenshotProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	if cfg.ProcessingTimeout <= 0 {
		return nil, fmt.Errorf("processing timeout must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("processor")
	}

	return &ScreenshotProcessor{
		analyzer: cfg.Analyzer,
		store:    cfg.Store,
		logger:   logger,
		timeout:  cfg.ProcessingTimeout,
		loader:   newLoader(cfg.HTTPClient, cfg.MaxImageSize, logger),
	}, nil
}

// ProcessScreenshot analyzes one screenshot. The returned error is a
// ProcessingError except for download failures.
func (p *ScreenshotProcessor) ProcessScreenshot(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	start := time.Now()
	jobID := normalizeJobID(req.JobID)
	ref := req.ImageRef
	if ref == "" {
		ref = jobID
	}
	logger := p.logger.With("job", jobID, "image", ref)

	out := &ProcessResult{JobID: jobID, ImageRef: req.ImageRef, Result: analysis.Unknown()}
	update := &storage.JobUpdate{JobID: jobID, ImageRef: req.ImageRef}

	data, err := p.loader.load(ctx, jobID, req)
	if err != nil {
		p.fail(ctx, logger, update, start, err)
		return out, err
	}

	out.ImageSHA256 = digest(data)
	update.ImageSHA256 = out.ImageSHA256
	p.record(ctx, logger, update, storage.StatusProcessing)

	if cached, ok := p.lookup(ctx, logger, out.ImageSHA256); ok {
		out.Result = *cached
		out.Cached = true
		out.ProcessingTimeMs = time.Since(start).Milliseconds()
		logger.Info("Result served from cache", "type", string(cached.Type))
		return out, p.complete(ctx, logger, update, out)
	}

	if kind := detectImageType(data); kind == "" {
		err = werrors.NewInvalidImageError(jobID, fmt.Errorf("unsupported image format"))
		p.fail(ctx, logger, update, start, err)
		return out, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		err = werrors.NewInvalidImageError(jobID, err)
		p.fail(ctx, logger, update, start, err)
		return out, err
	}

	processCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, regions, err := p.analyzer.AnalyzeWithRegions(processCtx, ref, img)
	if err == nil && errors.Is(processCtx.Err(), context.DeadlineExceeded) {
		err = werrors.NewProcessingTimeoutError(jobID, p.timeout, processCtx.Err())
	}
	if err != nil {
		p.fail(ctx, logger, update, start, err)
		return out, err
	}

	out.Result = result
	out.FailedRegions = analysis.FailedRegions(regions)
	out.ProcessingTimeMs = time.Since(start).Milliseconds()

	// Unknown results are not cached; the next submission may recognize more.
	if result.Type != analysis.TypeUnknown && p.store != nil {
		if err := p.store.CacheResult(ctx, out.ImageSHA256, result); err != nil {
			logger.Warn("Failed to cache result", "error", err)
		}
	}

	logger.Info("Screenshot processed",
		"type", string(result.Type),
		"failed_regions", len(out.FailedRegions),
		"duration_ms", out.ProcessingTimeMs,
	)
	return out, p.complete(ctx, logger, update, out)
}

func (p *ScreenshotProcessor) lookup(ctx context.Context, logger *logging.Logger, sha string) (*analysis.Result, bool) {
	if p.store == nil {
		return nil, false
	}
	cached, ok, err := p.store.CachedResult(ctx, sha)
	if err != nil {
		logger.Warn("Cache lookup failed", "error", err)
		return nil, false
	}
	return cached, ok
}

// record writes an intermediate status; failures only warn.
func (p *ScreenshotProcessor) record(ctx context.Context, logger *logging.Logger, update *storage.JobUpdate, status string) {
	if p.store == nil {
		return
	}
	update.Status = status
	if err := p.store.UpdateJobStatus(ctx, update); err != nil {
		logger.Warn("Failed to update job status", "status", status, "error", err)
	}
}

// complete persists the final result. Its error is returned to the caller
// so the job is retried; the retry is served from the cache.
func (p *ScreenshotProcessor) complete(ctx context.Context, logger *logging.Logger, update *storage.JobUpdate, out *ProcessResult) error {
	if p.store == nil {
		return nil
	}
	update.Status = storage.StatusCompleted
	update.Result = &out.Result
	update.FailedRegions = out.FailedRegions
	update.ProcessingTimeMs = out.ProcessingTimeMs
	if err := p.store.UpdateJobStatus(ctx, update); err != nil {
		logger.Error("Failed to persist result", "error", err)
		return err
	}
	return nil
}

func (p *ScreenshotProcessor) fail(ctx context.Context, logger *logging.Logger, update *storage.JobUpdate, start time.Time, cause error) {
	logger.Error("Screenshot processing failed",
		"error", cause,
		"code", string(werrors.CodeOf(cause)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if p.store == nil {
		return
	}

	update.Status = storage.StatusFailed
	update.ProcessingTimeMs = time.Since(start).Milliseconds()
	var pe *werrors.ProcessingError
	if errors.As(cause, &pe) {
		update.Error = pe.ToMap()
	} else {
		update.Error = map[string]interface{}{"message": cause.Error()}
	}
	if err := p.store.UpdateJobStatus(ctx, update); err != nil {
		logger.Warn("Failed to update status to failed", "error", err)
	}
}

// normalizeJobID returns id when it is a UUID. Other non-empty IDs map to a
// stable name-based UUID and an empty ID gets a random one.
func normalizeJobID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("scan-job:"+id)).String()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
