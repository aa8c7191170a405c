/**
 * Job Scheduler
 *
 * Submits one recognition job per catalog region for each image. All regions
 * of an image run concurrently, bounded only by the recognizer's shared pool.
 * A failed or timed-out region contributes empty text; it never aborts its
 * siblings. Once every region has reported, the strategy turns the raw texts
 * into a single result.
 */

package scheduler

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/recognition"
	"github.com/wuwabuilds/scan-worker/internal/regions"
)

// Recognizer is the pooled recognition primitive. *recognition.Pool implements it.
type Recognizer interface {
	EnsureStarted(ctx context.Context) error
	Recognize(ctx context.Context, img image.Image, rect regions.Rect, opts recognition.Options) (string, error)
}

// Strategy turns the raw region texts of one image into a result.
// *classifier.Classifier implements it.
type Strategy interface {
	Classify(results []analysis.RawRegionResult) analysis.Result
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(results []analysis.RawRegionResult) analysis.Result

func (f StrategyFunc) Classify(results []analysis.RawRegionResult) analysis.Result {
	return f(results)
}

// Options tunes the scheduler
type Options struct {
	// RegionTimeout bounds each region job; 0 disables. An expired job is
	// treated as failed while its recognition finishes in the background.
	RegionTimeout time.Duration
}

// Scheduler fans images out into region jobs
type Scheduler struct {
	recognizer Recognizer
	catalog    *regions.Catalog
	strategy   Strategy
	logger     *logging.Logger
	opts       Options

	inFlight   atomic.Int64 // images
	activeJobs atomic.Int64 // region jobs
}

// New creates a scheduler over the given catalog
func New(recognizer Recognizer, catalog *regions.Catalog, strategy Strategy, logger *logging.Logger, opts Options) *Scheduler {
	if catalog == nil {
		catalog = regions.DefaultCatalog()
	}
	if logger == nil {
		logger = logging.NewLogger("scheduler")
	}
	return &Scheduler{
		recognizer: recognizer,
		catalog:    catalog,
		strategy:   strategy,
		logger:     logger,
		opts:       opts,
	}
}

// InFlight returns the number of images currently being analyzed
func (s *Scheduler) InFlight() int64 {
	return s.inFlight.Load()
}

// ActiveJobs returns the number of region jobs not yet finished
func (s *Scheduler) ActiveJobs() int64 {
	return s.activeJobs.Load()
}

// Analyze recognizes every region of img and classifies the result. Only an
// invalid image or a recognizer that cannot start is returned as an error;
// everything else degrades the result.
func (s *Scheduler) Analyze(ctx context.Context, ref string, img image.Image) (analysis.Result, error) {
	result, _, err := s.AnalyzeWithRegions(ctx, ref, img)
	return result, err
}

// AnalyzeWithRegions is Analyze that also returns the raw region results the
// classification was made from.
func (s *Scheduler) AnalyzeWithRegions(ctx context.Context, ref string, img image.Image) (analysis.Result, []analysis.RawRegionResult, error) {
	if img == nil || img.Bounds().Empty() {
		return analysis.Unknown(), nil, werrors.NewInvalidImageError(ref, fmt.Errorf("image has no pixels"))
	}

	if err := s.recognizer.EnsureStarted(ctx); err != nil {
		if werrors.CodeOf(err) == "" {
			err = werrors.NewEngineInitError(0, err)
		}
		return analysis.Unknown(), nil, err
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	start := time.Now()
	results := s.RecognizeRegions(ctx, ref, img)
	result := s.strategy.Classify(results)

	s.logger.Debug("Image analyzed",
		"image", ref,
		"type", string(result.Type),
		"regions", len(results),
		"failed", len(analysis.FailedRegions(results)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, results, nil
}

// RecognizeRegions runs one job per region concurrently and returns their
// results in catalog priority order.
func (s *Scheduler) RecognizeRegions(ctx context.Context, ref string, img image.Image) []analysis.RawRegionResult {
	ordered := s.catalog.Ordered()
	results := make([]analysis.RawRegionResult, len(ordered))
	b := img.Bounds()

	var wg sync.WaitGroup
	for i, region := range ordered {
		wg.Add(1)
		go func(i int, region regions.Region) {
			defer wg.Done()
			results[i] = s.runJob(ctx, ref, img, region, region.PixelRect(b.Dx(), b.Dy()))
		}(i, region)
	}
	wg.Wait()

	return results
}

func (s *Scheduler) runJob(ctx context.Context, ref string, img image.Image, region regions.Region, rect regions.Rect) analysis.RawRegionResult {
	s.activeJobs.Add(1)
	defer s.activeJobs.Add(-1)

	out := analysis.RawRegionResult{Region: region.Name}
	if rect.Empty() {
		out.Err = werrors.NewRegionRecognitionError(ref, region.Name, fmt.Errorf("region maps to an empty rectangle"))
		s.logger.Warn("Region skipped", "image", ref, "region", region.Name, "error", out.Err)
		return out
	}

	jobCtx := ctx
	if s.opts.RegionTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.opts.RegionTimeout)
		defer cancel()
	}

	text, err := s.recognize(jobCtx, img, rect, recognition.Options{Whitelist: region.Whitelist})
	if err != nil {
		out.Err = werrors.NewRegionRecognitionError(ref, region.Name, err)
		s.logger.Warn("Region recognition failed", "image", ref, "region", region.Name, "error", err)
		return out
	}
	out.Text = text
	return out
}

// recognize returns when the job finishes or ctx expires, whichever is first.
// Panics in the recognizer are converted to errors at this boundary.
func (s *Scheduler) recognize(ctx context.Context, img image.Image, rect regions.Rect, opts recognition.Options) (string, error) {
	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("recognizer panic: %v", r)}
			}
		}()
		text, err := s.recognizer.Recognize(ctx, img, rect, opts)
		done <- reply{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
