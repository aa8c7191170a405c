package recognition

import (
	"context"
	"fmt"
	"image"
	"sync"

	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/imaging"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/regions"
	"golang.org/x/sync/singleflight"
)

// Pool owns a fixed number of engines behind a semaphore with the same
// number of permits, so at most Size recognitions run at once no matter how
// many images or regions are submitted.
type Pool struct {
	size    int
	factory EngineFactory
	logger  *logging.Logger
	prep    imaging.Options

	sem   *Semaphore
	start singleflight.Group

	mu      sync.Mutex
	engines []Engine // all engines, owned
	idle    []Engine // engines not currently running a job
	started bool
	gen     uint64 // bumped by Close; a start from an older generation is discarded
}

// NewPool creates an unstarted pool of size engines built by factory
func NewPool(size int, factory EngineFactory, logger *logging.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = logging.NewLogger("recognition")
	}
	return &Pool{
		size:    size,
		factory: factory,
		logger:  logger,
		prep:    imaging.DefaultOptions,
		sem:     NewSemaphore(size),
	}
}

// SetPreprocessing replaces the crop preprocessing applied before recognition.
// Call it before the pool is shared.
func (p *Pool) SetPreprocessing(opts imaging.Options) {
	p.prep = opts
}

// Size returns the number of engines (and permits) in the pool
func (p *Pool) Size() int {
	return p.size
}

// Semaphore exposes the permit guard for inspection
func (p *Pool) Semaphore() *Semaphore {
	return p.sem
}

// EnsureStarted builds the engines once. Concurrent callers share a single
// in-flight start and all observe its error; after a failure the pool stays
// unstarted and the next call tries again.
func (p *Pool) EnsureStarted(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		return nil
	}

	_, err, _ := p.start.Do("start", func() (interface{}, error) {
		p.mu.Lock()
		if p.started {
			p.mu.Unlock()
			return nil, nil
		}
		gen := p.gen
		p.mu.Unlock()

		// The start is shared; no single caller's cancellation ends it.
		engines, err := p.buildEngines(context.WithoutCancel(ctx))
		if err != nil {
			return nil, werrors.NewEngineInitError(p.size, err)
		}

		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			closeAll(engines)
			return nil, fmt.Errorf("recognition pool closed while starting")
		}
		p.engines = engines
		p.idle = append([]Engine(nil), engines...)
		p.started = true
		p.mu.Unlock()

		p.logger.Info("Recognition pool started", "engines", len(engines))
		return nil, nil
	})
	return err
}

func (p *Pool) buildEngines(ctx context.Context) ([]Engine, error) {
	type built struct {
		engine Engine
		err    error
	}
	results := make([]built, p.size)

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := p.factory(ctx)
			results[i] = built{engine: e, err: err}
		}(i)
	}
	wg.Wait()

	engines := make([]Engine, 0, p.size)
	var firstErr error
	for i, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("engine %d: %w", i, r.err)
			}
			continue
		}
		engines = append(engines, r.engine)
	}
	if firstErr != nil {
		closeAll(engines)
		return nil, firstErr
	}
	return engines, nil
}

func closeAll(engines []Engine) error {
	var firstErr error
	for _, e := range engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recognize crops rect out of img and recognizes it while holding a permit.
// The pool must be started.
func (p *Pool) Recognize(ctx context.Context, img image.Image, rect regions.Rect, opts Options) (string, error) {
	if rect.Empty() {
		return "", fmt.Errorf("empty region rectangle %+v", rect)
	}
	crop, err := imaging.RegionPNG(img, rect.Image(), p.prep)
	if err != nil {
		return "", err
	}
	return p.RecognizeEncoded(ctx, crop, opts)
}

// RecognizeEncoded runs an already encoded crop through a pooled engine.
func (p *Pool) RecognizeEncoded(ctx context.Context, crop []byte, opts Options) (string, error) {
	if err := p.sem.Acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release()

	engine, err := p.checkout()
	if err != nil {
		return "", err
	}
	defer p.checkin(engine)

	return engine.Recognize(ctx, crop, opts)
}

func (p *Pool) checkout() (Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, fmt.Errorf("recognition pool is not started")
	}
	n := len(p.idle)
	if n == 0 {
		// Unreachable while permits == engines.
		return nil, fmt.Errorf("no idle engine despite held permit")
	}
	e := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return e, nil
}

func (p *Pool) checkin(e Engine) {
	p.mu.Lock()
	for _, owned := range p.engines {
		if owned == e {
			p.idle = append(p.idle, e)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// The pool was closed while this job ran; the engine is closed here,
	// after its last recognition returned.
	if err := e.Close(); err != nil {
		p.logger.Warn("Failed to close released engine", "error", err)
	}
}

// Close terminates the idle engines and resets the pool so EnsureStarted can
// start it again. Engines still running a job are closed when that job
// returns them, and a start in flight is discarded.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	busy := len(p.engines) - len(idle)
	p.engines = nil
	p.idle = nil
	p.started = false
	p.gen++
	p.mu.Unlock()

	err := closeAll(idle)
	if len(idle) > 0 || busy > 0 {
		p.logger.Info("Recognition pool closed", "engines", len(idle), "busy", busy)
	}
	return err
}
