// Package app wires the recognition pipeline from configuration. Both the
// queue worker and the scan CLI build their pipeline here.
package app

import (
	"fmt"

	"github.com/wuwabuilds/scan-worker/internal/classifier"
	"github.com/wuwabuilds/scan-worker/internal/config"
	"github.com/wuwabuilds/scan-worker/internal/echo"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/recognition"
	"github.com/wuwabuilds/scan-worker/internal/reference"
	"github.com/wuwabuilds/scan-worker/internal/regions"
	"github.com/wuwabuilds/scan-worker/internal/scheduler"
)

// Pipeline is the shared pool plus the scheduler and classifier over it
type Pipeline struct {
	Tables     *reference.Tables
	Pool       *recognition.Pool
	Classifier *classifier.Classifier
	Scheduler  *scheduler.Scheduler
}

// NewPipeline builds a Tesseract-backed pipeline. Engines start on first use.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	factory := recognition.TesseractFactory(recognition.TesseractConfig{
		Language:    cfg.OCRLanguage,
		TessdataDir: cfg.TessdataDir,
	})
	return NewPipelineWithFactory(cfg, factory)
}

// NewPipelineWithFactory builds a pipeline around any engine factory
func NewPipelineWithFactory(cfg *config.Config, factory recognition.EngineFactory) (*Pipeline, error) {
	tables, err := LoadTables(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	pool := recognition.NewPool(cfg.OCRPoolSize, factory, logging.NewLogger("recognition"))
	parser := echo.NewParser(tables, cfg.SubstatNoiseWords)
	cls := classifier.New(tables, parser, logging.NewLogger("classifier"))
	sched := scheduler.New(pool, regions.DefaultCatalog(), cls, logging.NewLogger("scheduler"), scheduler.Options{
		RegionTimeout: cfg.RegionTimeout,
	})

	return &Pipeline{
		Tables:     tables,
		Pool:       pool,
		Classifier: cls,
		Scheduler:  sched,
	}, nil
}

// LoadTables reads reference data from dir, or the embedded tables when dir is empty
func LoadTables(dir string) (*reference.Tables, error) {
	if dir == "" {
		tables, err := reference.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded reference data: %w", err)
		}
		return tables, nil
	}
	tables, err := reference.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data from %s: %w", dir, err)
	}
	return tables, nil
}

// Close terminates the pool's engines, each once it is no longer running a job
func (p *Pipeline) Close() error {
	return p.Pool.Close()
}
