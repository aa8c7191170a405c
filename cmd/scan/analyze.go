package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wuwabuilds/scan-worker/internal/app"
	"github.com/wuwabuilds/scan-worker/internal/imaging"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/processor"
)

var (
	analyzeParallel int
	analyzeRegions  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>...",
	Short: "Analyze screenshots with a local recognition pool and print JSON results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeParallel, "parallel", 2, "Screenshots analyzed at once; all share one engine pool")
	analyzeCmd.Flags().BoolVar(&analyzeRegions, "regions", false, "Print the raw text of every region instead of the result")
}

// analyzeOutput is one line of output per file
type analyzeOutput struct {
	File    string                   `json:"file"`
	Result  *processor.ProcessResult `json:"result,omitempty"`
	Regions map[string]string        `json:"regions,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pipeline, err := app.NewPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	proc, err := processor.NewScreenshotProcessor(&processor.ProcessorConfig{
		Analyzer:          pipeline.Scheduler,
		Logger:            logging.NewLogger("scan"),
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if analyzeRegions {
		if err := pipeline.Pool.EnsureStarted(ctx); err != nil {
			return err
		}
	}
	outputs := make([]analyzeOutput, len(args))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(analyzeParallel, 1))
	for i, file := range args {
		i, file := i, file
		g.Go(func() error {
			out := analyzeOutput{File: file}
			data, err := os.ReadFile(file)
			if err != nil {
				out.Error = err.Error()
				outputs[i] = out
				return nil
			}

			if analyzeRegions {
				img, err := imaging.Decode(bytes.NewReader(data))
				if err != nil {
					out.Error = err.Error()
				} else {
					out.Regions = map[string]string{}
					for _, r := range pipeline.Scheduler.RecognizeRegions(gctx, file, img) {
						out.Regions[r.Region] = r.Text
					}
				}
				outputs[i] = out
				return nil
			}

			res, err := proc.ProcessScreenshot(gctx, &processor.ProcessRequest{
				ImageRef: filepath.Base(file),
				Data:     data,
			})
			if err != nil {
				out.Error = err.Error()
			} else {
				out.Result = res
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	failed := 0
	for _, out := range outputs {
		if out.Error != "" {
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d screenshots failed", failed, len(args))
	}
	return nil
}
