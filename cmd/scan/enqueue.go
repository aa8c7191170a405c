package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wuwabuilds/scan-worker/internal/queue"
)

var enqueueRetries int

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <image|url>...",
	Short: "Submit screenshots to the worker queue and print their job IDs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().IntVar(&enqueueRetries, "max-retry", 3, "Attempts asynq makes after the first failure")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enqueuer, err := queue.NewEnqueuer(&queue.EnqueuerConfig{
		RedisURL:  cfg.RedisURL,
		QueueName: cfg.QueueName,
		MaxRetry:  enqueueRetries,
		Timeout:   cfg.ProcessingTimeout + cfg.ProcessingTimeout/2,
	})
	if err != nil {
		return err
	}
	defer enqueuer.Close()

	for _, arg := range args {
		payload, err := payloadFor(arg)
		if err != nil {
			return err
		}
		jobID, err := enqueuer.Enqueue(cmd.Context(), payload)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", jobID, arg)
	}
	return nil
}

// payloadFor sends URLs by reference and local files inline
func payloadFor(arg string) (*queue.Payload, error) {
	payload := &queue.Payload{JobID: uuid.NewString()}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		payload.ImageURL = arg
		payload.ImageRef = arg
		return payload, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	payload.Image = data
	payload.ImageRef = filepath.Base(arg)
	return payload, nil
}
