/**
 * Scan Worker - Main Entry Point
 *
 * Long-running worker that turns game screenshots into structured
 * character, weapon and echo data.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed scan:analyze queue
 * - One shared pool of Tesseract engines behind a FIFO semaphore
 * - Concurrent region recognition per screenshot, then entity classification
 * - Redis result cache keyed by image digest
 * - Optional PostgreSQL persistence of job status and results
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wuwabuilds/scan-worker/internal/app"
	"github.com/wuwabuilds/scan-worker/internal/config"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/processor"
	"github.com/wuwabuilds/scan-worker/internal/queue"
	"github.com/wuwabuilds/scan-worker/internal/storage"
)

func main() {
	logger := logging.NewLogger("worker")

	if err := godotenv.Load(".env"); err != nil {
		logger.Info(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Configure(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		logger.Error("Failed to configure logging", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx := context.Background()

	logger.Info("Scan worker starting",
		"queue", cfg.QueueName,
		"concurrency", cfg.WorkerConcurrency,
		"ocr_pool", cfg.OCRPoolSize,
		"persistence", cfg.PersistenceEnabled(),
	)

	pipeline, err := app.NewPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	// Not fatal: EnsureStarted is retried by the first job.
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := pipeline.Pool.EnsureStarted(startCtx); err != nil {
		logger.Warn("Recognition pool failed to start, will retry on first job", "error", err)
	} else {
		logger.Info("Recognition pool started", "engines", pipeline.Pool.Size())
	}
	cancel()

	storageManager, err := storage.NewStorageManager(ctx, storage.StorageConfig{
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		CacheTTL:    cfg.CacheTTL,
	})
	if err != nil {
		return err
	}
	defer storageManager.Close()
	logger.Info("Storage initialized",
		"cache", storageManager.CacheEnabled(),
		"persistence", storageManager.PersistenceEnabled(),
	)

	proc, err := processor.NewScreenshotProcessor(&processor.ProcessorConfig{
		Analyzer:          pipeline.Scheduler,
		Store:             storageManager,
		Logger:            logging.NewLogger("processor"),
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	eventClient := redis.NewClient(redisOpts)
	defer eventClient.Close()

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		Processor:   proc,
		Events:      queue.NewRedisEventPublisher(eventClient, cfg.QueueName),
		Logger:      logging.NewLogger("queue"),
	})
	if err != nil {
		return err
	}

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info("Scan worker is ready, waiting for jobs", "task", queue.TaskTypeAnalyze)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	if err := consumer.Stop(ctx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete", "in_flight", pipeline.Scheduler.InFlight())
	return nil
}
