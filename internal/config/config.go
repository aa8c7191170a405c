/**
 * Configuration for the Scan Worker
 *
 * Loads configuration from environment variables (a .env file is loaded by
 * the binaries before LoadConfig runs)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (queue broker and result cache)
	RedisURL string

	// PostgreSQL configuration; empty disables persistence
	DatabaseURL string

	// Queue configuration
	QueueName         string
	WorkerConcurrency int

	// Recognition configuration
	OCRPoolSize   int
	OCRLanguage   string
	TessdataDir   string
	RegionTimeout time.Duration

	// Processing configuration
	ProcessingTimeout time.Duration
	CacheTTL          time.Duration

	// Reference data; empty selects the embedded tables
	DataDir string

	// Words stripped from substat labels before matching
	SubstatNoiseWords []string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "scan"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		OCRPoolSize:       getEnvAsIntOrDefault("OCR_POOL_SIZE", 3),
		OCRLanguage:       getEnvOrDefault("OCR_LANGUAGE", "eng"),
		TessdataDir:       getEnvOrDefault("TESSDATA_PREFIX", ""),
		RegionTimeout:     time.Duration(getEnvAsIntOrDefault("REGION_TIMEOUT", 15000)) * time.Millisecond,
		ProcessingTimeout: time.Duration(getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 60000)) * time.Millisecond,
		CacheTTL:          time.Duration(getEnvAsIntOrDefault("CACHE_TTL", 86400)) * time.Second,
		DataDir:           getEnvOrDefault("DATA_DIR", ""),
		SubstatNoiseWords: getEnvAsListOrDefault("SUBSTAT_NOISE_WORDS", []string{"Resonance"}),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME must not be empty")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.OCRPoolSize < 1 || c.OCRPoolSize > 32 {
		return fmt.Errorf("OCR_POOL_SIZE must be between 1 and 32, got %d", c.OCRPoolSize)
	}

	if c.RegionTimeout < 0 {
		return fmt.Errorf("REGION_TIMEOUT must not be negative, got %v", c.RegionTimeout)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %v", c.ProcessingTimeout)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %v", c.CacheTTL)
	}

	return nil
}

// PersistenceEnabled reports whether results are written to PostgreSQL
func (c *Config) PersistenceEnabled() bool {
	return c.DatabaseURL != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma separated variable, dropping blanks
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	list := []string{}
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
