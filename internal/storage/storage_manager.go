/**
 * Storage Manager for the Scan Worker
 *
 * Coordinates the Redis result cache and PostgreSQL job persistence. Either
 * backend may be disabled; a disabled backend turns its operations into
 * no-ops so the processor never branches on configuration.
 */

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
)

// StorageManager coordinates the cache and the job store
type StorageManager struct {
	postgres *PostgresClient
	cache    *ResultCache
}

// StorageConfig selects the backends. An empty DatabaseURL disables
// persistence and a zero CacheTTL disables caching.
type StorageConfig struct {
	RedisURL    string
	DatabaseURL string
	CacheTTL    time.Duration
}

// NewStorageManager connects the enabled backends and prepares the schema
func NewStorageManager(ctx context.Context, cfg StorageConfig) (*StorageManager, error) {
	sm := &StorageManager{}

	if cfg.CacheTTL > 0 {
		cache, err := NewResultCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize result cache: %w", err)
		}
		sm.cache = cache
	}

	if cfg.DatabaseURL != "" {
		postgres, err := NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			sm.Close() // Cleanup on failure
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := postgres.EnsureSchema(ctx); err != nil {
			postgres.Close()
			sm.Close()
			return nil, err
		}
		sm.postgres = postgres
	}

	return sm, nil
}

// NewStorageManagerFrom composes already connected backends; either may be nil
func NewStorageManagerFrom(postgres *PostgresClient, cache *ResultCache) *StorageManager {
	return &StorageManager{postgres: postgres, cache: cache}
}

// PersistenceEnabled reports whether job updates reach PostgreSQL
func (sm *StorageManager) PersistenceEnabled() bool {
	return sm.postgres != nil
}

// CacheEnabled reports whether results are cached
func (sm *StorageManager) CacheEnabled() bool {
	return sm.cache.Enabled()
}

// CachedResult looks up a previous result for an image digest
func (sm *StorageManager) CachedResult(ctx context.Context, digest string) (*analysis.Result, bool, error) {
	return sm.cache.Get(ctx, digest)
}

// CacheResult remembers result for an image digest
func (sm *StorageManager) CacheResult(ctx context.Context, digest string, result analysis.Result) error {
	return sm.cache.Set(ctx, digest, result)
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if sm.postgres == nil {
		return nil
	}
	if err := sm.postgres.UpdateJobStatus(ctx, update); err != nil {
		return werrors.NewStorageFailedError(update.JobID, err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (sm *StorageManager) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if sm.postgres == nil {
		return nil, fmt.Errorf("persistence is disabled")
	}
	return sm.postgres.GetJob(ctx, jobID)
}

// GetStats returns statistics from the enabled backends
func (sm *StorageManager) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"cache_enabled":       sm.CacheEnabled(),
		"persistence_enabled": sm.PersistenceEnabled(),
	}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}

	return stats
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, cacheErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.cache != nil {
		cacheErr = sm.cache.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if cacheErr != nil {
		return fmt.Errorf("failed to close result cache: %w", cacheErr)
	}

	return nil
}
