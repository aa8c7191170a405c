package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
)

// CacheKeyPrefix namespaces result keys in Redis
const CacheKeyPrefix = "scan:result:"

// ResultCache stores AnalysisResults keyed by the SHA-256 of the image bytes,
// so a screenshot submitted twice is recognized once.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache connects to redisURL. A ttl of 0 disables the cache.
func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewResultCacheFromClient(client, ttl), nil
}

// NewResultCacheFromClient wraps an existing client
func NewResultCacheFromClient(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Enabled reports whether results are cached at all
func (c *ResultCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key returns the Redis key for an image digest
func Key(digest string) string {
	return CacheKeyPrefix + digest
}

// Get returns the cached result for digest. A miss is (nil, false, nil).
func (c *ResultCache) Get(ctx context.Context, digest string) (*analysis.Result, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, Key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, werrors.NewCacheFailedError(Key(digest), err)
	}

	var result analysis.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, werrors.NewCacheFailedError(Key(digest), fmt.Errorf("corrupt entry: %w", err))
	}
	return &result, true, nil
}

// Set stores result under digest for the configured TTL
func (c *ResultCache) Set(ctx context.Context, digest string, result analysis.Result) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return werrors.NewCacheFailedError(Key(digest), err)
	}
	if err := c.client.Set(ctx, Key(digest), data, c.ttl).Err(); err != nil {
		return werrors.NewCacheFailedError(Key(digest), err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
