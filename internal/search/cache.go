package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	pkgredis "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/redis"
)

const keyPrefix = "imgsearch:"

// Backend is the key-value store behind QueryCache. *redis.Client satisfies
// it.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache memoises query results per snapshot version. Concurrent misses
// for the same key run the search once. Backend failures are logged and
// treated as misses so search keeps working without the cache.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewQueryCache(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, version, query string) ([]string, bool) {
	key := buildKey(version, query)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var matches []string
	if err := json.Unmarshal([]byte(data), &matches); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if matches == nil {
		matches = []string{}
	}
	c.hits.Add(1)
	return matches, true
}

func (c *QueryCache) Set(ctx context.Context, version, query string, matches []string) {
	key := buildKey(version, query)
	data, err := json.Marshal(matches)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute and stores it. The
// bool reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(ctx context.Context, version, query string, compute func() ([]string, error)) ([]string, bool, error) {
	if matches, ok := c.Get(ctx, version, query); ok {
		return matches, true, nil
	}
	key := buildKey(version, query)
	val, err, _ := c.group.Do(key, func() (any, error) {
		matches, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, version, query, matches)
		return matches, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]string), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats reports lookups served from and missed by the cache since start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(version, query string) string {
	sum := sha256.Sum256([]byte(version + "\x00" + query))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
