package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Layer wraps a Cache with the registry's read-through policy: concurrent
// misses for the same key share one computation, every cache failure is
// logged and treated as a miss, and a computation that raced with an
// invalidation is returned to its caller but not stored.
type Layer struct {
	cache      Cache
	ttl        time.Duration
	logger     *slog.Logger
	group      singleflight.Group
	generation atomic.Uint64
}

// NewLayer creates a Layer storing entries for ttl.
func NewLayer(c Cache, ttl time.Duration, logger *slog.Logger) *Layer {
	if c == nil {
		c = NoopCache{}
	}
	return &Layer{cache: c, ttl: ttl, logger: logger}
}

// Invalidate removes keys. Failures are logged, never returned.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) {
	l.generation.Add(1)
	if err := l.cache.Delete(ctx, keys...); err != nil {
		l.logger.Warn("cache invalidate failed", "keys", keys, "error", err)
	}
}

// InvalidateAll flushes the underlying cache. Failures are logged.
func (l *Layer) InvalidateAll(ctx context.Context) {
	l.generation.Add(1)
	if err := l.cache.Flush(ctx); err != nil {
		l.logger.Warn("cache flush failed", "error", err)
	}
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Each caller receives its own decoded copy.
func GetOrCompute[T any](ctx context.Context, l *Layer, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := l.lookup(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		l.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	res, err, _ := l.group.Do(key, func() (any, error) {
		gen := l.generation.Load()
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		if l.generation.Load() == gen {
			if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
				l.logger.Warn("cache set failed", "key", key, "error", err)
			}
			// An invalidation that landed between the check and the Set
			// must not leave this value behind.
			if l.generation.Load() != gen {
				if err := l.cache.Delete(ctx, key); err != nil {
					l.logger.Warn("cache invalidate failed", "keys", []string{key}, "error", err)
				}
			}
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(res.([]byte), &v); err != nil {
		return zero, fmt.Errorf("decode cache value: %w", err)
	}
	return v, nil
}

func (l *Layer) lookup(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return data, ok
}
