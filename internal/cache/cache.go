// Package cache provides the TTL read cache that sits in front of the module
// store. Values are opaque byte slices; Layer adds JSON encoding, stampede
// protection and the degrade-to-recompute policy on top of any engine.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Engine names accepted by Open.
const (
	EngineMemory = "memory"
	EngineRedis  = "redis"
	EngineNone   = "none"
)

var (
	// ErrCacheFull is returned when the memory cache is full and cannot store new items.
	ErrCacheFull = errors.New("cache is full")

	// ErrUnknownEngine is returned for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown cache engine")
)

// Cache is a byte-oriented key/value cache with per-entry TTL.
type Cache interface {
	// Get returns the value for key. A miss is reported as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Flush removes every entry owned by this cache.
	Flush(ctx context.Context) error
	Close() error
}

// Options selects and configures a cache engine.
type Options struct {
	Engine          string
	Prefix          string
	MaxItems        int
	CleanupInterval time.Duration
	RedisURL        string
}

// Open builds the configured engine. An unreachable Redis degrades to a
// no-op cache with a warning so that the registry keeps working uncached.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Cache, error) {
	switch strings.ToLower(opts.Engine) {
	case "", EngineMemory:
		return NewMemoryCache(opts.MaxItems, opts.CleanupInterval), nil
	case EngineRedis:
		c, err := NewRedisCache(ctx, opts.RedisURL, opts.Prefix)
		if err != nil {
			logger.Warn("redis cache unavailable, caching disabled", "error", err)
			return NoopCache{}, nil
		}
		return c, nil
	case EngineNone:
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, opts.Engine)
	}
}

// Keyspace derives the cache keys used by the registry.
type Keyspace string

// AllEnabled is the key of the cached enabled-module view.
func (k Keyspace) AllEnabled() string {
	return k.join("all_module_settings")
}

// ModuleConfig is the key of one module's cached configuration.
func (k Keyspace) ModuleConfig(moduleKey string) string {
	return k.join("module_config_" + moduleKey)
}

func (k Keyspace) join(name string) string {
	if k == "" {
		return name
	}
	return string(k) + ":" + name
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, ...string) error { return nil }
func (NoopCache) Flush(context.Context) error { return nil }
func (NoopCache) Close() error { return nil }
