/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package memoize caches successful results of an operation by a key resolved from its argument.
// Entries may have a TTL; stale entries are evicted lazily when they are looked up.
// Failed calls are never cached.
package memoize

import (
	"context"
	"errors"
	"time"

	"github.com/acronis/go-callkit/internal/callkey"
	"github.com/acronis/go-callkit/log"
)

// ErrNilOperation is returned when a cache is created for a nil operation.
var ErrNilOperation = errors.New("operation must not be nil")

// Func is an operation that may be wrapped by Cache.
type Func[A, V any] func(ctx context.Context, arg A) (V, error)

// Opts represents options for the Cache.
type Opts[A, V any] struct {
	// KeyResolver computes the cache key from the call argument.
	// Default is a stable stringification of the argument.
	// Use callkey-like resolvers (e.g. KeyFromField) to take the key from a field of the argument.
	KeyResolver func(arg A) string

	// ExpirationTime is the TTL of cached entries. Zero means entries never expire.
	ExpirationTime time.Duration

	// Store keeps cached entries. Default is a new MapStore.
	Store Store[V]

	// Now returns the current time. Default is time.Now.
	Now func() time.Time

	// MetricsCollector is used for reporting hits, misses and expirations. May be nil.
	MetricsCollector MetricsCollector

	// Logger may be nil.
	Logger log.FieldLogger
}

// Cache memoizes results of the wrapped operation.
type Cache[A, V any] struct {
	fn               func(ctx context.Context, arg A) (V, error)
	keyResolver      func(arg A) string
	ttl              time.Duration
	store            Store[V]
	now              func() time.Time
	metricsCollector MetricsCollector
	logger           log.FieldLogger
}

// New creates a new Cache for the given operation.
func New[A, V any](fn func(ctx context.Context, arg A) (V, error), opts Opts[A, V]) (*Cache[A, V], error) {
	if fn == nil {
		return nil, ErrNilOperation
	}
	if opts.ExpirationTime < 0 {
		return nil, errors.New("expiration time must be greater or equal to 0 (no expiration)")
	}
	if opts.KeyResolver == nil {
		opts.KeyResolver = callkey.Default[A]
	}
	if opts.Store == nil {
		opts.Store = NewMapStore[V]()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	return &Cache[A, V]{
		fn:               fn,
		keyResolver:      opts.KeyResolver,
		ttl:              opts.ExpirationTime,
		store:            opts.Store,
		now:              opts.Now,
		metricsCollector: opts.MetricsCollector,
		logger:           log.OrDisabled(opts.Logger),
	}, nil
}

// Wrap returns a function with the same signature as fn whose results are cached for ttl
// (forever if ttl is zero) in an in-memory store.
func Wrap[A, V any](fn func(ctx context.Context, arg A) (V, error), ttl time.Duration) (Func[A, V], error) {
	c, err := New(fn, Opts[A, V]{ExpirationTime: ttl})
	if err != nil {
		return nil, err
	}
	return c.Get, nil
}

// KeyFromField returns a key resolver that takes the key from the named exported field
// or zero-argument method of the argument.
func KeyFromField[A any](name string) func(arg A) string {
	return callkey.FromField[A](name)
}

// Get returns the cached result for the argument or invokes the operation and caches its result.
// A hit never invokes the operation. Only successful results are stored.
func (c *Cache[A, V]) Get(ctx context.Context, arg A) (V, error) {
	key := c.keyResolver(arg)

	if entry, ok := c.store.Get(key); ok {
		if !entry.Expired(c.now()) {
			c.metricsCollector.IncHits()
			return entry.Value, nil
		}
		c.store.Delete(key)
		c.metricsCollector.IncExpirations()
	}
	c.metricsCollector.IncMisses()

	val, err := c.fn(ctx, arg)
	if err != nil {
		c.logger.Debug("operation failed, result is not cached", log.String("key", key), log.Error(err))
		return val, err
	}

	entry := Entry[V]{Value: val}
	if c.ttl > 0 {
		entry.ExpiresAt = c.now().Add(c.ttl)
	}
	c.store.Set(key, entry)
	return val, nil
}

// Invalidate removes the cached result for the argument.
func (c *Cache[A, V]) Invalidate(arg A) bool {
	return c.store.Delete(c.keyResolver(arg))
}

// Purge removes all cached results.
func (c *Cache[A, V]) Purge() {
	c.store.Purge()
}
