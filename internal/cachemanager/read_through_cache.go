package cachemanager

import (
	"context"
	"time"
)

// LoadFunc produces the value for a cache miss.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// ReadThroughCache fills a CacheManager from a loader on miss. Loader errors
// are returned and nothing is cached for them.
type ReadThroughCache[K ~string, V any] struct {
	cache    CacheManager[K, V]
	load     LoadFunc[V]
	ttl      time.Duration
	disabled bool
}

// NewReadThroughCache wraps cache. With disabled set every Get calls load.
func NewReadThroughCache[K ~string, V any](cache CacheManager[K, V], load LoadFunc[V], ttl time.Duration, disabled bool) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{
		cache:    cache,
		load:     load,
		ttl:      ttl,
		disabled: disabled,
	}
}

// Get returns the cached value for key or loads and caches it.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if r.disabled {
		return r.load(ctx)
	}
	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := r.load(ctx)
	if err != nil {
		return v, err
	}
	r.cache.Set(ctx, key, v, r.ttl)
	return v, nil
}

// Invalidate drops the cached value for key.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context, key K) {
	r.cache.Delete(ctx, key)
}
