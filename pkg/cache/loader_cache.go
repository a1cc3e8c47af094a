// Package cache provides a generic loader cache combining LRU storage with
// singleflight so concurrent misses for the same key share one load.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache loads values on miss via a callback and coalesces concurrent
// loads per key. It is an explicitly owned, lifecycle-scoped object:
// construct one per service at startup rather than sharing ambient global
// state, so tests can build isolated instances.
type LoaderCache[K comparable, V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
	keyFn func(K) string
}

// New creates a loader cache holding at most maxEntries values. keyFn
// serializes keys for the LRU and singleflight; pass nil to use %v
// formatting.
func New[K comparable, V any](maxEntries int, keyFn func(K) string) (*LoaderCache[K, V], error) {
	lruCache, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	if keyFn == nil {
		keyFn = func(k K) string { return fmt.Sprintf("%v", k) }
	}

	return &LoaderCache[K, V]{lru: lruCache, keyFn: keyFn}, nil
}

// Get returns the value for key, loading it on miss. The returned bool
// reports whether the value came from cache, for hit/miss metrics at the
// call site. On a miss only one goroutine runs load for a given key; the
// rest wait and share its result. Load errors are not cached.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	keyStr := c.keyFn(key)
	if v, ok := c.lru.Get(keyStr); ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(keyStr, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return nil, loadErr
		}

		c.lru.Add(keyStr, loaded)

		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}

	return val.(V), false, nil
}

// Invalidate removes the entry for key.
func (c *LoaderCache[K, V]) Invalidate(key K) {
	c.lru.Remove(c.keyFn(key))
}

// Purge removes all entries.
func (c *LoaderCache[K, V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *LoaderCache[K, V]) Len() int {
	return c.lru.Len()
}
