// Package ristretto implements the cache port using dgraph-io/ristretto.
// It backs the short-TTL container-inspect cache that keeps the reconcile
// and broadcast loops from invoking the container CLI on every tick.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Inspect payloads are small JSON documents; size the admission counters
// assuming roughly this many bytes per entry.
const approxEntryBytes = 1024

// Cache wraps a ristretto cache keyed by container name.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache bounded at maxCostBytes of stored
// values.
func New(maxCostBytes int64) (*Cache, error) {
	counters := maxCostBytes / approxEntryBytes * 10
	if counters < 1024 {
		counters = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL. Writes are flushed before
// returning so a status probe immediately after a lifecycle change sees
// the fresh entry; the cache is written rarely enough that the wait is
// negligible.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
