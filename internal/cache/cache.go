// Package cache provides vetloop's content-addressed result caches (project
// profile, learned patterns). Each logical key holds exactly one live entry;
// an entry is served only when the freshly computed fingerprint of its
// declared inputs matches the stored one. Any other condition (mismatch,
// missing entry, unreadable or corrupt state) forces recomputation. Cache
// trouble is never a correctness failure.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/kberard/vetloop/internal/storage"
)

// Logical cache keys. One slot each.
const (
	ProfileKey  = "profile"
	PatternsKey = "patterns"
)

// ComputeFunc produces the payload for the current fingerprint on a miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache is a single-slot content-addressed cache over durable storage.
// Writes are serialized per key: a recomputation and store never races
// another in-flight store for the same logical key. Readers may see a
// stale-but-valid entry until the swap commits.
type Cache struct {
	store *storage.Store
	key   string
	mu    sync.Mutex
}

// New returns the cache for one logical key.
func New(store *storage.Store, key string) *Cache {
	return &Cache{store: store, key: key}
}

// GetOrCompute returns the cached payload when the stored fingerprint equals
// fp, and otherwise computes, stores, and returns a fresh payload. The
// second return value reports whether the call was a cache hit.
func (c *Cache) GetOrCompute(ctx context.Context, fp string, compute ComputeFunc) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.store.GetCacheEntry(ctx, c.key)
	if err == nil && entry.Fingerprint == fp && len(entry.Payload) > 0 {
		return entry.Payload, true, nil
	}
	// Read errors (including corruption) count as misses; only the
	// compute path can fail the caller.

	payload, err := compute(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("recomputing %s cache: %w", c.key, err)
	}

	if err := c.store.PutCacheEntry(ctx, c.key, fp, payload); err != nil {
		// Persisting is best-effort: the computed result is still valid.
		return payload, false, nil
	}
	return payload, false, nil
}

// Lookup returns the payload only on an exact fingerprint match.
func (c *Cache) Lookup(ctx context.Context, fp string) ([]byte, bool) {
	entry, err := c.store.GetCacheEntry(ctx, c.key)
	if err != nil || entry.Fingerprint != fp {
		return nil, false
	}
	return entry.Payload, true
}

// StoredFingerprint returns the currently stored fingerprint, or "" when the
// slot is empty or unreadable. Used by the watch command to report
// invalidation.
func (c *Cache) StoredFingerprint(ctx context.Context) string {
	entry, err := c.store.GetCacheEntry(ctx, c.key)
	if err != nil {
		return ""
	}
	return entry.Fingerprint
}

// Invalidate drops the slot (explicit refresh request).
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.DeleteCacheEntry(ctx, c.key)
}
