// Package sync implements the mutation synchronization engine: it queues
// client mutations, replays them transactionally against the versioned
// store with per-client ordering and idempotence guarantees, computes
// patches between room versions, and delivers them as pokes to live
// connections.
package sync

import (
	"context"
	"encoding/json"
	"sort"
)

// Storage is the minimal key/value surface the entry cache reads through
// and flushes to. Get returns a nil value for absent or tombstoned keys,
// together with the version of the tombstone (0 if the key never existed).
// Both the durable store adapter and EntryCache itself implement this, so
// caches can be stacked and flushed layer by layer.
type Storage interface {
	Get(ctx context.Context, key string) (value json.RawMessage, version int64, err error)
	Put(ctx context.Context, key string, value json.RawMessage, version int64) error
	Del(ctx context.Context, key string, version int64) error
}

type cacheEntry struct {
	value   json.RawMessage // nil means absent or deleted
	version int64
	dirty   bool
}

// EntryCache is a write-back cache of entries on top of some lower-level
// Storage. Reads fall through to the backing storage and are cached;
// writes stay local until Flush. Stacking an EntryCache on another
// EntryCache gives each mutation transactional isolation from its siblings
// within one batch while sharing one room-level cache underneath.
type EntryCache struct {
	storage Storage
	cache   map[string]*cacheEntry
}

// NewEntryCache creates an empty cache over the given backing storage
func NewEntryCache(storage Storage) *EntryCache {
	return &EntryCache{
		storage: storage,
		cache:   make(map[string]*cacheEntry),
	}
}

// Get returns the cached value for key, falling through to the backing
// storage on a miss and caching the result as clean
func (c *EntryCache) Get(ctx context.Context, key string) (json.RawMessage, int64, error) {
	if entry, ok := c.cache[key]; ok {
		return entry.value, entry.version, nil
	}

	value, version, err := c.storage.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	c.cache[key] = &cacheEntry{value: value, version: version}
	return value, version, nil
}

// Put overwrites the local entry and marks it dirty, regardless of its
// previous state
func (c *EntryCache) Put(ctx context.Context, key string, value json.RawMessage, version int64) error {
	c.cache[key] = &cacheEntry{value: value, version: version, dirty: true}
	return nil
}

// Del records a deletion at the given version and marks the entry dirty
func (c *EntryCache) Del(ctx context.Context, key string, version int64) error {
	c.cache[key] = &cacheEntry{version: version, dirty: true}
	return nil
}

// Has reports whether key currently has a value
func (c *EntryCache) Has(ctx context.Context, key string) (bool, error) {
	value, _, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return value != nil, nil
}

// Flush issues exactly one write or delete per dirty entry to the backing
// storage. Keys are flushed in sorted order; since each key gets a single
// write, cross-key order only matters for determinism in tests. Instances
// are short-lived (one per mutation or one per room step), so dirty flags
// are left as-is.
func (c *EntryCache) Flush(ctx context.Context) error {
	keys := make([]string, 0, len(c.cache))
	for key, entry := range c.cache {
		if entry.dirty {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		entry := c.cache[key]
		if entry.value == nil {
			if err := c.storage.Del(ctx, key, entry.version); err != nil {
				return err
			}
		} else {
			if err := c.storage.Put(ctx, key, entry.value, entry.version); err != nil {
				return err
			}
		}
	}

	return nil
}
