// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memcache implements the cache tier of the snapshot store as
// an in-process LRU with per-entry TTLs.
//
// # Description
//
// The store writes two entry kinds: plain string values (serialized
// diffs) and field hashes (snapshot metadata, per-file content, session
// records). Entries expire lazily: a lapsed TTL is noticed and dropped
// at read time or during eviction scans, never by a background sweeper.
// Eviction is LRU under two limits, an entry cap and a soft memory
// limit.
//
// # Thread Safety
//
// Cache is safe for concurrent use. A single mutex guards the entry map
// and LRU list; values are copied in and out, so callers never share
// memory with the cache.
package memcache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage"
)

// Cache is an in-process implementation of the cache tier.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List
	bytes   int64
	options Options

	// Stats
	hits            int64
	misses          int64
	evictions       int64
	memoryEvictions int64
	expirations     int64
	sets            int64
}

// Compile-time check that Cache satisfies the cache-tier contract.
var _ storage.CacheStore = (*Cache)(nil)

// New creates a Cache with the given options.
func New(opts ...Option) *Cache {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Cache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		options: options,
	}
}

// Set stores a string value under key, replacing any existing entry of
// either kind. A non-positive ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := &entry{key: key, value: value, expiresAt: deadline(ttl)}
	c.insert(e)
	return nil
}

// Get retrieves a string value. Missing, expired, or hash-kind entries
// report storage.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(key)
	if !ok || e.isHash() {
		atomic.AddInt64(&c.misses, 1)
		return "", storage.ErrCacheMiss
	}

	c.lru.MoveToFront(e.lruElement)
	atomic.AddInt64(&c.hits, 1)
	return e.value, nil
}

// SetHash stores a field hash under key, replacing any existing entry
// of either kind. The field map is copied.
func (c *Cache) SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	e := &entry{key: key, fields: copied, expiresAt: deadline(ttl)}
	c.insert(e)
	return nil
}

// GetHash retrieves a field hash. Missing, expired, or string-kind
// entries report storage.ErrCacheMiss. The returned map is a copy.
func (c *Cache) GetHash(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(key)
	if !ok || !e.isHash() {
		atomic.AddInt64(&c.misses, 1)
		return nil, storage.ErrCacheMiss
	}

	c.lru.MoveToFront(e.lruElement)
	atomic.AddInt64(&c.hits, 1)

	copied := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		copied[k] = v
	}
	return copied, nil
}

// Delete removes an entry if present.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
	return nil
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.bytes = 0
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		EntryCount:           len(c.entries),
		Hits:                 atomic.LoadInt64(&c.hits),
		Misses:               atomic.LoadInt64(&c.misses),
		Evictions:            atomic.LoadInt64(&c.evictions),
		MemoryEvictions:      atomic.LoadInt64(&c.memoryEvictions),
		Expirations:          atomic.LoadInt64(&c.expirations),
		Sets:                 atomic.LoadInt64(&c.sets),
		MaxEntries:           c.options.MaxEntries,
		MaxMemoryBytes:       c.options.MaxMemoryBytes,
		EstimatedMemoryBytes: c.bytes,
	}
}

// insert adds or replaces an entry, evicting as needed first.
func (c *Cache) insert(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[e.key]; ok {
		c.removeLocked(old)
	}

	c.evictIfNeededLocked(e.cost())

	e.lruElement = c.lru.PushFront(e.key)
	c.entries[e.key] = e
	c.bytes += e.cost()
	atomic.AddInt64(&c.sets, 1)
}

// lookupLocked finds a live entry, dropping it when expired. Caller
// must hold the lock.
func (c *Cache) lookupLocked(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		c.removeLocked(e)
		atomic.AddInt64(&c.expirations, 1)
		return nil, false
	}
	return e, true
}

// removeLocked removes an entry. Caller must hold the lock.
func (c *Cache) removeLocked(e *entry) {
	if e.lruElement != nil {
		c.lru.Remove(e.lruElement)
		e.lruElement = nil
	}
	delete(c.entries, e.key)
	c.bytes -= e.cost()
}

// evictIfNeededLocked evicts LRU entries until both the entry cap and
// the memory limit can absorb an incoming entry of the given cost.
// Caller must hold the lock.
func (c *Cache) evictIfNeededLocked(incoming int64) {
	for len(c.entries) >= c.options.MaxEntries {
		if !c.evictOldestLocked(false) {
			break
		}
	}

	if c.options.MaxMemoryBytes > 0 {
		for c.bytes+incoming > c.options.MaxMemoryBytes {
			if !c.evictOldestLocked(true) {
				break
			}
		}
	}
}

// evictOldestLocked removes the least recently used entry, preferring
// to notice expired entries on the way. Caller must hold the lock.
func (c *Cache) evictOldestLocked(memoryPressure bool) bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}

	e := c.entries[back.Value.(string)]
	if e == nil {
		// A dangling LRU element must not spin the loop.
		c.lru.Remove(back)
		return true
	}

	if e.expired(time.Now()) {
		c.removeLocked(e)
		atomic.AddInt64(&c.expirations, 1)
		return true
	}

	c.removeLocked(e)
	atomic.AddInt64(&c.evictions, 1)
	if memoryPressure {
		atomic.AddInt64(&c.memoryEvictions, 1)
	}
	return true
}

// deadline converts a TTL to an absolute expiry, zero for no expiry.
func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
