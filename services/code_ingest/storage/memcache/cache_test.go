// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage"
)

// TestSetGet verifies the string entry round trip.
func TestSetGet(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "deebo:diff:a:b", `{"added":{}}`, time.Minute))

	got, err := c.Get(ctx, "deebo:diff:a:b")
	require.NoError(t, err)
	assert.Equal(t, `{"added":{}}`, got)

	_, err = c.Get(ctx, "deebo:diff:missing")
	require.ErrorIs(t, err, storage.ErrCacheMiss)
}

// TestSetHashGetHash verifies the hash entry round trip and that the
// cache never shares maps with its callers.
func TestSetHashGetHash(t *testing.T) {
	c := New()
	ctx := context.Background()

	fields := map[string]string{"path": "a.py", "content": "x = 1"}
	require.NoError(t, c.SetHash(ctx, "deebo:file:s1:a.py", fields, time.Minute))

	// Mutating the input after the write must not reach the cache.
	fields["content"] = "tampered"

	got, err := c.GetHash(ctx, "deebo:file:s1:a.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1", got["content"])

	// Mutating the output must not reach the cache either.
	got["content"] = "tampered again"

	fresh, err := c.GetHash(ctx, "deebo:file:s1:a.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1", fresh["content"])
}

// TestKindMismatch verifies that an entry of the other kind reads as a
// miss rather than a type error.
func TestKindMismatch(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "string-key", "value", 0))
	require.NoError(t, c.SetHash(ctx, "hash-key", map[string]string{"f": "v"}, 0))

	_, err := c.GetHash(ctx, "string-key")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	_, err = c.Get(ctx, "hash-key")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
}

// TestOverwriteReplacesKind verifies that a write replaces an existing
// entry wholesale, including its kind.
func TestOverwriteReplacesKind(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "old", 0))
	require.NoError(t, c.SetHash(ctx, "key", map[string]string{"f": "new"}, 0))

	got, err := c.GetHash(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "new", got["f"])

	assert.Equal(t, 1, c.Len())
}

// TestTTLExpiry verifies lazy expiry at read time.
func TestTTLExpiry(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short-lived", "value", 10*time.Millisecond))
	require.NoError(t, c.Set(ctx, "immortal", "value", 0))

	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "short-lived")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	_, err = c.Get(ctx, "immortal")
	assert.NoError(t, err, "zero TTL must mean no expiry")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expirations)
}

// TestLRUEviction verifies eviction order under the entry cap.
func TestLRUEviction(t *testing.T) {
	c := New(WithMaxEntries(3))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	// Touch "a" so "b" becomes the oldest.
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "d", "4", 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrCacheMiss, "least recently used entry must be evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, err := c.Get(ctx, key)
		assert.NoError(t, err, "entry %q must survive", key)
	}

	assert.Equal(t, int64(1), c.Stats().Evictions)
}

// TestMemoryEviction verifies eviction under the soft memory limit.
func TestMemoryEviction(t *testing.T) {
	// Room for roughly two 1KiB values plus overhead, not three.
	c := New(WithMaxEntries(100), WithMaxMemoryBytes(2600))
	ctx := context.Background()

	big := strings.Repeat("x", 1024)
	require.NoError(t, c.Set(ctx, "first", big, 0))
	require.NoError(t, c.Set(ctx, "second", big, 0))
	require.NoError(t, c.Set(ctx, "third", big, 0))

	_, err := c.Get(ctx, "first")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.MemoryEvictions, int64(1))
	assert.LessOrEqual(t, stats.EstimatedMemoryBytes, int64(2600))
}

// TestDelete verifies removal.
func TestDelete(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "value", 0))
	require.NoError(t, c.Delete(ctx, "key"))

	_, err := c.Get(ctx, "key")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	// Deleting an absent key is a no-op.
	require.NoError(t, c.Delete(ctx, "key"))
}

// TestClear verifies full reset.
func TestClear(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.SetHash(ctx, "b", map[string]string{"f": "v"}, 0))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().EstimatedMemoryBytes)
}

// TestStats verifies hit accounting.
func TestStats(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "value", 0))

	_, _ = c.Get(ctx, "key")
	_, _ = c.Get(ctx, "key")
	_, _ = c.Get(ctx, "absent")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 66.6, stats.HitRate(), 0.1)
}

// TestContextCancelled verifies that operations respect cancellation.
func TestContextCancelled(t *testing.T) {
	c := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, c.Set(ctx, "key", "value", 0))
	_, err := c.Get(ctx, "key")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrCacheMiss)
}

// TestConcurrentAccess verifies the cache under parallel readers and
// writers. Run with -race.
func TestConcurrentAccess(t *testing.T) {
	c := New(WithMaxEntries(64))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%16)
				switch i % 3 {
				case 0:
					_ = c.Set(ctx, key, "value", time.Minute)
				case 1:
					_ = c.SetHash(ctx, key, map[string]string{"i": "v"}, time.Minute)
				default:
					_, _ = c.Get(ctx, key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
