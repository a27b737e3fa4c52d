// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// =============================================================================
// Test doubles
// =============================================================================

// stubBlob is an in-memory BlobStore with error injection for the
// durable failure paths.
type stubBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	putErr  error
	getErr  error
}

var _ BlobStore = (*stubBlob)(nil)

func newStubBlob() *stubBlob {
	return &stubBlob{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
	}
}

func (s *stubBlob) Put(_ context.Context, key string, data []byte, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = append([]byte(nil), data...)
	s.meta[key] = meta
	return nil
}

func (s *stubBlob) Get(_ context.Context, key string) ([]byte, map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), s.meta[key], nil
}

func (s *stubBlob) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return false, s.getErr
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *stubBlob) drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.meta, key)
}

// stubCache is an in-memory CacheStore with error injection for the
// swallowed-failure paths.
type stubCache struct {
	mu     sync.Mutex
	values map[string]string
	hashes map[string]map[string]string
	setErr error
	getErr error
}

var _ CacheStore = (*stubCache)(nil)

func newStubCache() *stubCache {
	return &stubCache{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (s *stubCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *stubCache) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return value, nil
}

func (s *stubCache) SetHash(_ context.Context, key string, fields map[string]string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.hashes[key] = copied
	return nil
}

func (s *stubCache) GetHash(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	fields, ok := s.hashes[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied, nil
}

func (s *stubCache) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.hashes = make(map[string]map[string]string)
}

func (s *stubCache) hasKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, inHashes := s.hashes[key]
	_, inValues := s.values[key]
	return inHashes || inValues
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *stubBlob, *stubCache) {
	t.Helper()
	blob := newStubBlob()
	cache := newStubCache()
	mgr, err := NewManager(blob, cache, opts...)
	require.NoError(t, err)
	return mgr, blob, cache
}

func testSnapshot(files map[string]string) *snapshot.Snapshot {
	return snapshot.New(files, nil)
}

func testSession(snap *snapshot.Snapshot, history ...snapshot.VersionEntry) *snapshot.Session {
	now := time.Now().UTC()
	return &snapshot.Session{
		ID:             snapshot.NewSessionID(),
		Context:        "reproducing the crash",
		Error:          "TypeError on line 3",
		Logs:           "stack trace follows",
		Snapshot:       snap,
		CreatedAt:      now,
		UpdatedAt:      now,
		VersionHistory: history,
	}
}

// =============================================================================
// Construction
// =============================================================================

// TestNewManager verifies the durable store requirement and option
// application.
func TestNewManager(t *testing.T) {
	t.Run("requires durable store", func(t *testing.T) {
		_, err := NewManager(nil, newStubCache())
		require.ErrorIs(t, err, ErrNoDurableStore)
	})

	t.Run("cache is optional", func(t *testing.T) {
		mgr, err := NewManager(newStubBlob(), nil)
		require.NoError(t, err)
		assert.NotNil(t, mgr)
	})

	t.Run("options override defaults", func(t *testing.T) {
		mgr, err := NewManager(newStubBlob(), newStubCache(),
			WithCacheTTL(5*time.Minute),
			WithFileCacheLimit(64),
		)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, mgr.cacheTTL)
		assert.Equal(t, 64, mgr.fileLimit)
	})

	t.Run("non-positive options are ignored", func(t *testing.T) {
		mgr, err := NewManager(newStubBlob(), newStubCache(),
			WithCacheTTL(0),
			WithFileCacheLimit(-1),
		)
		require.NoError(t, err)
		assert.Equal(t, DefaultCacheTTL, mgr.cacheTTL)
		assert.Equal(t, DefaultFileCacheLimit, mgr.fileLimit)
	})
}

// =============================================================================
// Snapshot tier semantics
// =============================================================================

// TestStoreSnapshot verifies durable-first writes and best-effort cache
// population.
func TestStoreSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("nil snapshot is rejected", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		require.ErrorIs(t, mgr.StoreSnapshot(ctx, nil), ErrNilSnapshot)
	})

	t.Run("durable failure propagates", func(t *testing.T) {
		mgr, blob, cache := newTestManager(t)
		blob.putErr = errors.New("bucket unavailable")

		snap := testSnapshot(map[string]string{"a.py": "print('x')"})
		err := mgr.StoreSnapshot(ctx, snap)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket unavailable")
		assert.False(t, cache.hasKey(snapshotCacheKey(snap.ID)),
			"cache must not be populated when the durable write failed")
	})

	t.Run("cache failure is swallowed", func(t *testing.T) {
		mgr, blob, cache := newTestManager(t)
		cache.setErr = errors.New("cache full")

		snap := testSnapshot(map[string]string{"a.py": "print('x')"})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		exists, err := blob.Exists(ctx, snapshotObjectKey(snap.ID))
		require.NoError(t, err)
		assert.True(t, exists, "durable copy must exist despite cache failure")
	})

	t.Run("oversize files are not cached", func(t *testing.T) {
		mgr, _, cache := newTestManager(t, WithFileCacheLimit(16))

		snap := testSnapshot(map[string]string{
			"small.py": "ok",
			"big.py":   strings.Repeat("x", 32),
		})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		assert.True(t, cache.hasKey(snapshotCacheKey(snap.ID)))
		assert.True(t, cache.hasKey(fileCacheKey(snap.ID, "small.py")))
		assert.False(t, cache.hasKey(fileCacheKey(snap.ID, "big.py")),
			"files at or over the limit stay durable-only")
	})
}

// TestGetSnapshot verifies the cache-first read path and its durable
// fallbacks.
func TestGetSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "print('hello')", "b.py": "x = 1"})
		snap.Metadata.SessionID = "debug-1"
		snap.Metadata.Version = 1
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		got, err := mgr.GetSnapshot(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, snap.ID, got.ID)
		assert.Equal(t, "print('hello')", got.Files["a.py"].Content)
		assert.Equal(t, "x = 1", got.Files["b.py"].Content)
		assert.Equal(t, "debug-1", got.Metadata.SessionID)
		assert.Equal(t, 1, got.Metadata.Version)
	})

	t.Run("cache-complete read never touches durable", func(t *testing.T) {
		mgr, blob, _ := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "cached content"})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		// Poison the durable store: a read reaching it would fail loudly.
		blob.getErr = errors.New("durable store offline")

		got, err := mgr.GetSnapshot(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, "cached content", got.Files["a.py"].Content)
	})

	t.Run("oversize files fall back to durable", func(t *testing.T) {
		mgr, _, _ := newTestManager(t, WithFileCacheLimit(16))
		big := strings.Repeat("y", 64)
		snap := testSnapshot(map[string]string{"small.py": "ok", "big.py": big})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		got, err := mgr.GetSnapshot(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, "ok", got.Files["small.py"].Content)
		assert.Equal(t, big, got.Files["big.py"].Content,
			"oversize content must be served from the durable object")
	})

	t.Run("cache miss reads durable and repopulates", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "repopulate me"})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		cache.dropAll()

		got, err := mgr.GetSnapshot(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, "repopulate me", got.Files["a.py"].Content)
		assert.True(t, cache.hasKey(snapshotCacheKey(snap.ID)),
			"a miss must lazily repopulate the cache")
		assert.True(t, cache.hasKey(fileCacheKey(snap.ID, "a.py")))
	})

	t.Run("cache read failure degrades to durable", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "still here"})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		cache.getErr = errors.New("connection refused")

		got, err := mgr.GetSnapshot(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, "still here", got.Files["a.py"].Content)
	})

	t.Run("absent snapshot is a terminal miss", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		_, err := mgr.GetSnapshot(ctx, "no-such-id")
		require.ErrorIs(t, err, ErrSnapshotNotFound)
	})

	t.Run("corrupt cached metadata degrades to durable", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "truth"})
		require.NoError(t, mgr.StoreSnapshot(ctx, snap))

		require.NoError(t, cache.SetHash(ctx, snapshotCacheKey(snap.ID), map[string]string{
			"id":    snap.ID,
			"paths": "not json",
		}, time.Minute))

		got, err := mgr.GetSnapshot(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, "truth", got.Files["a.py"].Content)
	})
}

// =============================================================================
// Session tier semantics
// =============================================================================

// TestStoreSession verifies write ordering and input validation.
func TestStoreSession(t *testing.T) {
	ctx := context.Background()

	t.Run("nil session is rejected", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		require.ErrorIs(t, mgr.StoreSession(ctx, nil), ErrNilSession)
	})

	t.Run("session without snapshot is rejected", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		sess := testSession(nil)
		require.ErrorIs(t, mgr.StoreSession(ctx, sess), ErrNilSnapshot)
	})

	t.Run("stores snapshot and record durably", func(t *testing.T) {
		mgr, blob, _ := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "v1"})
		sess := testSession(snap)
		require.NoError(t, mgr.StoreSession(ctx, sess))

		for _, key := range []string{snapshotObjectKey(snap.ID), sessionObjectKey(sess.ID)} {
			exists, err := blob.Exists(ctx, key)
			require.NoError(t, err)
			assert.True(t, exists, "expected durable object at %s", key)
		}
	})

	t.Run("durable failure propagates", func(t *testing.T) {
		mgr, blob, _ := newTestManager(t)
		blob.putErr = errors.New("quota exceeded")

		sess := testSession(testSnapshot(map[string]string{"a.py": "v1"}))
		require.Error(t, mgr.StoreSession(ctx, sess))
	})
}

// TestGetSession verifies the cached path, its history fidelity, and the
// snapshot-resolution requirement.
func TestGetSession(t *testing.T) {
	ctx := context.Background()

	history := []snapshot.VersionEntry{
		{Version: 1, SnapshotID: "s1", Timestamp: time.Now().UTC(), Description: "Initial snapshot"},
		{Version: 2, SnapshotID: "s2", Timestamp: time.Now().UTC(), Description: "Update with 1 modified files"},
	}

	t.Run("round trip preserves history", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "v2"})
		sess := testSession(snap, history...)
		require.NoError(t, mgr.StoreSession(ctx, sess))

		got, err := mgr.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.Equal(t, sess.Context, got.Context)
		assert.Equal(t, sess.Error, got.Error)
		assert.Equal(t, sess.Logs, got.Logs)
		require.Len(t, got.VersionHistory, 2)
		assert.Equal(t, "Initial snapshot", got.VersionHistory[0].Description)
		assert.Equal(t, 2, got.VersionHistory[1].Version)
	})

	t.Run("cached path still resolves the snapshot", func(t *testing.T) {
		mgr, blob, _ := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "v2"})
		sess := testSession(snap, history...)
		require.NoError(t, mgr.StoreSession(ctx, sess))

		// Remove only the durable session record. The cached record plus
		// the cached snapshot must still serve the read.
		blob.drop(sessionObjectKey(sess.ID))

		got, err := mgr.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, snap.ID, got.Snapshot.ID)
		assert.Len(t, got.VersionHistory, 2,
			"the cached record must carry the version history")
	})

	t.Run("cache miss reads durable and repopulates", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		sess := testSession(testSnapshot(map[string]string{"a.py": "v1"}), history[0])
		require.NoError(t, mgr.StoreSession(ctx, sess))

		cache.dropAll()

		got, err := mgr.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got.VersionHistory, 1)
		assert.True(t, cache.hasKey(sessionCacheKey(sess.ID)))
	})

	t.Run("absent session is a miss", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		_, err := mgr.GetSession(ctx, "no-such-session")
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("session without resolvable snapshot is a miss", func(t *testing.T) {
		mgr, blob, cache := newTestManager(t)
		snap := testSnapshot(map[string]string{"a.py": "v1"})
		sess := testSession(snap)
		require.NoError(t, mgr.StoreSession(ctx, sess))

		cache.dropAll()
		blob.drop(snapshotObjectKey(snap.ID))

		_, err := mgr.GetSession(ctx, sess.ID)
		require.ErrorIs(t, err, ErrSessionNotFound)
	})
}

// =============================================================================
// Diff tier semantics
// =============================================================================

// TestDiffStorage verifies the cache-only diff contract.
func TestDiffStorage(t *testing.T) {
	ctx := context.Background()

	base := testSnapshot(map[string]string{"a.py": "x = 1", "b.py": "old"})
	target := testSnapshot(map[string]string{"a.py": "x = 2", "c.py": "new"})

	t.Run("round trip", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		d := snapshot.NewDiffResult()
		d.Added["c.py"] = snapshot.File{Path: "c.py", Content: "new"}
		d.Modified["a.py"] = snapshot.File{Path: "a.py", Content: "x = 2"}
		d.Deleted = []string{"b.py"}

		require.NoError(t, mgr.StoreDiff(ctx, base.ID, target.ID, d))

		got, err := mgr.GetDiff(ctx, base.ID, target.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", got.Added["c.py"].Content)
		assert.Equal(t, "x = 2", got.Modified["a.py"].Content)
		assert.Equal(t, []string{"b.py"}, got.Deleted)
	})

	t.Run("missing diff reports absence", func(t *testing.T) {
		mgr, _, _ := newTestManager(t)
		_, err := mgr.GetDiff(ctx, base.ID, target.ID)
		require.ErrorIs(t, err, ErrDiffNotFound)
	})

	t.Run("empty record reports absence", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		require.NoError(t, cache.Set(ctx, diffCacheKey(base.ID, target.ID), "{}", time.Minute))

		_, err := mgr.GetDiff(ctx, base.ID, target.ID)
		require.ErrorIs(t, err, ErrDiffNotFound)
	})

	t.Run("corrupt record reports absence", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		require.NoError(t, cache.Set(ctx, diffCacheKey(base.ID, target.ID), "not json", time.Minute))

		_, err := mgr.GetDiff(ctx, base.ID, target.ID)
		require.ErrorIs(t, err, ErrDiffNotFound)
	})

	t.Run("cache failure reports absence, not error", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		cache.getErr = errors.New("timeout")

		_, err := mgr.GetDiff(ctx, base.ID, target.ID)
		require.ErrorIs(t, err, ErrDiffNotFound)
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		mgr, _, cache := newTestManager(t)
		cache.setErr = errors.New("oom")

		d := snapshot.NewDiffResult()
		require.NoError(t, mgr.StoreDiff(ctx, base.ID, target.ID, d))
	})
}

// =============================================================================
// Degraded operation
// =============================================================================

// TestManagerWithoutCache verifies that a nil cache degrades every
// operation to the durable-only path without behavioral change.
func TestManagerWithoutCache(t *testing.T) {
	ctx := context.Background()
	blob := newStubBlob()
	mgr, err := NewManager(blob, nil)
	require.NoError(t, err)

	snap := testSnapshot(map[string]string{"a.py": "durable only"})
	sess := testSession(snap)

	require.NoError(t, mgr.StoreSession(ctx, sess))

	gotSnap, err := mgr.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable only", gotSnap.Files["a.py"].Content)

	gotSess, err := mgr.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, gotSess.ID)

	require.NoError(t, mgr.StoreDiff(ctx, "b", "t", snapshot.NewDiffResult()))
	_, err = mgr.GetDiff(ctx, "b", "t")
	require.ErrorIs(t, err, ErrDiffNotFound)
}
