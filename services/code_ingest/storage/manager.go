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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/diff"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

const (
	// DefaultFileCacheLimit is the per-file cache eligibility threshold.
	// Files at or above this size are retrievable only from the durable
	// store.
	DefaultFileCacheLimit = 512 * 1024

	// DefaultCacheTTL is the lifetime of cache entries written by the
	// manager.
	DefaultCacheTTL = time.Hour
)

// Option configures a Manager.
type Option func(*Manager)

// WithCacheTTL sets the TTL for cache entries written by the manager.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.cacheTTL = ttl
		}
	}
}

// WithFileCacheLimit sets the per-file cache eligibility threshold in
// bytes.
func WithFileCacheLimit(bytes int) Option {
	return func(m *Manager) {
		if bytes > 0 {
			m.fileLimit = bytes
		}
	}
}

// WithLogger sets the logger used for degraded-path reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// Manager is the tiered storage manager.
//
// # Description
//
// Writes go to the durable store first; only after a successful durable
// write is the cache populated, so a cache entry always reflects a
// persisted object. Reads prefer the cache per entity and per file, with
// the durable store as the authoritative fallback. The cache may be nil,
// which degrades every operation to the durable-only path.
type Manager struct {
	durable   BlobStore
	cache     CacheStore
	cacheTTL  time.Duration
	fileLimit int
	log       *slog.Logger
}

// NewManager builds a Manager over a durable store and an optional
// cache.
func NewManager(durable BlobStore, cache CacheStore, opts ...Option) (*Manager, error) {
	if durable == nil {
		return nil, ErrNoDurableStore
	}

	m := &Manager{
		durable:   durable,
		cache:     cache,
		cacheTTL:  DefaultCacheTTL,
		fileLimit: DefaultFileCacheLimit,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// =============================================================================
// Snapshots
// =============================================================================

// StoreSnapshot persists a snapshot across both tiers.
//
// The durable write is the one that must not be lost: its failure is the
// caller's failure. The cache mirror that follows is best-effort; every
// cache error is logged and swallowed.
func (m *Manager) StoreSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}

	ctx, span := startStorageSpan(ctx, "StoreSnapshot", snap.ID)
	defer span.End()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	start := time.Now()
	err = m.durable.Put(ctx, snapshotObjectKey(snap.ID), data, map[string]string{
		"timestamp":  snap.Timestamp.Format(time.RFC3339Nano),
		"file_count": strconv.Itoa(snap.FileCount()),
	})
	if err != nil {
		return fmt.Errorf("store snapshot %s: %w", snap.ID, err)
	}
	recordDurableWrite(ctx, time.Since(start))

	m.mirrorSnapshot(ctx, snap)
	return nil
}

// GetSnapshot retrieves a snapshot, preferring the cache tier.
//
// # Description
//
// When snapshot-level cache metadata is present, the snapshot is rebuilt
// file by file: each path takes its cache entry when one exists under
// the size threshold, falling back to the durable object's copy of that
// same path otherwise. When cache metadata is absent, the full snapshot
// is read from the durable store and the cache is populated for next
// time. Absence from the durable store is terminal: ErrSnapshotNotFound.
func (m *Manager) GetSnapshot(ctx context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	ctx, span := startStorageSpan(ctx, "GetSnapshot", snapshotID)
	defer span.End()

	fields, err := m.cacheGetHash(ctx, snapshotCacheKey(snapshotID))
	if err == nil {
		if snap, ok := m.rebuildFromCache(ctx, snapshotID, fields); ok {
			recordTierHit(ctx, "snapshot")
			return snap, nil
		}
	} else if errors.Is(err, ErrCacheMiss) {
		recordTierMiss(ctx, "snapshot")
	} else {
		m.cacheDegraded(ctx, "snapshot metadata read", err)
	}

	snap, err := m.loadDurableSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	// Lazy write-through: populate the cache for the next reader.
	m.mirrorSnapshot(ctx, snap)
	return snap, nil
}

// rebuildFromCache reconstructs a snapshot from cached metadata plus
// per-file entries, filling gaps from the durable object.
//
// The second return is false when the cached metadata is unusable and
// the caller should take the full durable path instead. A false return
// never hides a durable failure: those come back through the error of
// the rebuild itself.
func (m *Manager) rebuildFromCache(ctx context.Context, snapshotID string, fields map[string]string) (*snapshot.Snapshot, bool) {
	var paths []string
	if err := json.Unmarshal([]byte(fields["paths"]), &paths); err != nil {
		m.cacheDegraded(ctx, "snapshot paths decode", err)
		return nil, false
	}

	timestamp, err := time.Parse(time.RFC3339Nano, fields["timestamp"])
	if err != nil {
		m.cacheDegraded(ctx, "snapshot timestamp decode", err)
		return nil, false
	}

	var meta snapshot.Metadata
	if raw := fields["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			m.cacheDegraded(ctx, "snapshot metadata decode", err)
			return nil, false
		}
	}

	files := make(map[string]snapshot.File, len(paths))
	var durableSnap *snapshot.Snapshot

	for _, path := range paths {
		if file, ok := m.cachedFile(ctx, snapshotID, path); ok {
			recordTierHit(ctx, "file")
			files[path] = file
			continue
		}

		recordTierMiss(ctx, "file")
		recordTierFallback(ctx)

		if durableSnap == nil {
			durableSnap, err = m.loadDurableSnapshot(ctx, snapshotID)
			if err != nil {
				// The durable copy is authoritative. If it is gone or
				// unreadable the cached remnants cannot stand in for it.
				m.log.Warn("durable fallback failed during cached rebuild",
					"snapshot_id", snapshotID, "error", err)
				return nil, false
			}
		}
		if file, ok := durableSnap.Files[path]; ok {
			files[path] = file
		}
	}

	return &snapshot.Snapshot{
		ID:        snapshotID,
		Timestamp: timestamp,
		Files:     files,
		Metadata:  meta,
	}, true
}

// cachedFile fetches one file from the cache tier, honoring the size
// threshold on the read side as well.
func (m *Manager) cachedFile(ctx context.Context, snapshotID, path string) (snapshot.File, bool) {
	fields, err := m.cacheGetHash(ctx, fileCacheKey(snapshotID, path))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.cacheDegraded(ctx, "file read", err)
		}
		return snapshot.File{}, false
	}

	content, ok := fields["content"]
	if !ok || len(content) >= m.fileLimit {
		return snapshot.File{}, false
	}

	file := snapshot.File{Path: path, Content: content}
	if raw := fields["metadata"]; raw != "" {
		var fm snapshot.FileMetadata
		if err := json.Unmarshal([]byte(raw), &fm); err == nil {
			file.Metadata = &fm
		}
	}
	return file, true
}

// loadDurableSnapshot reads and decodes the full snapshot object.
func (m *Manager) loadDurableSnapshot(ctx context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	start := time.Now()
	data, _, err := m.durable.Get(ctx, snapshotObjectKey(snapshotID))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
		}
		return nil, fmt.Errorf("read snapshot %s: %w", snapshotID, err)
	}
	recordDurableRead(ctx, time.Since(start))

	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snapshotID, err)
	}
	return &snap, nil
}

// mirrorSnapshot populates the cache tier from a persisted snapshot:
// snapshot-level metadata always, individual files only under the size
// threshold. All errors are swallowed.
func (m *Manager) mirrorSnapshot(ctx context.Context, snap *snapshot.Snapshot) {
	if m.cache == nil {
		return
	}

	pathsJSON, err := json.Marshal(snap.Paths())
	if err != nil {
		m.cacheDegraded(ctx, "snapshot paths encode", err)
		return
	}
	metaJSON, err := json.Marshal(snap.Metadata)
	if err != nil {
		m.cacheDegraded(ctx, "snapshot metadata encode", err)
		return
	}

	err = m.cache.SetHash(ctx, snapshotCacheKey(snap.ID), map[string]string{
		"id":         snap.ID,
		"timestamp":  snap.Timestamp.Format(time.RFC3339Nano),
		"file_count": strconv.Itoa(snap.FileCount()),
		"paths":      string(pathsJSON),
		"metadata":   string(metaJSON),
	}, m.cacheTTL)
	if err != nil {
		m.cacheDegraded(ctx, "snapshot metadata write", err)
		return
	}

	for path, file := range snap.Files {
		if file.Size() >= m.fileLimit {
			continue
		}

		fields := map[string]string{
			"path":    path,
			"content": file.Content,
		}
		if file.Metadata != nil {
			fm, err := json.Marshal(file.Metadata)
			if err != nil {
				m.cacheDegraded(ctx, "file metadata encode", err)
				continue
			}
			fields["metadata"] = string(fm)
		}

		if err := m.cache.SetHash(ctx, fileCacheKey(snap.ID, path), fields, m.cacheTTL); err != nil {
			m.cacheDegraded(ctx, "file write", err)
		}
	}
}

// =============================================================================
// Sessions
// =============================================================================

// sessionRecord is the durable wire form of a session. The snapshot is
// referenced by id, not embedded: it lives under its own durable key.
type sessionRecord struct {
	ID             string                  `json:"id"`
	SnapshotID     string                  `json:"snapshot_id"`
	Context        string                  `json:"context,omitempty"`
	Error          string                  `json:"error,omitempty"`
	Logs           string                  `json:"logs,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	VersionHistory []snapshot.VersionEntry `json:"version_history"`
}

// StoreSession persists a session and its current snapshot.
//
// The snapshot is stored first, then the session record; a durable
// failure at either step propagates. The cache mirror carries the full
// session record (metadata and history, never files).
func (m *Manager) StoreSession(ctx context.Context, sess *snapshot.Session) error {
	if sess == nil {
		return ErrNilSession
	}
	if sess.Snapshot == nil {
		return ErrNilSnapshot
	}

	ctx, span := startStorageSpan(ctx, "StoreSession", sess.ID)
	defer span.End()

	if err := m.StoreSnapshot(ctx, sess.Snapshot); err != nil {
		return err
	}

	record := sessionRecord{
		ID:             sess.ID,
		SnapshotID:     sess.Snapshot.ID,
		Context:        sess.Context,
		Error:          sess.Error,
		Logs:           sess.Logs,
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
		VersionHistory: sess.VersionHistory,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	start := time.Now()
	err = m.durable.Put(ctx, sessionObjectKey(sess.ID), data, map[string]string{
		"created_at":  sess.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  sess.UpdatedAt.Format(time.RFC3339Nano),
		"snapshot_id": sess.Snapshot.ID,
	})
	if err != nil {
		return fmt.Errorf("store session %s: %w", sess.ID, err)
	}
	recordDurableWrite(ctx, time.Since(start))

	m.mirrorSession(ctx, record)
	return nil
}

// GetSession retrieves a session, preferring the cache tier.
//
// A session is never served from the cache alone: the cached record only
// counts when its referenced snapshot resolves through GetSnapshot. Any
// trouble on the cached path falls back to the durable record. A session
// whose snapshot cannot be resolved is itself reported absent.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*snapshot.Session, error) {
	ctx, span := startStorageSpan(ctx, "GetSession", sessionID)
	defer span.End()

	fields, err := m.cacheGetHash(ctx, sessionCacheKey(sessionID))
	if err == nil {
		if sess, ok := m.sessionFromCache(ctx, sessionID, fields); ok {
			recordTierHit(ctx, "session")
			return sess, nil
		}
	} else if errors.Is(err, ErrCacheMiss) {
		recordTierMiss(ctx, "session")
	} else {
		m.cacheDegraded(ctx, "session read", err)
	}

	start := time.Now()
	data, _, err := m.durable.Get(ctx, sessionObjectKey(sessionID))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	recordDurableRead(ctx, time.Since(start))

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	snap, err := m.GetSnapshot(ctx, record.SnapshotID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil, fmt.Errorf("%w: %s (snapshot %s unresolvable)",
				ErrSessionNotFound, sessionID, record.SnapshotID)
		}
		return nil, err
	}

	m.mirrorSession(ctx, record)
	return record.toSession(snap), nil
}

// sessionFromCache rebuilds a session from its cached record. The second
// return is false when the cached record is unusable or its snapshot did
// not resolve; the caller then takes the durable path.
func (m *Manager) sessionFromCache(ctx context.Context, sessionID string, fields map[string]string) (*snapshot.Session, bool) {
	snapshotID := fields["snapshot_id"]
	if fields["id"] == "" || snapshotID == "" {
		return nil, false
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		m.cacheDegraded(ctx, "session created_at decode", err)
		return nil, false
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		m.cacheDegraded(ctx, "session updated_at decode", err)
		return nil, false
	}

	var history []snapshot.VersionEntry
	if raw := fields["history"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			m.cacheDegraded(ctx, "session history decode", err)
			return nil, false
		}
	}

	snap, err := m.GetSnapshot(ctx, snapshotID)
	if err != nil {
		m.log.Debug("cached session's snapshot did not resolve, taking durable path",
			"session_id", sessionID, "snapshot_id", snapshotID, "error", err)
		return nil, false
	}

	return &snapshot.Session{
		ID:             sessionID,
		Context:        fields["context"],
		Error:          fields["error"],
		Logs:           fields["logs"],
		Snapshot:       snap,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		VersionHistory: history,
	}, true
}

// mirrorSession populates the session cache record. Errors are
// swallowed.
func (m *Manager) mirrorSession(ctx context.Context, record sessionRecord) {
	if m.cache == nil {
		return
	}

	historyJSON, err := json.Marshal(record.VersionHistory)
	if err != nil {
		m.cacheDegraded(ctx, "session history encode", err)
		return
	}

	err = m.cache.SetHash(ctx, sessionCacheKey(record.ID), map[string]string{
		"id":          record.ID,
		"snapshot_id": record.SnapshotID,
		"created_at":  record.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  record.UpdatedAt.Format(time.RFC3339Nano),
		"context":     record.Context,
		"error":       record.Error,
		"logs":        record.Logs,
		"history":     string(historyJSON),
	}, m.cacheTTL)
	if err != nil {
		m.cacheDegraded(ctx, "session write", err)
	}
}

func (r sessionRecord) toSession(snap *snapshot.Snapshot) *snapshot.Session {
	return &snapshot.Session{
		ID:             r.ID,
		Context:        r.Context,
		Error:          r.Error,
		Logs:           r.Logs,
		Snapshot:       snap,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		VersionHistory: r.VersionHistory,
	}
}

// =============================================================================
// Diffs
// =============================================================================

// StoreDiff caches the diff between two snapshots.
//
// Diffs have no durability obligation: they are recomputable from their
// snapshots, so they live in the cache tier only and a cache failure is
// swallowed like any other.
func (m *Manager) StoreDiff(ctx context.Context, baseID, targetID string, d *snapshot.DiffResult) error {
	ctx, span := startStorageSpan(ctx, "StoreDiff", baseID+":"+targetID)
	defer span.End()

	data, err := diff.Serialize(d)
	if err != nil {
		return fmt.Errorf("store diff %s:%s: %w", baseID, targetID, err)
	}

	if m.cache == nil {
		return nil
	}
	if err := m.cache.Set(ctx, diffCacheKey(baseID, targetID), string(data), m.cacheTTL); err != nil {
		m.cacheDegraded(ctx, "diff write", err)
	}
	return nil
}

// GetDiff returns the cached diff for a snapshot pair.
//
// A missing, empty, or unreadable record is ErrDiffNotFound, never a
// failure, since the diff can always be recomputed.
func (m *Manager) GetDiff(ctx context.Context, baseID, targetID string) (*snapshot.DiffResult, error) {
	ctx, span := startStorageSpan(ctx, "GetDiff", baseID+":"+targetID)
	defer span.End()

	value, err := m.cacheGet(ctx, diffCacheKey(baseID, targetID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			recordTierMiss(ctx, "diff")
		} else {
			m.cacheDegraded(ctx, "diff read", err)
		}
		return nil, fmt.Errorf("%w: %s:%s", ErrDiffNotFound, baseID, targetID)
	}
	if value == "" || value == "{}" {
		recordTierMiss(ctx, "diff")
		return nil, fmt.Errorf("%w: %s:%s", ErrDiffNotFound, baseID, targetID)
	}

	d, err := diff.Deserialize([]byte(value))
	if err != nil {
		m.cacheDegraded(ctx, "diff decode", err)
		return nil, fmt.Errorf("%w: %s:%s", ErrDiffNotFound, baseID, targetID)
	}

	recordTierHit(ctx, "diff")
	return d, nil
}

// =============================================================================
// Cache plumbing
// =============================================================================

func (m *Manager) cacheGet(ctx context.Context, key string) (string, error) {
	if m.cache == nil {
		return "", ErrCacheMiss
	}
	return m.cache.Get(ctx, key)
}

func (m *Manager) cacheGetHash(ctx context.Context, key string) (map[string]string, error) {
	if m.cache == nil {
		return nil, ErrCacheMiss
	}
	return m.cache.GetHash(ctx, key)
}

// cacheDegraded records and logs a swallowed cache failure.
func (m *Manager) cacheDegraded(ctx context.Context, op string, err error) {
	recordCacheError(ctx)
	m.log.Warn("cache degraded to durable path", "op", op, "error", err)
}
