// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists snapshots and sessions across two tiers: an
// authoritative durable store and a best-effort cache in front of it.
//
// # Description
//
// The Manager owns the consistency protocol between the tiers. Durable
// writes always come first and are fatal on failure; cache writes follow
// successful durable writes only, so cache entries may be stale-absent
// but never stale-wrong. Individual files are cache-eligible only below
// a fixed size threshold, and every cache failure degrades to the
// durable path instead of failing the caller. Diffs live in the cache
// alone: they are recomputable from their two snapshots.
//
// Both tiers are injected collaborators. BlobStore and CacheStore are
// the narrow contracts they must satisfy; the badger, gcs, and memcache
// subpackages provide the shipped implementations.
//
// # Thread Safety
//
// A Manager is safe for concurrent use as long as its injected stores
// are.
package storage

import (
	"context"
	"time"
)

// BlobStore is the durable, authoritative tier.
//
// Keys are opaque strings chosen by the Manager. Implementations must
// return ErrObjectNotFound for absent keys so callers can tell absence
// from transport failure with errors.Is.
type BlobStore interface {
	// Put stores data and its string metadata under key, overwriting
	// any previous object.
	Put(ctx context.Context, key string, data []byte, meta map[string]string) error

	// Get returns the data and metadata stored under key, or
	// ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, map[string]string, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheStore is the fast, lossy tier.
//
// Entries may be evicted at any time; a ttl of zero means the
// implementation's default. Implementations must return ErrCacheMiss for
// absent keys. The Manager logs and swallows every other cache error.
type CacheStore interface {
	// Set stores a string value under key.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// SetHash stores a field map under key.
	SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// GetHash returns the field map under key, or ErrCacheMiss.
	GetHash(ctx context.Context, key string) (map[string]string, error)
}

// =============================================================================
// Key layout
// =============================================================================

// cacheNamespace prefixes every cache key.
const cacheNamespace = "deebo"

// snapshotCacheKey returns the cache key for snapshot-level metadata.
func snapshotCacheKey(snapshotID string) string {
	return cacheNamespace + ":snapshot:" + snapshotID
}

// fileCacheKey returns the cache key for one file of a snapshot.
func fileCacheKey(snapshotID, path string) string {
	return cacheNamespace + ":file:" + snapshotID + ":" + path
}

// sessionCacheKey returns the cache key for a session record.
func sessionCacheKey(sessionID string) string {
	return cacheNamespace + ":session:" + sessionID
}

// diffCacheKey returns the cache key for the diff between two snapshots.
func diffCacheKey(baseID, targetID string) string {
	return cacheNamespace + ":diff:" + baseID + ":" + targetID
}

// snapshotObjectKey returns the durable key for a snapshot. One JSON
// object per snapshot id.
func snapshotObjectKey(snapshotID string) string {
	return "snapshots/" + snapshotID + ".json"
}

// sessionObjectKey returns the durable key for a session. One JSON
// object per session id.
func sessionObjectKey(sessionID string) string {
	return "sessions/" + sessionID + ".json"
}
