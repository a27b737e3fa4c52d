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

import "errors"

var (
	// ErrObjectNotFound is returned by a BlobStore when no object exists
	// under the requested key. It marks true absence, never a transport
	// failure.
	ErrObjectNotFound = errors.New("object not found")

	// ErrCacheMiss is returned by a CacheStore when a key holds no entry.
	// The manager treats any other cache error as a degraded path, not a
	// miss.
	ErrCacheMiss = errors.New("cache miss")

	// ErrSnapshotNotFound is returned when a snapshot is absent from the
	// durable store. A durable miss is terminal: the cache is never
	// consulted as a second chance.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSessionNotFound is returned when a session is absent, or when
	// its current snapshot cannot be resolved.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDiffNotFound is returned when no diff is cached for a snapshot
	// pair. Diffs are recomputable, so absence is a defined result.
	ErrDiffNotFound = errors.New("diff not found")

	// ErrNilSnapshot is returned when a nil snapshot is passed to a
	// store operation.
	ErrNilSnapshot = errors.New("nil snapshot")

	// ErrNilSession is returned when a nil session is passed to a store
	// operation.
	ErrNilSession = errors.New("nil session")

	// ErrNoDurableStore is returned by NewManager when the durable
	// collaborator is missing.
	ErrNoDurableStore = errors.New("durable store is required")
)
