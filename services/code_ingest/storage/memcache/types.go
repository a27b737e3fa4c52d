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
	"container/list"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxEntries is the default maximum number of cached entries.
	// Every cached file is its own entry, so the cap is sized for
	// hundreds of snapshots, not a handful.
	DefaultMaxEntries = 4096

	// DefaultMaxMemoryBytes is the default soft memory limit. Sized so a
	// working set of sub-threshold files (up to 512KiB each) fits
	// comfortably.
	DefaultMaxMemoryBytes = 256 << 20 // 256 MiB

	// entryOverhead approximates the fixed cost of an entry: the struct,
	// its map header, and its LRU element.
	entryOverhead = 128

	// fieldOverhead approximates the per-field cost of a hash entry
	// beyond its key and value bytes.
	fieldOverhead = 48
)

// entry is a single cached value. A string entry carries value with nil
// fields; a hash entry carries fields. The two kinds never mix under
// one key.
type entry struct {
	key        string
	value      string
	fields     map[string]string
	expiresAt  time.Time // zero means no expiry
	lruElement *list.Element
}

// isHash reports the entry kind.
func (e *entry) isHash() bool {
	return e.fields != nil
}

// cost estimates the entry's memory footprint in bytes.
func (e *entry) cost() int64 {
	bytes := int64(entryOverhead + len(e.key) + len(e.value))
	for k, v := range e.fields {
		bytes += int64(fieldOverhead + len(k) + len(v))
	}
	return bytes
}

// expired reports whether the entry's TTL has lapsed at the given time.
func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats contains statistics about the cache.
type Stats struct {
	// EntryCount is the number of live entries.
	EntryCount int

	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Evictions is the number of entries evicted for the entry cap.
	Evictions int64

	// MemoryEvictions is the number of entries evicted for memory
	// pressure.
	MemoryEvictions int64

	// Expirations is the number of entries dropped at read time because
	// their TTL had lapsed.
	Expirations int64

	// Sets is the number of write operations accepted.
	Sets int64

	// MaxEntries is the configured entry cap.
	MaxEntries int

	// MaxMemoryBytes is the configured soft memory limit (0 = unlimited).
	MaxMemoryBytes int64

	// EstimatedMemoryBytes is the current estimated footprint.
	EstimatedMemoryBytes int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Options configures Cache behavior.
type Options struct {
	// MaxEntries is the maximum number of cached entries.
	MaxEntries int

	// MaxMemoryBytes is the soft memory limit (0 = unlimited). A single
	// write larger than the limit is still accepted; the cache converges
	// back under the limit on subsequent writes.
	MaxMemoryBytes int64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:     DefaultMaxEntries,
		MaxMemoryBytes: DefaultMaxMemoryBytes,
	}
}

// Option is a functional option for configuring Cache.
type Option func(*Options)

// WithMaxEntries sets the maximum number of cached entries.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithMaxMemoryBytes sets the soft memory limit.
func WithMaxMemoryBytes(bytes int64) Option {
	return func(o *Options) {
		if bytes >= 0 {
			o.MaxMemoryBytes = bytes
		}
	}
}
