// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// workingSet is the manager's bounded read-through cache of recently
// touched sessions. It is a separate layer from the storage manager's
// tiering: eviction or expiry here only costs a storage read, never
// data.
//
// The set owns its copies. Sessions are cloned on the way in and on the
// way out, so callers and the cache never share mutable state.
type workingSet struct {
	mu       sync.Mutex
	entries  map[string]*wsEntry
	lru      *list.List
	capacity int
	ttl      time.Duration

	// Stats
	hits      int64
	misses    int64
	evictions int64
}

type wsEntry struct {
	session    *snapshot.Session
	storedAt   time.Time
	lruElement *list.Element
}

// WorkingSetStats describes the state of the session working set.
type WorkingSetStats struct {
	Size      int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

func newWorkingSet(capacity int, ttl time.Duration) *workingSet {
	return &workingSet{
		entries:  make(map[string]*wsEntry),
		lru:      list.New(),
		capacity: capacity,
		ttl:      ttl,
	}
}

// get returns a clone of a live entry's session.
func (w *workingSet) get(sessionID string) (*snapshot.Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[sessionID]
	if !ok {
		atomic.AddInt64(&w.misses, 1)
		return nil, false
	}

	if w.ttl > 0 && time.Since(e.storedAt) > w.ttl {
		w.removeLocked(sessionID, e)
		atomic.AddInt64(&w.misses, 1)
		return nil, false
	}

	w.lru.MoveToFront(e.lruElement)
	atomic.AddInt64(&w.hits, 1)
	return e.session.Clone(), true
}

// put stores a clone of the session, replacing any previous entry and
// evicting the least recently used entry when over capacity.
func (w *workingSet) put(sess *snapshot.Session) {
	if sess == nil || sess.ID == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.entries[sess.ID]; ok {
		w.removeLocked(sess.ID, old)
	}

	for len(w.entries) >= w.capacity {
		back := w.lru.Back()
		if back == nil {
			break
		}
		victimID := back.Value.(string)
		w.removeLocked(victimID, w.entries[victimID])
		atomic.AddInt64(&w.evictions, 1)
	}

	e := &wsEntry{
		session:  sess.Clone(),
		storedAt: time.Now(),
	}
	e.lruElement = w.lru.PushFront(sess.ID)
	w.entries[sess.ID] = e
}

func (w *workingSet) removeLocked(sessionID string, e *wsEntry) {
	if e != nil && e.lruElement != nil {
		w.lru.Remove(e.lruElement)
		e.lruElement = nil
	}
	delete(w.entries, sessionID)
}

func (w *workingSet) stats() WorkingSetStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WorkingSetStats{
		Size:      len(w.entries),
		Capacity:  w.capacity,
		Hits:      atomic.LoadInt64(&w.hits),
		Misses:    atomic.LoadInt64(&w.misses),
		Evictions: atomic.LoadInt64(&w.evictions),
	}
}
