// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the linear version history of debugging
// sessions.
//
// # Description
//
// Every ingestion, update, and revert appends exactly one entry to a
// session's history; entries are 1-indexed and never edited or
// truncated. The manager keeps a bounded working set of recently
// touched sessions in front of the storage manager; losing a working
// set entry only costs a storage read.
//
// # Thread Safety
//
// Manager is safe for concurrent use. Sessions cross the API boundary
// by value (cloned), so two callers never share mutable state. Write
// operations on the same session are last-write-wins: a session has a
// single logical owner and the manager does not arbitrate between
// concurrent writers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/diff"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// Default working set bounds.
const (
	// DefaultWorkingSetSize is the default number of sessions kept hot.
	DefaultWorkingSetSize = 256

	// DefaultWorkingSetTTL is the default lifetime of a working set
	// entry.
	DefaultWorkingSetTTL = 30 * time.Minute
)

// Storage is the slice of the tiered storage manager the session
// manager depends on.
type Storage interface {
	StoreSession(ctx context.Context, sess *snapshot.Session) error
	GetSession(ctx context.Context, sessionID string) (*snapshot.Session, error)
	GetSnapshot(ctx context.Context, snapshotID string) (*snapshot.Snapshot, error)
	StoreDiff(ctx context.Context, baseID, targetID string, d *snapshot.DiffResult) error
}

// Extractor produces per-file metadata at ingestion time.
type Extractor interface {
	Extract(ctx context.Context, filePath, content string) *snapshot.FileMetadata
}

// Payload is one ingestion submission: the complete codebase plus its
// debugging context. The codebase is a full replacement file set, not
// an overlay.
type Payload struct {
	Codebase map[string]string
	Context  string
	Error    string
	Logs     string
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkingSetSize sets the working set capacity.
func WithWorkingSetSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.wsSize = n
		}
	}
}

// WithWorkingSetTTL sets the working set entry lifetime.
func WithWorkingSetTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.wsTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// Manager creates, evolves, and reverts debugging sessions.
type Manager struct {
	store     Storage
	extractor Extractor
	working   *workingSet
	flight    singleflight.Group
	log       *slog.Logger

	wsSize int
	wsTTL  time.Duration
}

// NewManager builds a session manager over a storage manager and a
// metadata extractor.
func NewManager(store Storage, extractor Extractor, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor must not be nil")
	}

	m := &Manager{
		store:     store,
		extractor: extractor,
		log:       slog.Default(),
		wsSize:    DefaultWorkingSetSize,
		wsTTL:     DefaultWorkingSetTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.working = newWorkingSet(m.wsSize, m.wsTTL)
	return m, nil
}

// Create starts a new session from a payload.
//
// Every file runs through the metadata extractor; extraction never
// fails, so Create fails only when persistence does. The session starts
// at version 1 with a single "Initial snapshot" history entry.
func (m *Manager) Create(ctx context.Context, p Payload) (*snapshot.Session, error) {
	sessionID := snapshot.NewSessionID()
	snap := m.buildSnapshot(ctx, sessionID, 1, p)

	now := time.Now().UTC()
	sess := &snapshot.Session{
		ID:        sessionID,
		Context:   p.Context,
		Error:     p.Error,
		Logs:      p.Logs,
		Snapshot:  snap,
		CreatedAt: now,
		UpdatedAt: now,
		VersionHistory: []snapshot.VersionEntry{{
			Version:     1,
			SnapshotID:  snap.ID,
			Timestamp:   now,
			Description: "Initial snapshot",
		}},
	}

	if err := m.store.StoreSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.working.put(sess)
	m.log.Info("session created",
		"session_id", sessionID,
		"snapshot_id", snap.ID,
		"file_count", snap.FileCount())
	return sess, nil
}

// Update appends a new version built from a complete replacement
// payload.
//
// The new snapshot's diff against the previous one is embedded in the
// appended history entry and also cached under the snapshot pair for
// later retrieval. Files absent from the payload are implicitly
// deleted.
func (m *Manager) Update(ctx context.Context, sessionID string, p Payload) (*snapshot.Session, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	version := len(sess.VersionHistory) + 1
	newSnap := m.buildSnapshot(ctx, sessionID, version, p)
	d := diff.Calculate(sess.Snapshot, newSnap)
	previousID := sess.Snapshot.ID

	now := time.Now().UTC()
	sess.Context = p.Context
	sess.Error = p.Error
	sess.Logs = p.Logs
	sess.Snapshot = newSnap
	sess.UpdatedAt = now
	sess.VersionHistory = append(sess.VersionHistory, snapshot.VersionEntry{
		Version:     version,
		SnapshotID:  newSnap.ID,
		Timestamp:   now,
		Description: fmt.Sprintf("Update with %d modified files", len(d.Modified)),
		Diff:        d,
	})

	if err := m.store.StoreSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session %s: %w", sessionID, err)
	}
	if err := m.store.StoreDiff(ctx, previousID, newSnap.ID, d); err != nil {
		m.log.Warn("diff caching failed", "session_id", sessionID, "error", err)
	}

	m.working.put(sess)
	m.log.Info("session updated",
		"session_id", sessionID,
		"version", version,
		"added", len(d.Added),
		"modified", len(d.Modified),
		"deleted", len(d.Deleted))
	return sess, nil
}

// Get retrieves a session, working set first, storage second.
//
// Concurrent storage loads for the same id are deduplicated; the
// working set is populated on the storage path so the next read is
// local.
func (m *Manager) Get(ctx context.Context, sessionID string) (*snapshot.Session, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	if sess, ok := m.working.get(sessionID); ok {
		return sess, nil
	}

	result, err, _ := m.flight.Do(sessionID, func() (interface{}, error) {
		sess, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		m.working.put(sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*snapshot.Session).Clone(), nil
}

// History returns a session's version history, oldest first.
func (m *Manager) History(ctx context.Context, sessionID string) ([]snapshot.VersionEntry, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.VersionHistory, nil
}

// RevertToVersion restores the snapshot a historical entry references.
//
// The revert appends a new entry at length+1 carrying RevertedFrom and
// no diff; history is an audit log and is never truncated. The restored
// snapshot keeps its original id, so several entries may reference one
// snapshot. An out-of-range version is a defined miss
// (ErrVersionOutOfRange) that leaves the session untouched.
func (m *Manager) RevertToVersion(ctx context.Context, sessionID string, version int) (*snapshot.Session, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	target, ok := sess.EntryAt(version)
	if !ok {
		return nil, fmt.Errorf("%w: version %d of %d", ErrVersionOutOfRange, version, len(sess.VersionHistory))
	}

	snap, err := m.store.GetSnapshot(ctx, target.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("revert session %s: %w", sessionID, err)
	}

	now := time.Now().UTC()
	sess.Snapshot = snap
	sess.UpdatedAt = now
	sess.VersionHistory = append(sess.VersionHistory, snapshot.VersionEntry{
		Version:      len(sess.VersionHistory) + 1,
		SnapshotID:   snap.ID,
		Timestamp:    now,
		Description:  fmt.Sprintf("Reverted to version %d", version),
		RevertedFrom: version,
	})

	if err := m.store.StoreSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("revert session %s: %w", sessionID, err)
	}

	m.working.put(sess)
	m.log.Info("session reverted",
		"session_id", sessionID,
		"reverted_to", version,
		"new_version", len(sess.VersionHistory))
	return sess, nil
}

// WorkingSetStats reports the manager's cache behavior.
func (m *Manager) WorkingSetStats() WorkingSetStats {
	return m.working.stats()
}

// buildSnapshot runs the payload through the extractor and assembles
// the snapshot with its session-scoped metadata.
func (m *Manager) buildSnapshot(ctx context.Context, sessionID string, version int, p Payload) *snapshot.Snapshot {
	overlay := make(map[string]*snapshot.FileMetadata, len(p.Codebase))
	for path, content := range p.Codebase {
		overlay[path] = m.extractor.Extract(ctx, path, content)
	}

	snap := snapshot.New(p.Codebase, overlay)
	snap.Metadata = snapshot.Metadata{
		SessionID: sessionID,
		Version:   version,
		Context:   p.Context,
		Error:     p.Error,
		Logs:      p.Logs,
	}
	return snap
}
