// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot defines the immutable value types of the versioned
// snapshot store: files, snapshots, diffs between snapshots, and the
// per-session version history that strings snapshots together.
//
// # Description
//
// A Snapshot is an identified, timestamped set of files. Snapshots are
// never modified after creation: every ingestion or update mints a new
// snapshot with a new id, and a session records the lineage as an
// append-only sequence of VersionEntry records. A DiffResult classifies
// the whole-file delta between two snapshots.
//
// # Thread Safety
//
// Types in this package are plain values. They are safe for concurrent
// reads after construction; construction itself is single-goroutine.
package snapshot

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// File
// =============================================================================

// File is a single file inside a snapshot.
//
// Files are immutable once part of a snapshot. Content is the full file
// text; byte-level representations are out of scope.
type File struct {
	// Path is the file's path relative to the codebase root.
	Path string `json:"path"`

	// Content is the complete file content.
	Content string `json:"content"`

	// Metadata holds extracted per-file metadata, if any.
	Metadata *FileMetadata `json:"metadata,omitempty"`
}

// Size returns the content length in bytes.
func (f File) Size() int {
	return len(f.Content)
}

// =============================================================================
// File Metadata
// =============================================================================

// FileMetadata is the extractor's per-file result.
//
// Extraction is best-effort: Structure and Dependencies are nil when the
// language has no registered parser or when parsing degraded.
type FileMetadata struct {
	// Language is the detected language name, or "Unknown".
	Language string `json:"language"`

	// SizeBytes is the content size in bytes.
	SizeBytes int `json:"size_bytes"`

	// MimeType is the sniffed MIME type of the content.
	MimeType string `json:"mime_type,omitempty"`

	// Lines carries the line-level metrics.
	Lines LineMetrics `json:"lines"`

	// Structure holds declared classes/functions/imports when a parser
	// for the language is available.
	Structure *Structure `json:"structure,omitempty"`

	// Dependencies lists manifest-declared dependencies when the file is
	// a recognized dependency manifest (go.mod, requirements.txt,
	// package.json).
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Extra is an open extension map for forward-compatible metadata.
	Extra map[string]any `json:"extra,omitempty"`
}

// LineMetrics summarizes line counts and lengths for one file.
type LineMetrics struct {
	// Total is the number of lines.
	Total int `json:"total"`

	// Blank is the number of whitespace-only lines.
	Blank int `json:"blank"`

	// Comment is the number of line-comment lines.
	Comment int `json:"comment"`

	// Code is Total minus Blank minus Comment.
	Code int `json:"code"`

	// AvgLineLength is the mean line length, 0 for empty content.
	AvgLineLength float64 `json:"avg_line_length"`

	// MaxLineLength is the longest line's length, 0 for empty content.
	MaxLineLength int `json:"max_line_length"`
}

// Structure lists the declarations found by structural extraction.
type Structure struct {
	// Classes holds declared class/type names.
	Classes []string `json:"classes"`

	// Functions holds declared function and method names.
	Functions []string `json:"functions"`

	// Imports holds imported module/package paths.
	Imports []string `json:"imports"`
}

// Dependency is one entry from a dependency manifest.
type Dependency struct {
	// Name is the module or package path.
	Name string `json:"name"`

	// Version is the declared version, if the manifest records one.
	Version string `json:"version,omitempty"`

	// Indirect marks transitive requirements (go.mod only).
	Indirect bool `json:"indirect,omitempty"`
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable, identified set of files at a point in time.
//
// # Description
//
// The id never changes after creation, and the file set is never edited
// in place: updates always produce a new snapshot with a new id. The one
// sanctioned same-id construction is diff application, which rebuilds an
// equivalent snapshot under the base's identity (see the diff package).
type Snapshot struct {
	// ID is the opaque snapshot identifier.
	ID string `json:"id"`

	// Timestamp records when the snapshot was constructed (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Files maps path → File. Keys are unique and match File.Path.
	Files map[string]File `json:"files"`

	// Metadata carries the snapshot's typed metadata.
	Metadata Metadata `json:"metadata"`
}

// Metadata is the snapshot-level metadata record.
//
// Known shapes are explicit fields; Extra is the open extension map for
// anything callers attach beyond them.
type Metadata struct {
	// SessionID links the snapshot to its owning session.
	SessionID string `json:"session_id,omitempty"`

	// Version is the session version this snapshot was created as.
	Version int `json:"version,omitempty"`

	// Context is the free-form background supplied at ingestion.
	Context string `json:"context,omitempty"`

	// Error is the error description supplied at ingestion.
	Error string `json:"error,omitempty"`

	// Logs holds terminal/console output supplied at ingestion.
	Logs string `json:"logs,omitempty"`

	// DiffApplied is the audit record left by diff application.
	DiffApplied *DiffAudit `json:"diff_applied,omitempty"`

	// Extra is an open extension map for forward-compatible metadata.
	Extra map[string]any `json:"extra,omitempty"`
}

// DiffAudit records one diff application against a snapshot.
type DiffAudit struct {
	// AppliedAt is when the diff was applied (UTC).
	AppliedAt time.Time `json:"applied_at"`

	// Added is the count of added files in the applied diff.
	Added int `json:"added"`

	// Modified is the count of modified files in the applied diff.
	Modified int `json:"modified"`

	// Deleted is the count of deleted paths in the applied diff.
	Deleted int `json:"deleted"`
}

// New builds a snapshot from a path → content mapping.
//
// A fresh id and UTC timestamp are minted. The optional overlay attaches
// per-path metadata; paths in the overlay with no matching content entry
// are ignored.
func New(contents map[string]string, overlay map[string]*FileMetadata) *Snapshot {
	files := make(map[string]File, len(contents))
	for path, content := range contents {
		f := File{Path: path, Content: content}
		if overlay != nil {
			f.Metadata = overlay[path]
		}
		files[path] = f
	}
	return &Snapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Files:     files,
	}
}

// Equal reports whether two snapshots share an identity.
//
// Snapshots are equal by id only; file contents are not compared.
func (s *Snapshot) Equal(other *Snapshot) bool {
	return s != nil && other != nil && s.ID == other.ID
}

// FileCount returns the number of files in the snapshot.
func (s *Snapshot) FileCount() int {
	return len(s.Files)
}

// Paths returns the snapshot's file paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// CloneFiles returns a shallow copy of the file map.
//
// File values are immutable, so a map-level copy is sufficient for
// building a derived snapshot without touching the source.
func (s *Snapshot) CloneFiles() map[string]File {
	files := make(map[string]File, len(s.Files))
	for p, f := range s.Files {
		files[p] = f
	}
	return files
}

// =============================================================================
// Diff Result
// =============================================================================

// DiffResult is the whole-file classification between two snapshots.
//
// Every path in either snapshot lands in exactly one of added, modified,
// deleted, or unchanged (unchanged paths are recorded nowhere).
type DiffResult struct {
	// Added maps path → File for paths present only in the target.
	Added map[string]File `json:"added"`

	// Modified maps path → File (target version) for paths present in
	// both snapshots with differing content.
	Modified map[string]File `json:"modified"`

	// Deleted lists paths present only in the base.
	Deleted []string `json:"deleted"`
}

// NewDiffResult returns an empty diff with all sets allocated.
func NewDiffResult() *DiffResult {
	return &DiffResult{
		Added:    make(map[string]File),
		Modified: make(map[string]File),
		Deleted:  []string{},
	}
}

// Empty reports whether the diff carries no changes.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Counts returns the added, modified, and deleted cardinalities.
func (d *DiffResult) Counts() (added, modified, deleted int) {
	return len(d.Added), len(d.Modified), len(d.Deleted)
}

// =============================================================================
// Version History
// =============================================================================

// VersionEntry is one record in a session's append-only history.
//
// Versions are 1-indexed and strictly increasing. The entry for a revert
// carries RevertedFrom and no diff; the entry for an update embeds the
// diff against the previous version in serialized (plain JSON mapping)
// form.
type VersionEntry struct {
	// Version is the 1-indexed position in the history.
	Version int `json:"version"`

	// SnapshotID references the snapshot current as of this entry.
	SnapshotID string `json:"snapshot_id"`

	// Timestamp records when the entry was appended (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Description is the human-readable summary of the operation.
	Description string `json:"description"`

	// Diff is the delta from the previous version, absent for the
	// initial entry and for reverts.
	Diff *DiffResult `json:"diff,omitempty"`

	// RevertedFrom is the 1-indexed version a revert restored, 0 when
	// the entry is not a revert.
	RevertedFrom int `json:"reverted_from,omitempty"`
}

// =============================================================================
// Session
// =============================================================================

// Session is a debugging conversation: one evolving current snapshot plus
// the append-only version history behind it.
//
// Invariants: VersionHistory is 1-indexed and never truncated or edited
// in place, and Snapshot always equals the snapshot referenced by the
// last history entry.
type Session struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`

	// Context is the free-form background for the session.
	Context string `json:"context,omitempty"`

	// Error is the error description under investigation.
	Error string `json:"error,omitempty"`

	// Logs holds terminal/console output supplied with the payload.
	Logs string `json:"logs,omitempty"`

	// Snapshot is the session's current snapshot.
	Snapshot *Snapshot `json:"snapshot"`

	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session last changed (UTC).
	UpdatedAt time.Time `json:"updated_at"`

	// VersionHistory is the ordered, append-only version sequence.
	VersionHistory []VersionEntry `json:"version_history"`
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// CurrentVersion returns the session's latest version number, 0 for a
// session with no history.
func (s *Session) CurrentVersion() int {
	return len(s.VersionHistory)
}

// LatestEntry returns the most recent history entry, nil when the
// history is empty.
func (s *Session) LatestEntry() *VersionEntry {
	if len(s.VersionHistory) == 0 {
		return nil
	}
	return &s.VersionHistory[len(s.VersionHistory)-1]
}

// EntryAt returns the history entry for a 1-indexed version.
func (s *Session) EntryAt(version int) (VersionEntry, bool) {
	if version < 1 || version > len(s.VersionHistory) {
		return VersionEntry{}, false
	}
	return s.VersionHistory[version-1], true
}

// Clone returns a copy safe to mutate without touching the receiver.
//
// The history slice and file map are copied; snapshots and files inside
// them are immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.VersionHistory = make([]VersionEntry, len(s.VersionHistory))
	copy(clone.VersionHistory, s.VersionHistory)
	if s.Snapshot != nil {
		snap := *s.Snapshot
		snap.Files = s.Snapshot.CloneFiles()
		clone.Snapshot = &snap
	}
	return &clone
}
