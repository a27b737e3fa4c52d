// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes and applies whole-file deltas between snapshots.
//
// # Description
//
// Calculate classifies every path across two snapshots into added,
// modified, or deleted by exact content comparison; Apply replays such a
// classification onto a base snapshot to reconstruct the target under
// the base's identity. Serialize and Deserialize carry a DiffResult
// across the storage boundary as a plain JSON mapping.
//
// Diffing is whole-file only. There is no line- or byte-level hunking
// and no whitespace normalization anywhere in this package.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package diff

import (
	"sort"
	"time"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// Calculate classifies the whole-file delta from base to target.
//
// # Description
//
//	added:    paths present in target but not base
//	deleted:  paths present in base but not target
//	modified: paths present in both whose content differs exactly
//
// Unchanged paths appear in none of the three sets. Runs in
// O(len(base.Files) + len(target.Files)). A nil snapshot is treated as
// empty on that side.
func Calculate(base, target *snapshot.Snapshot) *snapshot.DiffResult {
	baseFiles := filesOf(base)
	targetFiles := filesOf(target)

	result := snapshot.NewDiffResult()

	for path, file := range targetFiles {
		old, ok := baseFiles[path]
		switch {
		case !ok:
			result.Added[path] = file
		case old.Content != file.Content:
			result.Modified[path] = file
		}
	}

	for path := range baseFiles {
		if _, ok := targetFiles[path]; !ok {
			result.Deleted = append(result.Deleted, path)
		}
	}
	sort.Strings(result.Deleted)

	return result
}

// Apply replays a diff onto a base snapshot.
//
// # Description
//
// The working set starts as a copy of base's files. Added entries are
// inserted, modified entries overwrite only paths already in the working
// set (a modified entry for an absent path is silently skipped; Apply
// never introduces a path through the modified set), and deleted paths
// are removed when present.
//
// The result keeps base's id: diff application reconstructs the same
// logical snapshot under a different representation, it does not mint a
// new version. The timestamp is fresh, and the base's metadata is carried
// over with a diff-application audit record attached.
func Apply(base *snapshot.Snapshot, d *snapshot.DiffResult) *snapshot.Snapshot {
	if d == nil {
		d = snapshot.NewDiffResult()
	}

	files := base.CloneFiles()

	for path, file := range d.Added {
		files[path] = file
	}
	for path, file := range d.Modified {
		if _, ok := files[path]; ok {
			files[path] = file
		}
	}
	for _, path := range d.Deleted {
		delete(files, path)
	}

	added, modified, deleted := d.Counts()
	meta := base.Metadata
	meta.DiffApplied = &snapshot.DiffAudit{
		AppliedAt: time.Now().UTC(),
		Added:     added,
		Modified:  modified,
		Deleted:   deleted,
	}

	return &snapshot.Snapshot{
		ID:        base.ID,
		Timestamp: time.Now().UTC(),
		Files:     files,
		Metadata:  meta,
	}
}

// ChangedPaths returns every path touched by the diff, sorted and
// deduplicated across the added, modified, and deleted sets.
func ChangedPaths(d *snapshot.DiffResult) []string {
	if d == nil {
		return []string{}
	}

	seen := make(map[string]struct{}, len(d.Added)+len(d.Modified)+len(d.Deleted))
	for path := range d.Added {
		seen[path] = struct{}{}
	}
	for path := range d.Modified {
		seen[path] = struct{}{}
	}
	for _, path := range d.Deleted {
		seen[path] = struct{}{}
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func filesOf(s *snapshot.Snapshot) map[string]snapshot.File {
	if s == nil {
		return nil
	}
	return s.Files
}
