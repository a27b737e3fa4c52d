// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// Serialize encodes a DiffResult as a plain JSON mapping with top-level
// "added", "modified", and "deleted" keys.
//
// A nil diff serializes as an empty diff. The encoding is lossless:
// Deserialize recovers a structurally equal DiffResult.
func Serialize(d *snapshot.DiffResult) ([]byte, error) {
	if d == nil {
		d = snapshot.NewDiffResult()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("serialize diff: %w", err)
	}
	return data, nil
}

// Deserialize decodes a serialized diff mapping back into a DiffResult.
//
// Missing sets decode as empty, never nil, so round-tripped diffs compare
// structurally equal regardless of which sets were populated.
func Deserialize(data []byte) (*snapshot.DiffResult, error) {
	d := snapshot.NewDiffResult()
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("deserialize diff: %w", err)
	}
	if d.Added == nil {
		d.Added = make(map[string]snapshot.File)
	}
	if d.Modified == nil {
		d.Modified = make(map[string]snapshot.File)
	}
	if d.Deleted == nil {
		d.Deleted = []string{}
	}
	return d, nil
}
