// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package code_ingest

import (
	"fmt"
	"strings"
	"testing"
)

func TestIngestRequest_Validate(t *testing.T) {
	req := IngestRequest{
		Codebase: map[string]string{"main.py": "x = 1\n"},
		Error:    "NameError",
	}
	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}

func TestIngestRequest_Validate_FileTooLarge(t *testing.T) {
	atLimit := IngestRequest{
		Codebase: map[string]string{
			"big.py": strings.Repeat("a", MaxFileContentBytes),
		},
	}
	if err := atLimit.Validate(); err != nil {
		t.Errorf("expected file at the limit to pass, got %v", err)
	}

	overLimit := IngestRequest{
		Codebase: map[string]string{
			"big.py": strings.Repeat("a", MaxFileContentBytes+1),
		},
	}
	if err := overLimit.Validate(); err == nil {
		t.Error("expected validation error for oversize file")
	}
}

func TestIngestRequest_Validate_TooManyFiles(t *testing.T) {
	codebase := make(map[string]string, MaxCodebaseFiles+1)
	for i := 0; i <= MaxCodebaseFiles; i++ {
		codebase[fmt.Sprintf("file_%d.py", i)] = "pass\n"
	}

	req := IngestRequest{Codebase: codebase}
	if err := req.Validate(); err == nil {
		t.Error("expected validation error for too many files")
	}
}

func TestIngestRequest_Validate_NilCodebase(t *testing.T) {
	// Presence of the codebase is the handler's check, not the
	// validator's, so a nil map passes here.
	req := IngestRequest{}
	if err := req.Validate(); err != nil {
		t.Errorf("expected nil codebase to pass validation, got %v", err)
	}
}
