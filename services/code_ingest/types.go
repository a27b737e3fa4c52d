// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the ingestion
// endpoints. Service configuration lives in service.go.

package code_ingest

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// =============================================================================
// Request Limits
// =============================================================================

const (
	// MaxFileContentBytes is the maximum size of a single file in a
	// debugging payload. Checked as byte length, not rune count.
	MaxFileContentBytes = 1 * 1024 * 1024 // 1MB

	// MaxCodebaseFiles is the maximum number of files in a single
	// debugging payload. Mirrored in the IngestRequest validate tag.
	MaxCodebaseFiles = 10000
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// ingestValidate is the validator instance for ingestion datatypes.
// Initialized in init() with custom validators.
var ingestValidate *validator.Validate

func init() {
	ingestValidate = validator.New()
	_ = ingestValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxFileContentBytes. Byte length is used so multi-byte content cannot
// slip past the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxFileContentBytes
}

// =============================================================================
// Request Types
// =============================================================================

// IngestRequest is the request body for POST /v1/ingestion/ingest.
//
// # Description
//
// IngestRequest carries one debugging payload: the full set of code files
// plus the error, logs, and context the client observed. When SessionID is
// empty a new session is created; when it names an existing session the
// payload becomes that session's next version.
//
// # Fields
//
//   - SessionID: Optional. Continue an existing session. An unknown ID is
//     an error, not an implicit create.
//   - Codebase: Required. The complete current file set, path -> content.
//     Files matching the service ignore patterns are dropped before
//     ingestion. Paths absent from the map are treated as deleted.
//   - Context: Optional. Background information for the session.
//   - Error: Optional. Description of the error under investigation.
//   - Logs: Optional. Terminal or console output.
//
// # Validation
//
// Uses go-playground/validator:
//   - Codebase: at most 10000 entries (MaxCodebaseFiles), each value at
//     most 1MB (MaxFileContentBytes via the maxbytes validator)
//
// Presence of Codebase is checked by the handler so the error message can
// name the field.
type IngestRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	Codebase  map[string]string `json:"codebase" validate:"max=10000,dive,maxbytes"`
	Context   string            `json:"context,omitempty"`
	Error     string            `json:"error,omitempty"`
	Logs      string            `json:"logs,omitempty"`
}

// Validate validates the IngestRequest fields.
//
// Call after binding the JSON request. Returns a validator error naming
// the offending field when the payload is out of bounds.
func (r *IngestRequest) Validate() error {
	return ingestValidate.Struct(r)
}

// =============================================================================
// Response Types
// =============================================================================

// IngestResponse is the response for POST /v1/ingestion/ingest.
type IngestResponse struct {
	// SessionID identifies the session the payload landed in. Clients
	// pass it back to continue the session.
	SessionID string `json:"session_id"`

	// SnapshotID identifies the snapshot built from this payload.
	SnapshotID string `json:"snapshot_id"`

	// Version is the history position this payload produced.
	Version int `json:"version"`

	// VersionHistory is the session's full version history.
	VersionHistory []snapshot.VersionEntry `json:"version_history"`

	// Message is a human-readable status line.
	Message string `json:"message"`
}

// SessionResponse is the response for GET /v1/ingestion/session/:session_id
// and for POST /v1/ingestion/session/:session_id/revert/:version.
type SessionResponse struct {
	Session *snapshot.Session `json:"session"`
	Message string            `json:"message"`
}

// HistoryResponse is the response for
// GET /v1/ingestion/session/:session_id/history.
type HistoryResponse struct {
	History []snapshot.VersionEntry `json:"history"`
	Message string                  `json:"message"`
}

// HealthResponse is the response for GET /v1/ingestion/health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/ingestion/ready.
type ReadyResponse struct {
	// Ready is true if the service is ready to accept requests.
	Ready bool `json:"ready"`

	// Sessions is the number of sessions in the working set.
	Sessions int `json:"sessions"`
}

// ErrorResponse is the standard error envelope for all endpoints.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional context about the error.
	Details string `json:"details,omitempty"`
}
