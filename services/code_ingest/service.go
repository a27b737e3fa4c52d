// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package code_ingest provides the code ingestion HTTP service for
// versioned debugging snapshots.
//
// The service exposes endpoints for:
//   - Ingesting debugging payloads (create or continue a session)
//   - Retrieving sessions and their version history
//   - Reverting a session to an earlier version
//
// Every payload carries the complete current file set; the service
// filters out noise paths (VCS metadata, build artifacts, dependency
// trees) before the session layer versions what remains.
package code_ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/session"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// ServiceConfig configures the code ingestion service.
type ServiceConfig struct {
	// IgnorePatterns lists paths excluded from ingestion. A pattern
	// beginning with '*' matches as a suffix of the full path; any
	// other pattern excludes paths that start with it or contain it
	// after a '/'. Default: DefaultServiceConfig's list.
	IgnorePatterns []string
}

// DefaultServiceConfig returns sensible defaults.
//
// The ignore list covers VCS metadata, dependency and cache trees,
// environment files, and compiled or transient artifacts.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		IgnorePatterns: []string{
			".git",
			"node_modules",
			"__pycache__",
			".docker",
			".venv",
			".env",
			".DS_Store",
			"*.pyc",
			"*.pyo",
			"*.pyd",
			"*.so",
			"*.dylib",
			"*.dll",
			"*.log",
			"*.tmp",
		},
	}
}

// Service is the code ingestion service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Multiple goroutines can call
//	any combination of methods simultaneously.
type Service struct {
	config   ServiceConfig
	sessions *session.Manager
}

// NewService creates a new code ingestion service.
//
// Description:
//
//	Creates a service over the given session manager. The manager owns
//	session versioning and storage; the service adds payload filtering
//	and the create-versus-update routing decision.
//
// Inputs:
//
//	sessions - The session manager. Must not be nil.
//	config - Service configuration.
//
// Outputs:
//
//	*Service - The configured service.
//	error - Non-nil if sessions is nil.
func NewService(sessions *session.Manager, config ServiceConfig) (*Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager must not be nil")
	}
	return &Service{
		config:   config,
		sessions: sessions,
	}, nil
}

// Ingest processes one debugging payload.
//
// Description:
//
//	Filters the payload's codebase through the ignore patterns, then
//	routes on SessionID: empty creates a new session, non-empty appends
//	the payload as the named session's next version. An unknown
//	SessionID is an error, never an implicit create.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	req - The bound and validated ingest request.
//
// Outputs:
//
//	*snapshot.Session - The created or updated session.
//	error - storage.ErrSessionNotFound via %w if SessionID is unknown.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*snapshot.Session, error) {
	p := session.Payload{
		Codebase: s.filterCodebase(req.Codebase),
		Context:  req.Context,
		Error:    req.Error,
		Logs:     req.Logs,
	}

	if req.SessionID != "" {
		return s.sessions.Update(ctx, req.SessionID, p)
	}
	return s.sessions.Create(ctx, p)
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*snapshot.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// History retrieves the version history for a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]snapshot.VersionEntry, error) {
	return s.sessions.History(ctx, sessionID)
}

// Revert restores a session's snapshot to an earlier version.
//
// The restore is recorded as a new history entry; nothing is truncated.
// Returns session.ErrVersionOutOfRange via %w when the version does not
// exist in the session's history.
func (s *Service) Revert(ctx context.Context, sessionID string, version int) (*snapshot.Session, error) {
	return s.sessions.RevertToVersion(ctx, sessionID, version)
}

// WorkingSetStats reports the session manager's in-process cache counters.
func (s *Service) WorkingSetStats() session.WorkingSetStats {
	return s.sessions.WorkingSetStats()
}

// filterCodebase returns the subset of files that pass the ignore
// patterns. A nil map is treated as empty.
func (s *Service) filterCodebase(files map[string]string) map[string]string {
	valid := make(map[string]string, len(files))
	for path, content := range files {
		if !s.isValidPath(path) {
			continue
		}
		valid[path] = content
	}
	return valid
}

// isValidPath reports whether a file path should be ingested.
//
// Paths are normalized to forward slashes before matching, so Windows
// clients get the same filtering as Unix ones.
func (s *Service) isValidPath(filePath string) bool {
	normalized := strings.ReplaceAll(filePath, "\\", "/")

	for _, pattern := range s.config.IgnorePatterns {
		if strings.HasPrefix(pattern, "*") {
			if strings.HasSuffix(normalized, pattern[1:]) {
				return false
			}
			continue
		}
		if strings.HasPrefix(normalized, pattern) || strings.Contains(normalized, "/"+pattern) {
			return false
		}
	}
	return true
}
