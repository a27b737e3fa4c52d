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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/session"
	"github.com/AleutianAI/AleutianDebug/services/code_ingest/storage"
)

// Handlers contains the HTTP handlers for the code ingestion service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the code ingestion service.
//
// Description:
//
//	Creates HTTP handlers that wrap the Service. The handlers provide
//	REST endpoints for ingesting payloads, retrieving sessions and
//	their history, and reverting to earlier versions.
//
// Inputs:
//
//	svc - The code ingestion service. Must not be nil.
//
// Outputs:
//
//	*Handlers - The configured handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID returns the request ID from the X-Request-ID
// header, generating one when the client did not send it. The ID is
// echoed back on the response for correlation.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleIngest handles POST /v1/ingestion/ingest.
//
// Description:
//
//	Ingests one debugging payload. Without a session_id the payload
//	starts a new session at version 1; with one, it becomes the named
//	session's next version and the delta from the previous snapshot is
//	recorded in the history entry.
//
// Request Body:
//
//	IngestRequest
//
// Response:
//
//	200 OK: IngestResponse
//	400 Bad Request: Malformed body or payload over limits
//	404 Not Found: session_id names no known session
//	500 Internal Server Error: Storage failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleIngest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIngest")

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if req.Codebase == nil {
		logger.Warn("Missing codebase")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Codebase is required",
			Code:  "MISSING_CODEBASE",
		})
		return
	}

	if err := req.Validate(); err != nil {
		logger.Warn("Payload failed validation", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Payload failed validation",
			Code:    "VALIDATION_FAILED",
			Details: err.Error(),
		})
		return
	}

	logger.Info("Processing debugging payload",
		"session_id", req.SessionID,
		"files", len(req.Codebase))

	sess, err := h.svc.Ingest(c.Request.Context(), req)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "INGEST_FAILED"
		errMsg := "Failed to process debugging payload"

		if errors.Is(err, storage.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
			errCode = "SESSION_NOT_FOUND"
			errMsg = fmt.Sprintf("Debugging session %s not found", req.SessionID)
		}

		logger.Error("Ingestion failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error:   errMsg,
			Code:    errCode,
			Details: err.Error(),
		})
		return
	}

	logger.Info("Payload ingested",
		"session_id", sess.ID,
		"snapshot_id", sess.Snapshot.ID,
		"version", sess.CurrentVersion())

	c.JSON(http.StatusOK, IngestResponse{
		SessionID:      sess.ID,
		SnapshotID:     sess.Snapshot.ID,
		Version:        sess.CurrentVersion(),
		VersionHistory: sess.VersionHistory,
		Message:        "Successfully processed debugging payload",
	})
}

// HandleGetSession handles GET /v1/ingestion/session/:session_id.
//
// Description:
//
//	Retrieves a debugging session with its current snapshot and full
//	version history.
//
// Response:
//
//	200 OK: SessionResponse
//	404 Not Found: Unknown session
//	500 Internal Server Error: Storage failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetSession")

	sessionID := c.Param("session_id")

	sess, err := h.svc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "SESSION_LOOKUP_FAILED"
		errMsg := "Failed to retrieve debugging session"

		if errors.Is(err, storage.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
			errCode = "SESSION_NOT_FOUND"
			errMsg = fmt.Sprintf("Debugging session %s not found", sessionID)
		}

		logger.Error("Session lookup failed", "session_id", sessionID, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error:   errMsg,
			Code:    errCode,
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Session: sess,
		Message: "Successfully retrieved debugging session",
	})
}

// HandleHistory handles GET /v1/ingestion/session/:session_id/history.
//
// Description:
//
//	Retrieves the version history for a debugging session: one entry
//	per ingestion or revert, oldest first.
//
// Response:
//
//	200 OK: HistoryResponse
//	404 Not Found: Unknown session
//	500 Internal Server Error: Storage failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHistory(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleHistory")

	sessionID := c.Param("session_id")

	history, err := h.svc.History(c.Request.Context(), sessionID)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "HISTORY_LOOKUP_FAILED"
		errMsg := "Failed to retrieve session history"

		if errors.Is(err, storage.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
			errCode = "SESSION_NOT_FOUND"
			errMsg = fmt.Sprintf("No history found for session %s", sessionID)
		}

		logger.Error("History lookup failed", "session_id", sessionID, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error:   errMsg,
			Code:    errCode,
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		History: history,
		Message: "Successfully retrieved session history",
	})
}

// HandleRevert handles POST /v1/ingestion/session/:session_id/revert/:version.
//
// Description:
//
//	Restores a session's snapshot to the named history version. The
//	restore appends a new history entry referencing the historical
//	snapshot; no history is rewritten or truncated.
//
// Response:
//
//	200 OK: SessionResponse
//	400 Bad Request: Version is not an integer
//	404 Not Found: Unknown session or version outside the history
//	500 Internal Server Error: Storage failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleRevert(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRevert")

	sessionID := c.Param("session_id")

	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		logger.Warn("Invalid version parameter", "version", c.Param("version"))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Version must be an integer",
			Code:  "INVALID_VERSION",
		})
		return
	}

	sess, err := h.svc.Revert(c.Request.Context(), sessionID, version)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "REVERT_FAILED"
		errMsg := "Failed to revert session"

		if errors.Is(err, storage.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
			errCode = "SESSION_NOT_FOUND"
			errMsg = fmt.Sprintf("Debugging session %s not found", sessionID)
		} else if errors.Is(err, session.ErrVersionOutOfRange) {
			statusCode = http.StatusNotFound
			errCode = "VERSION_OUT_OF_RANGE"
			errMsg = fmt.Sprintf("Failed to revert session %s to version %d", sessionID, version)
		}

		logger.Error("Revert failed",
			"session_id", sessionID,
			"version", version,
			"error", err)
		c.JSON(statusCode, ErrorResponse{
			Error:   errMsg,
			Code:    errCode,
			Details: err.Error(),
		})
		return
	}

	logger.Info("Session reverted",
		"session_id", sessionID,
		"version", version,
		"new_version", sess.CurrentVersion())

	c.JSON(http.StatusOK, SessionResponse{
		Session: sess,
		Message: fmt.Sprintf("Successfully reverted to version %d", version),
	})
}

// HandleHealth handles GET /v1/ingestion/health.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/ingestion/ready.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:    true,
		Sessions: h.svc.WorkingSetStats().Size,
	})
}
