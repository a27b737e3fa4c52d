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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all code ingestion routes with the router.
//
// Description:
//
//	Registers all /v1/ingestion/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/ingestion/ingest - Ingest a debugging payload
//	GET  /v1/ingestion/session/:session_id - Retrieve a session
//	GET  /v1/ingestion/session/:session_id/history - Retrieve version history
//	POST /v1/ingestion/session/:session_id/revert/:version - Revert to a version
//	GET  /v1/ingestion/health - Health check
//	GET  /v1/ingestion/ready - Readiness check
//
// Example:
//
//	svc, _ := code_ingest.NewService(sessions, code_ingest.DefaultServiceConfig())
//	handlers := code_ingest.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	code_ingest.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ingestion := rg.Group("/ingestion")
	{
		// Payload ingestion
		ingestion.POST("/ingest", handlers.HandleIngest)

		// Session queries
		ingestion.GET("/session/:session_id", handlers.HandleGetSession)
		ingestion.GET("/session/:session_id/history", handlers.HandleHistory)

		// Version control
		ingestion.POST("/session/:session_id/revert/:version", handlers.HandleRevert)

		// Health checks
		ingestion.GET("/health", handlers.HandleHealth)
		ingestion.GET("/ready", handlers.HandleReady)
	}
}
