// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seam

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all seam routes with the router.
//
// Description:
//
//	Registers all /v1/seam/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Analysis Endpoints:
//
//	POST /v1/seam/analyze - Run the analysis pipeline
//	GET  /v1/seam/runs/:id - Get a full run result ("latest" supported)
//	GET  /v1/seam/runs/:id/report - Get a run's summary report
//	GET  /v1/seam/runs/:id/opportunities - List discovered opportunities
//	GET  /v1/seam/runs/:id/symbols - Search the run's symbol index
//
// Plan Endpoints:
//
//	GET  /v1/seam/runs/:id/plans/:plan_id/preview - Unified diff preview
//	POST /v1/seam/runs/:id/plans/:plan_id/apply - Record plan as applied
//	GET  /v1/seam/ledger - List applied plans
//
// Snapshot Endpoints:
//
//	POST   /v1/seam/snapshots - Persist a run's graph
//	GET    /v1/seam/snapshots - List snapshots for a project
//	DELETE /v1/seam/snapshots/:id - Delete a snapshot
//
// Streaming Endpoints:
//
//	GET /v1/seam/events - Websocket stream of run progress events
//
// Health Endpoints:
//
//	GET /v1/seam/health - Health check
//	GET /v1/seam/ready - Readiness check
//
// Example:
//
//	service, _ := seam.NewService(seam.DefaultServiceConfig())
//	handlers := seam.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	seam.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	seam := rg.Group("/seam")
	{
		seam.POST("/analyze", handlers.HandleAnalyze)

		runs := seam.Group("/runs")
		{
			runs.GET("/:id", handlers.HandleGetRun)
			runs.GET("/:id/report", handlers.HandleGetReport)
			runs.GET("/:id/opportunities", handlers.HandleListOpportunities)
			runs.GET("/:id/symbols", handlers.HandleSearchSymbols)
			runs.GET("/:id/plans/:plan_id/preview", handlers.HandlePreviewPlan)
			runs.POST("/:id/plans/:plan_id/apply", handlers.HandleApplyPlan)
		}

		seam.GET("/ledger", handlers.HandleLedger)

		seam.POST("/snapshots", handlers.HandleSaveSnapshot)
		seam.GET("/snapshots", handlers.HandleListSnapshots)
		seam.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		seam.GET("/events", handlers.HandleEvents)

		seam.GET("/health", handlers.HandleHealth)
		seam.GET("/ready", handlers.HandleReady)
	}
}
