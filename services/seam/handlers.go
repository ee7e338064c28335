// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seam

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/pipeline"
)

// Handlers binds the service to Gin routes.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleAnalyze handles POST /v1/seam/analyze.
//
// Description:
//
//	Runs the full analysis pipeline synchronously and returns the run
//	summary. Unit-level resolution failures do not fail the request; the
//	response marks the run incomplete instead.
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: Missing or invalid body
//	422 Unprocessable Entity: Adapter or config failure
//
// Thread Safety: Safe for concurrent use.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Adapter == "" {
		req.Adapter = "jsonl"
	}

	result, err := h.service.Analyze(c.Request.Context(), req.ProjectRoot, req.Adapter, req.CollectAll)
	if err != nil {
		logger.Error("Analysis failed", "projectRoot", req.ProjectRoot, "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "ANALYSIS_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, AnalyzeResponse{
		RunID:      result.RunID,
		Generation: result.Generation,
		Report:     result.Report,
		Summary:    result.Report.String(),
		Incomplete: result.Incomplete,
		UnitErrors: len(result.Build.UnitErrors),
	})
}

// HandleGetRun handles GET /v1/seam/runs/:id.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	result, ok := h.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGetReport handles GET /v1/seam/runs/:id/report.
func (h *Handlers) HandleGetReport(c *gin.Context) {
	result, ok := h.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":  result.RunID,
		"report":  result.Report,
		"summary": result.Report.String(),
	})
}

// HandleListOpportunities handles GET /v1/seam/runs/:id/opportunities.
//
// Query Parameters:
//
//	kind: Filter to one pattern kind name (optional)
//	state: Filter to one lifecycle state (optional)
//	limit: Maximum results, default 200 (optional)
func (h *Handlers) HandleListOpportunities(c *gin.Context) {
	result, ok := h.lookupRun(c)
	if !ok {
		return
	}

	kindFilter := c.Query("kind")
	stateFilter := c.Query("state")
	limit := 200
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	views := make([]OpportunityView, 0, len(result.Items))
	for _, item := range result.Items {
		if kindFilter != "" && !strings.EqualFold(item.Opportunity.KindName, kindFilter) {
			continue
		}
		if stateFilter != "" && item.State != stateFilter {
			continue
		}
		view := OpportunityView{
			OpportunityID: item.Opportunity.ID,
			Kind:          item.Opportunity.KindName,
			ConstructorID: item.Opportunity.ConstructorID,
			Depth:         item.Opportunity.Depth,
			State:         item.State,
			SkipReason:    item.SkipReason,
		}
		if item.Plan != nil {
			view.PlanID = item.Plan.ID
			view.Strategy = item.Plan.Strategy
			view.NoOp = item.Plan.NoOp
		}
		views = append(views, view)
		if len(views) >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": result.RunID, "opportunities": views})
}

// HandlePreviewPlan handles GET /v1/seam/runs/:id/plans/:plan_id/preview.
//
// Returns the unified-diff preview as text/x-diff. A verified no-op plan
// previews as an empty body.
func (h *Handlers) HandlePreviewPlan(c *gin.Context) {
	diff, err := h.service.PreviewPlan(c.Param("id"), c.Param("plan_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
		return
	}
	c.Data(http.StatusOK, "text/x-diff; charset=utf-8", diff)
}

// HandleApplyPlan handles POST /v1/seam/runs/:id/plans/:plan_id/apply.
//
// Description:
//
//	Marks a verified plan applied in the ledger. A plan whose call-site
//	rewrites overlap a previously applied plan is rejected with 409.
func (h *Handlers) HandleApplyPlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleApplyPlan")

	item, err := h.service.ApplyPlan(c.Param("id"), c.Param("plan_id"))
	if err != nil {
		if item == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
			return
		}
		logger.Warn("Plan application rejected", "planID", c.Param("plan_id"), "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"code":  "APPLY_REJECTED",
			"item":  item,
		})
		return
	}
	c.JSON(http.StatusOK, item)
}

// HandleSearchSymbols handles GET /v1/seam/runs/:id/symbols.
//
// Query Parameters:
//
//	name: Exact symbol name (one of name/prefix is required)
//	prefix: Symbol name prefix
func (h *Handlers) HandleSearchSymbols(c *gin.Context) {
	name := c.Query("name")
	prefix := c.Query("prefix")
	if name == "" && prefix == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "one of name or prefix is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	matches, err := h.service.SearchSymbols(c.Param("id"), name, prefix)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// HandleSaveSnapshot handles POST /v1/seam/snapshots.
func (h *Handlers) HandleSaveSnapshot(c *gin.Context) {
	var req SnapshotSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	meta, err := h.service.SaveSnapshot(c.Request.Context(), req.RunID, req.Label)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "SNAPSHOT_FAILED"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// HandleListSnapshots handles GET /v1/seam/snapshots.
//
// Query Parameters:
//
//	project_root: The analyzed project root (required)
//	limit: Maximum snapshots, newest first (optional)
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	snapshots := h.service.Snapshots()
	if snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "persistence is disabled",
			Code:  "PERSISTENCE_DISABLED",
		})
		return
	}
	projectRoot := c.Query("project_root")
	if projectRoot == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "project_root parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}
	metas, err := snapshots.List(c.Request.Context(), graph.ProjectHash(projectRoot), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LIST_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": metas})
}

// HandleDeleteSnapshot handles DELETE /v1/seam/snapshots/:id.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	snapshots := h.service.Snapshots()
	if snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "persistence is disabled",
			Code:  "PERSISTENCE_DISABLED",
		})
		return
	}
	if err := snapshots.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleLedger handles GET /v1/seam/ledger.
func (h *Handlers) HandleLedger(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"applied": h.service.AppliedLedger()})
}

// HandleHealth handles GET /v1/seam/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/seam/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// lookupRun resolves the :id path parameter, writing the error response
// itself on a miss. "latest" resolves to the most recent run.
func (h *Handlers) lookupRun(c *gin.Context) (*pipeline.RunResult, bool) {
	runID := c.Param("id")
	var result *pipeline.RunResult
	var ok bool
	if runID == "latest" {
		result, ok = h.service.LatestRun()
	} else {
		result, ok = h.service.GetRun(runID)
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "run " + runID + " not found",
			Code:  "NOT_FOUND",
		})
		return nil, false
	}
	return result, true
}
