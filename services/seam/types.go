// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seam

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/seamkit/seamkit/services/seam/pipeline"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// AnalyzeRequest starts an analysis run.
type AnalyzeRequest struct {
	// ProjectRoot is the path the adapter loads from: a source tree for
	// gosrc, a .jsonl dump for jsonl.
	ProjectRoot string `json:"project_root" binding:"required"`

	// Adapter selects the front end. Defaults to "jsonl".
	Adapter string `json:"adapter"`

	// CollectAll makes verification report every violation.
	CollectAll bool `json:"collect_all"`
}

// AnalyzeResponse returns the completed run.
type AnalyzeResponse struct {
	RunID      string          `json:"run_id"`
	Generation uint64          `json:"generation"`
	Report     pipeline.Report `json:"report"`
	Summary    string          `json:"summary"`
	Incomplete bool            `json:"incomplete"`
	UnitErrors int             `json:"unit_errors"`
}

// OpportunityView flattens one pipeline item for listing.
type OpportunityView struct {
	OpportunityID string `json:"opportunity_id"`
	Kind          string `json:"kind"`
	ConstructorID string `json:"constructor_id"`
	Depth         int    `json:"depth,omitempty"`
	State         string `json:"state"`
	PlanID        string `json:"plan_id,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
	NoOp          bool   `json:"no_op,omitempty"`
	SkipReason    string `json:"skip_reason,omitempty"`
}

// SnapshotSaveRequest persists a run's graph.
type SnapshotSaveRequest struct {
	RunID string `json:"run_id" binding:"required"`
	Label string `json:"label"`
}

// requestIDHeader carries the caller-supplied correlation ID.
const requestIDHeader = "X-Request-ID"

// getOrCreateRequestID returns the inbound correlation ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}
