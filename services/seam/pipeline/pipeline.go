// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline chains graph construction, classification, planning,
// and verification into a single cancellable run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/seamkit/seamkit/services/seam/classify"
	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/plan"
	"github.com/seamkit/seamkit/services/seam/unit"
	"github.com/seamkit/seamkit/services/seam/verify"
)

// Stage identifies a pipeline phase for progress events.
type Stage string

const (
	StageBuild    Stage = "build"
	StageClassify Stage = "classify"
	StagePlan     Stage = "plan"
	StageVerify   Stage = "verify"
	StageDone     Stage = "done"
)

// Event is a progress notification emitted while a run executes.
type Event struct {
	RunID   string    `json:"run_id"`
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// EventFunc receives progress events. It is invoked synchronously from the
// run goroutine and must not block.
type EventFunc func(Event)

// Item is one opportunity carried through the full pipeline: the finding,
// its plan (nil when planning failed outright), the verification outcome,
// and the resulting lifecycle state.
type Item struct {
	Opportunity  *classify.Opportunity      `json:"opportunity"`
	Plan         *plan.Plan                 `json:"plan,omitempty"`
	Verification *verify.VerificationResult `json:"verification,omitempty"`
	State        string                     `json:"state"`

	// SkipReason is set when the item never reached verified: the
	// planning error reason or the first verification violation check.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Report summarizes a run in the shape operators read first.
type Report struct {
	OpportunitiesFound int            `json:"opportunities_found"`
	PlansVerified      int            `json:"plans_verified"`
	Skipped            int            `json:"skipped"`
	SkipReasons        map[string]int `json:"skip_reasons,omitempty"`
}

// String renders the one-line run summary.
func (r Report) String() string {
	return fmt.Sprintf("%d opportunities found, %d verified, %d skipped",
		r.OpportunitiesFound, r.PlansVerified, r.Skipped)
}

// RunResult is everything a completed (or cancelled) run produced.
type RunResult struct {
	RunID      string             `json:"run_id"`
	Generation uint64             `json:"generation"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
	Build      *graph.BuildResult `json:"-"`
	Items      []Item             `json:"items"`
	Report     Report             `json:"report"`

	// Incomplete mirrors the build result: some units failed resolution
	// and the analysis ran on a partial graph.
	Incomplete bool `json:"incomplete"`
}

// Options configures a Runner.
type Options struct {
	// Workers bounds plan/verify parallelism. Zero means GOMAXPROCS.
	Workers int

	// CollectAll forwards to the verifier.
	CollectAll bool

	// Priority overrides the classifier's pattern precedence.
	Priority []classify.PatternKind

	// BuilderOptions are forwarded to the graph builder.
	BuilderOptions []graph.BuilderOption

	// OnEvent, when set, receives stage progress events.
	OnEvent EventFunc

	Logger *slog.Logger
}

// Runner executes analysis runs.
//
// Thread Safety:
//
//	Safe for concurrent Run calls; each run builds its own graph and the
//	shared ledger serializes internally.
type Runner struct {
	opts       Options
	builder    *graph.Builder
	classifier *classify.Classifier
	planner    *plan.Planner
	verifier   *verify.Verifier
	ledger     *verify.Ledger
	logger     *slog.Logger
}

// NewRunner wires the pipeline stages together. The ledger may be nil when
// the caller never applies plans.
func NewRunner(opts Options, ledger *verify.Ledger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var classifierOpts []classify.Option
	if len(opts.Priority) > 0 {
		classifierOpts = append(classifierOpts, classify.WithPriority(opts.Priority))
	}
	return &Runner{
		opts:       opts,
		builder:    graph.NewBuilder(opts.BuilderOptions...),
		classifier: classify.New(classifierOpts...),
		planner:    plan.NewPlanner(),
		verifier:   verify.NewVerifier(verify.Options{CollectAll: opts.CollectAll}),
		ledger:     ledger,
		logger:     logger,
	}
}

// Run executes the full pipeline over the given units.
//
// Description:
//
//	Builds the graph (parallel fragments, serial resolution), classifies
//	every constructor, then plans and verifies each opportunity
//	concurrently before sorting items back into opportunity order so two
//	runs over identical input produce byte-identical results. Unit-level
//	resolution failures degrade the run to a partial graph instead of
//	failing it; only context cancellation and internal errors abort.
//
// Outputs:
//
//	*RunResult - Items plus the run report. Nil on error.
//	error - Context cancellation or an internal pipeline failure.
func (r *Runner) Run(ctx context.Context, units []*unit.AbstractUnit) (*RunResult, error) {
	runID := uuid.NewString()
	started := time.Now()

	ctx, span := startRunSpan(ctx, runID, len(units))
	defer span.End()

	result := &RunResult{RunID: runID, StartedAt: started}

	r.emit(runID, StageBuild, fmt.Sprintf("building graph from %d units", len(units)))
	build, err := r.builder.Build(ctx, units)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph build failed")
		recordRunMetrics("error", time.Since(started), 0, 0)
		return nil, fmt.Errorf("graph build failed: %w", err)
	}
	result.Build = build
	result.Generation = build.Graph.Generation()
	result.Incomplete = build.Incomplete || len(build.UnitErrors) > 0

	r.emit(runID, StageClassify, "classifying constructors")
	opportunities, err := r.classifier.Classify(build.Graph)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		recordRunMetrics("error", time.Since(started), 0, 0)
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	r.emit(runID, StagePlan, fmt.Sprintf("planning %d opportunities", len(opportunities)))
	items, err := r.planAndVerify(ctx, build.Graph, opportunities)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan/verify failed")
		recordRunMetrics("error", time.Since(started), len(opportunities), 0)
		return nil, err
	}
	result.Items = items
	result.Report = summarize(items)
	result.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int("seam.run.opportunities", result.Report.OpportunitiesFound),
		attribute.Int("seam.run.verified", result.Report.PlansVerified),
		attribute.Bool("seam.run.incomplete", result.Incomplete),
	)
	recordRunMetrics("ok", result.Duration, result.Report.OpportunitiesFound, result.Report.PlansVerified)

	r.emit(runID, StageDone, result.Report.String())
	r.logger.Info("Analysis run complete",
		"runID", runID,
		"generation", result.Generation,
		"report", result.Report.String(),
		"incomplete", result.Incomplete,
		"duration", result.Duration)
	return result, nil
}

// Apply marks a verified item's plan as applied in the ledger, advancing
// its state. An overlap with a previously applied plan rejects it.
func (r *Runner) Apply(item *Item) error {
	if r.ledger == nil {
		return errors.New("runner has no ledger attached")
	}
	if item.State != verify.StateVerified.String() {
		return fmt.Errorf("cannot apply plan in state %q", item.State)
	}
	violation, err := r.ledger.MarkApplied(item.Plan)
	if err != nil {
		return err
	}
	if violation != nil {
		item.State = verify.StateRejected.String()
		item.SkipReason = violation.Check
		if item.Verification != nil {
			item.Verification.Passed = false
			item.Verification.Violations = append(item.Verification.Violations, *violation)
		}
		return fmt.Errorf("plan %s rejected: %s", item.Plan.ID, violation.Reason)
	}
	item.State = verify.StateApplied.String()
	return nil
}

// planAndVerify fans opportunities out over the worker pool and restores
// deterministic ordering afterwards.
func (r *Runner) planAndVerify(ctx context.Context, g *graph.Graph, opportunities []*classify.Opportunity) ([]Item, error) {
	items := make([]Item, len(opportunities))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Workers)

	for i, opp := range opportunities {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items[i] = r.processOne(opp, g)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("plan/verify stage failed: %w", err)
	}

	// Workers fill slots in input order already; the sort is belt and
	// braces against future reordering of the classify output.
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Opportunity.ID < items[b].Opportunity.ID
	})
	return items, nil
}

// processOne carries a single opportunity through plan and verify.
func (r *Runner) processOne(opp *classify.Opportunity, g *graph.Graph) Item {
	item := Item{Opportunity: opp}
	lc := verify.NewLifecycle()

	planned, err := r.planner.Plan(opp, g)
	if err != nil {
		var perr *plan.PlanningError
		if errors.As(err, &perr) {
			item.SkipReason = perr.Reason
		} else {
			item.SkipReason = "planning-error"
		}
		item.State = verify.StateDiscovered.String()
		return item
	}
	item.Plan = planned
	_ = lc.Advance(verify.StatePlanned)

	verdict, err := r.verifier.Verify(planned, g)
	if err != nil {
		item.SkipReason = "verification-error"
		item.State = lc.State().String()
		return item
	}
	item.Verification = verdict

	if verdict.Passed {
		_ = lc.Advance(verify.StateVerified)
	} else {
		_ = lc.Advance(verify.StateRejected)
		item.SkipReason = verdict.Violations[0].Check
	}
	if planned.NoOp && item.SkipReason == "" {
		item.SkipReason = planned.Reason
	}
	item.State = lc.State().String()
	return item
}

func (r *Runner) emit(runID string, stage Stage, message string) {
	if r.opts.OnEvent == nil {
		return
	}
	r.opts.OnEvent(Event{RunID: runID, Stage: stage, Message: message, At: time.Now()})
}

// summarize folds items into the run report. A no-op plan that verified
// trivially still counts as skipped: it changes nothing.
func summarize(items []Item) Report {
	report := Report{
		OpportunitiesFound: len(items),
		SkipReasons:        make(map[string]int),
	}
	for _, item := range items {
		if item.State == verify.StateVerified.String() && (item.Plan == nil || !item.Plan.NoOp) {
			report.PlansVerified++
			continue
		}
		report.Skipped++
		reason := item.SkipReason
		if reason == "" {
			reason = "unknown"
		}
		report.SkipReasons[reason]++
	}
	if len(report.SkipReasons) == 0 {
		report.SkipReasons = nil
	}
	return report
}
