// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/seamkit/seamkit/services/seam/classify"
	"github.com/seamkit/seamkit/services/seam/plan"
	"github.com/seamkit/seamkit/services/seam/unit"
	"github.com/seamkit/seamkit/services/seam/verify"
)

// hiddenDepUnits yields exactly one HiddenDependency finding: Service's
// constructor builds an impure Mailer, and App.boot calls the constructor.
func hiddenDepUnits() []*unit.AbstractUnit {
	return []*unit.AbstractUnit{
		{
			Path: "svc/service.src",
			Types: []unit.TypeDecl{{
				ID:   "t.Service",
				Name: "Service",
				Methods: []unit.MethodDecl{{
					ID:          "m.Service.init",
					Name:        "init",
					Constructor: true,
					Constructs: []unit.ConstructRef{{
						SiteID:       "site.init.1",
						TargetTypeID: "t.Mailer",
					}},
				}},
			}},
		},
		{
			Path: "mail/mailer.src",
			Types: []unit.TypeDecl{{
				ID:    "t.Mailer",
				Name:  "Mailer",
				Flags: unit.Flags{Impure: true},
			}},
		},
		{
			Path: "app/boot.src",
			FreeMethods: []unit.MethodDecl{{
				ID:   "m.App.boot",
				Name: "boot",
				Calls: []unit.CallRef{{
					SiteID:   "site.boot.1",
					TargetID: "m.Service.init",
				}},
			}},
		},
	}
}

// ambiguousUnits yields an IrritatingParameter finding whose plan fails
// with an ambiguous target: Session has two constructors of equal arity.
func ambiguousUnits() []*unit.AbstractUnit {
	return []*unit.AbstractUnit{
		{
			Path: "svc/service.src",
			Types: []unit.TypeDecl{{
				ID:   "t.Service",
				Name: "Service",
				Methods: []unit.MethodDecl{{
					ID:          "m.Service.init",
					Name:        "init",
					Constructor: true,
					Constructs: []unit.ConstructRef{{
						SiteID:       "site.init.1",
						TargetTypeID: "t.Session",
					}},
				}},
			}},
		},
		{
			Path: "auth/session.src",
			Types: []unit.TypeDecl{{
				ID:   "t.Session",
				Name: "Session",
				Methods: []unit.MethodDecl{
					{
						ID: "m.Session.init", Name: "init", Constructor: true,
						Params: []unit.Param{{Name: "token", Unresolved: true}},
					},
					{
						ID: "m.Session.initFrom", Name: "initFrom", Constructor: true,
						Params: []unit.Param{{Name: "other"}},
					},
				},
			}},
		},
	}
}

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	ledger, err := verify.NewLedger()
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}
	return NewRunner(opts, ledger)
}

func TestRunVerifiesHiddenDependency(t *testing.T) {
	r := newTestRunner(t, Options{})
	result, err := r.Run(context.Background(), hiddenDepUnits())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Incomplete {
		t.Fatal("Incomplete = true for a fully resolvable input")
	}
	if result.Report.OpportunitiesFound != 1 || result.Report.PlansVerified != 1 {
		t.Fatalf("report = %s, want 1 found / 1 verified", result.Report)
	}

	item := result.Items[0]
	if item.Opportunity.Kind != classify.HiddenDependency {
		t.Errorf("kind = %s, want hidden_dependency", item.Opportunity.Kind)
	}
	if item.State != verify.StateVerified.String() {
		t.Errorf("state = %s, want verified", item.State)
	}
	if item.Plan.Strategy != plan.StrategyParameterizeConstructor {
		t.Errorf("strategy = %q, want %q", item.Plan.Strategy, plan.StrategyParameterizeConstructor)
	}
}

func TestRunRecordsPlanningFailuresAsSkips(t *testing.T) {
	r := newTestRunner(t, Options{})
	result, err := r.Run(context.Background(), ambiguousUnits())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Report.Skipped != 1 {
		t.Fatalf("report = %s, want the ambiguous opportunity skipped", result.Report)
	}
	if got := result.Report.SkipReasons[plan.ReasonAmbiguousTarget]; got != 1 {
		t.Errorf("SkipReasons = %v, want one %q", result.Report.SkipReasons, plan.ReasonAmbiguousTarget)
	}
	if result.Items[0].State != verify.StateDiscovered.String() {
		t.Errorf("state = %s, want discovered (planning never completed)", result.Items[0].State)
	}
}

func TestRunDeterministicAcrossReruns(t *testing.T) {
	r := newTestRunner(t, Options{Workers: 4})

	first, err := r.Run(context.Background(), hiddenDepUnits())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := r.Run(context.Background(), hiddenDepUnits())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	// Generations (and therefore IDs) differ per run; everything derived
	// from the input must not.
	if first.Report.OpportunitiesFound != second.Report.OpportunitiesFound ||
		first.Report.PlansVerified != second.Report.PlansVerified ||
		first.Report.Skipped != second.Report.Skipped {
		t.Fatalf("reports differ: %s vs %s", first.Report, second.Report)
	}
	if len(first.Items) != len(second.Items) {
		t.Fatalf("item counts differ: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		a, b := first.Items[i], second.Items[i]
		if a.Opportunity.Kind != b.Opportunity.Kind ||
			a.Opportunity.ConstructorID != b.Opportunity.ConstructorID {
			t.Errorf("item %d finding differs: %v vs %v", i, a.Opportunity, b.Opportunity)
		}
		if a.State != b.State || a.SkipReason != b.SkipReason {
			t.Errorf("item %d outcome differs: %s/%s vs %s/%s", i, a.State, a.SkipReason, b.State, b.SkipReason)
		}
		if (a.Plan == nil) != (b.Plan == nil) {
			t.Errorf("item %d plan presence differs", i)
			continue
		}
		if a.Plan != nil && (a.Plan.Strategy != b.Plan.Strategy || len(a.Plan.Edits) != len(b.Plan.Edits)) {
			t.Errorf("item %d plan differs: %s/%d vs %s/%d",
				i, a.Plan.Strategy, len(a.Plan.Edits), b.Plan.Strategy, len(b.Plan.Edits))
		}
	}
}

func TestRunDegradesOnUnresolvedUnit(t *testing.T) {
	units := append(hiddenDepUnits(), &unit.AbstractUnit{
		Path: "broken/broken.src",
		FreeMethods: []unit.MethodDecl{{
			ID: "m.broken", Name: "broken", Constructor: true,
			Constructs: []unit.ConstructRef{{
				SiteID:       "site.broken.1",
				TargetTypeID: "t.DoesNotExist",
			}},
		}},
	})

	r := newTestRunner(t, Options{})
	result, err := r.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v, want degraded success", err)
	}
	if !result.Incomplete {
		t.Error("Incomplete = false despite a degraded unit")
	}
	// The healthy finding survives the partial graph.
	if result.Report.PlansVerified != 1 {
		t.Errorf("report = %s, want the healthy plan verified", result.Report)
	}
}

func TestRunCancelledContextMarksIncomplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(t, Options{})
	result, err := r.Run(ctx, hiddenDepUnits())
	if err != nil {
		return // cancellation surfacing as an error is acceptable too
	}
	if !result.Incomplete {
		t.Error("Incomplete = false for a cancelled run")
	}
}

func TestRunEmitsStageEvents(t *testing.T) {
	var mu sync.Mutex
	var stages []Stage
	opts := Options{OnEvent: func(e Event) {
		mu.Lock()
		stages = append(stages, e.Stage)
		mu.Unlock()
	}}

	r := newTestRunner(t, opts)
	if _, err := r.Run(context.Background(), hiddenDepUnits()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Stage{StageBuild, StageClassify, StagePlan, StageDone}
	mu.Lock()
	defer mu.Unlock()
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestApplyRecordsAndRejectsOverlap(t *testing.T) {
	r := newTestRunner(t, Options{})
	result, err := r.Run(context.Background(), hiddenDepUnits())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	item := result.Items[0]
	if item.State != verify.StateVerified.String() {
		t.Fatalf("state = %s, want verified before apply", item.State)
	}

	if err := r.Apply(&item); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if item.State != verify.StateApplied.String() {
		t.Errorf("state = %s, want applied", item.State)
	}

	// Applying again from the terminal state is a misuse error.
	if err := r.Apply(&item); err == nil {
		t.Error("re-Apply of an applied item succeeded, want error")
	}

	// A second verified item over the same call sites hits the ledger.
	clone := result.Items[0]
	clone.State = verify.StateVerified.String()
	err = r.Apply(&clone)
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("overlapping Apply() error = %v, want rejection", err)
	}
	if clone.State != verify.StateRejected.String() {
		t.Errorf("state = %s, want rejected", clone.State)
	}
	if clone.SkipReason != verify.CheckLedgerOverlap {
		t.Errorf("skip reason = %s, want %s", clone.SkipReason, verify.CheckLedgerOverlap)
	}
}

func TestReportString(t *testing.T) {
	report := Report{OpportunitiesFound: 3, PlansVerified: 2, Skipped: 1}
	got := report.String()
	if !strings.Contains(got, "3 opportunities") || !strings.Contains(got, "2 verified") {
		t.Errorf("String() = %q, want counts in summary", got)
	}
}
