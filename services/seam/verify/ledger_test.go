// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/seamkit/seamkit/services/seam/plan"
)

func redirectPlan(id string, generation uint64, sites ...string) *plan.Plan {
	p := &plan.Plan{ID: id, Generation: generation}
	for _, s := range sites {
		p.Edits = append(p.Edits, plan.Edit{
			Op: plan.RedirectCallSite, CallSiteID: s, NewTargetID: "m.target",
		})
	}
	return p
}

func TestLedgerRejectsOverlappingPlans(t *testing.T) {
	l, err := NewLedger()
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}

	if v, err := l.MarkApplied(redirectPlan("p1", 1, "site.a", "site.b")); err != nil || v != nil {
		t.Fatalf("first MarkApplied: violation=%v err=%v, want clean apply", v, err)
	}

	// Second plan shares site.b with the first: whole plan rejected.
	v, err := l.MarkApplied(redirectPlan("p2", 1, "site.b", "site.c"))
	if err != nil {
		t.Fatalf("second MarkApplied error = %v", err)
	}
	if v == nil {
		t.Fatal("overlapping plan was admitted, want ledger-overlap violation")
	}
	if v.Check != CheckLedgerOverlap || v.NodeID != "site.b" {
		t.Errorf("violation = %+v, want ledger-overlap at site.b", v)
	}

	// Rejection left the ledger unchanged: site.c is still free.
	if v, err := l.MarkApplied(redirectPlan("p3", 1, "site.c")); err != nil || v != nil {
		t.Errorf("site.c apply after rejection: violation=%v err=%v, want clean", v, err)
	}
	if got := l.AppliedCount(1); got != 2 {
		t.Errorf("AppliedCount(1) = %d, want 2", got)
	}
}

func TestLedgerScopesOverlapToGeneration(t *testing.T) {
	l, err := NewLedger()
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}
	if v, _ := l.MarkApplied(redirectPlan("p1", 1, "site.a")); v != nil {
		t.Fatalf("gen 1 apply rejected: %+v", v)
	}
	// The same site in a newer generation is a different graph.
	if v, _ := l.MarkApplied(redirectPlan("p2", 2, "site.a")); v != nil {
		t.Errorf("gen 2 apply rejected: %+v, overlap must be per-generation", v)
	}
}

func TestLedgerNoOpPlanAlwaysSucceeds(t *testing.T) {
	l, err := NewLedger()
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}
	if v, _ := l.MarkApplied(redirectPlan("p1", 1, "site.a")); v != nil {
		t.Fatalf("apply rejected: %+v", v)
	}
	noop := &plan.Plan{ID: "p2", Generation: 1, NoOp: true, Reason: "no-safe-edit"}
	if v, err := l.MarkApplied(noop); err != nil || v != nil {
		t.Errorf("no-op MarkApplied: violation=%v err=%v, want clean", v, err)
	}
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open error = %v", err)
	}
	defer db.Close()

	l1, err := NewLedger(WithLedgerDB(db))
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}
	if v, err := l1.MarkApplied(redirectPlan("p1", 1, "site.a")); err != nil || v != nil {
		t.Fatalf("MarkApplied: violation=%v err=%v", v, err)
	}

	// A fresh ledger over the same store reloads the record and keeps
	// enforcing the overlap rule.
	l2, err := NewLedger(WithLedgerDB(db))
	if err != nil {
		t.Fatalf("NewLedger(reload) error = %v", err)
	}
	if got := l2.AppliedCount(1); got != 1 {
		t.Fatalf("reloaded AppliedCount(1) = %d, want 1", got)
	}
	v, err := l2.MarkApplied(redirectPlan("p2", 1, "site.a"))
	if err != nil {
		t.Fatalf("MarkApplied after reload error = %v", err)
	}
	if v == nil || v.Check != CheckLedgerOverlap {
		t.Errorf("violation = %+v, want ledger-overlap from the reloaded record", v)
	}

	records := l2.Applied()
	if len(records) != 1 || records[0].PlanID != "p1" {
		t.Errorf("Applied() = %v, want the single persisted record for p1", records)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	l := NewLifecycle()
	if l.State() != StateDiscovered {
		t.Fatalf("initial state = %s, want discovered", l.State())
	}

	steps := []State{StatePlanned, StateVerified, StateApplied}
	for _, s := range steps {
		if err := l.Advance(s); err != nil {
			t.Fatalf("Advance(%s) error = %v", s, err)
		}
	}
	if !l.Terminal() {
		t.Error("Terminal() = false after applied")
	}
	if err := l.Advance(StateRejected); err == nil {
		t.Error("Advance out of a terminal state succeeded")
	}
}

func TestLifecycleRejectsSkippedStage(t *testing.T) {
	l := NewLifecycle()
	if err := l.Advance(StateVerified); err == nil {
		t.Error("Advance(discovered -> verified) succeeded, want stage-skip rejection")
	}

	// Rejection is reachable from planned, not from discovered.
	if err := l.Advance(StateRejected); err == nil {
		t.Error("Advance(discovered -> rejected) succeeded, want error")
	}
	if err := l.Advance(StatePlanned); err != nil {
		t.Fatalf("Advance(planned) error = %v", err)
	}
	if err := l.Advance(StateRejected); err != nil {
		t.Errorf("Advance(planned -> rejected) error = %v", err)
	}
	if !l.Terminal() {
		t.Error("Terminal() = false after rejected")
	}
}
