// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"testing"

	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/plan"
	"github.com/seamkit/seamkit/services/seam/unit"
)

func testGraph(t *testing.T, nodes []*graph.Node, edges []graph.Edge) *graph.Graph {
	t.Helper()
	g := graph.NewGraph("")
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) error = %v", n.ID, err)
		}
	}
	for _, e := range edges {
		if _, err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s->%s) error = %v", e.FromID, e.ToID, err)
		}
	}
	g.Freeze()
	return g
}

func planOf(g *graph.Graph, id string, edits ...plan.Edit) *plan.Plan {
	return &plan.Plan{ID: id, Edits: edits, Generation: g.Generation()}
}

// redirectGraph holds one constructor, one internal caller site, and one
// existing method to redirect at.
func redirectGraph(t *testing.T) *graph.Graph {
	return testGraph(t,
		[]*graph.Node{
			{ID: "t.Service", Kind: unit.KindType, Name: "Service"},
			{ID: "m.Service.init", Kind: unit.KindMethod, Name: "init",
				DeclaringTypeID: "t.Service", Constructor: true,
				Params: []unit.Param{{Name: "cfg"}}},
			{ID: "site.boot", Kind: unit.KindCallSite, Name: "site.boot"},
		},
		nil,
	)
}

func TestVerifyPassesValidRedirect(t *testing.T) {
	g := redirectGraph(t)
	p := planOf(g, "p1", plan.Edit{
		Op: plan.RedirectCallSite, CallSiteID: "site.boot", NewTargetID: "m.Service.init",
	})

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Passed {
		t.Fatalf("Passed = false, violations = %v", result.Violations)
	}
}

func TestVerifyRejectsMissingRedirectTarget(t *testing.T) {
	g := redirectGraph(t)
	p := planOf(g, "p1", plan.Edit{
		Op: plan.RedirectCallSite, CallSiteID: "site.boot", NewTargetID: "m.Gone.method",
	})

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Passed {
		t.Fatal("Passed = true for a redirect to a nonexistent target")
	}
	if result.Violations[0].Check != CheckRedirectTargets {
		t.Errorf("check = %s, want %s", result.Violations[0].Check, CheckRedirectTargets)
	}
}

func TestVerifyAcceptsTargetInsertedBySamePlan(t *testing.T) {
	g := redirectGraph(t)
	p := planOf(g, "p1",
		plan.Edit{Op: plan.InsertOverridableMethod, TargetID: "t.Service", MethodName: "getEnv"},
		plan.Edit{Op: plan.RedirectCallSite, CallSiteID: "site.boot", NewTargetID: "t.Service#getEnv"},
	)

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Passed {
		t.Fatalf("Passed = false for a target the same plan inserts: %v", result.Violations)
	}
}

func TestVerifyRejectsRedirectWithoutFallback(t *testing.T) {
	// The plan adds a parameter to the redirect target but the redirect
	// supplies no default, changing the caller contract.
	g := redirectGraph(t)
	p := planOf(g, "p1",
		plan.Edit{Op: plan.AddParameter, TargetID: "m.Service.init", ParamName: "mailer"},
		plan.Edit{Op: plan.RedirectCallSite, CallSiteID: "site.boot", NewTargetID: "m.Service.init"},
	)

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Passed {
		t.Fatal("Passed = true for a fallback-less redirect at a widened constructor")
	}

	// The same plan with a default fallback passes.
	p2 := planOf(g, "p2",
		plan.Edit{Op: plan.AddParameter, TargetID: "m.Service.init", ParamName: "mailer"},
		plan.Edit{Op: plan.RedirectCallSite, CallSiteID: "site.boot",
			NewTargetID: "m.Service.init", DefaultFallback: true},
	)
	result2, err := NewVerifier(Options{}).Verify(p2, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result2.Passed {
		t.Fatalf("Passed = false despite fallback: %v", result2.Violations)
	}
}

func TestVerifyRejectsAmbiguousOverload(t *testing.T) {
	// A sibling overload already exists at the post-edit arity.
	g := testGraph(t,
		[]*graph.Node{
			{ID: "t.Service", Kind: unit.KindType, Name: "Service"},
			{ID: "m.Service.init", Kind: unit.KindMethod, Name: "init",
				DeclaringTypeID: "t.Service", Constructor: true,
				Params: []unit.Param{{Name: "cfg"}}},
			{ID: "m.Service.init2", Kind: unit.KindMethod, Name: "init",
				DeclaringTypeID: "t.Service", Constructor: true,
				Params: []unit.Param{{Name: "cfg"}, {Name: "mailer"}}},
		},
		nil,
	)
	p := planOf(g, "p1", plan.Edit{Op: plan.AddParameter, TargetID: "m.Service.init", ParamName: "mailer"})

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Passed {
		t.Fatal("Passed = true despite colliding overload arity")
	}
	if result.Violations[0].Check != CheckAmbiguousOverload {
		t.Errorf("check = %s, want %s", result.Violations[0].Check, CheckAmbiguousOverload)
	}
}

func TestVerifyRejectsIncompleteImplementer(t *testing.T) {
	// t.Partial conforms to t.Deep but lacks the captured method.
	g := testGraph(t,
		[]*graph.Node{
			{ID: "t.Deep", Kind: unit.KindType, Name: "Deep"},
			{ID: "m.Deep.read", Kind: unit.KindMethod, Name: "read", DeclaringTypeID: "t.Deep"},
			{ID: "t.Partial", Kind: unit.KindType, Name: "Partial"},
			{ID: "m.Partial.other", Kind: unit.KindMethod, Name: "other", DeclaringTypeID: "t.Partial"},
		},
		[]graph.Edge{
			{FromID: "t.Partial", ToID: "t.Deep", Kind: graph.EdgeConformsTo},
		},
	)
	p := planOf(g, "p1", plan.Edit{
		Op: plan.ExtractProtocol, TargetID: "t.Deep",
		MethodName: "DeepPort", Methods: []string{"m.Deep.read"},
	})

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Passed {
		t.Fatal("Passed = true despite an implementer lacking a captured method")
	}
	v := result.Violations[0]
	if v.Check != CheckProtocolImplements || v.NodeID != "t.Partial" {
		t.Errorf("violation = %+v, want protocol-implementers on t.Partial", v)
	}
}

func TestVerifyNoOpPassesTrivially(t *testing.T) {
	g := redirectGraph(t)
	p := &plan.Plan{ID: "p1", NoOp: true, Reason: "no-safe-edit", Generation: g.Generation()}

	result, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Passed || len(result.Violations) != 0 {
		t.Errorf("no-op plan: passed=%v violations=%v, want trivial pass", result.Passed, result.Violations)
	}
}

func TestVerifyCollectAllGathersEveryViolation(t *testing.T) {
	g := redirectGraph(t)
	p := planOf(g, "p1",
		plan.Edit{Op: plan.RedirectCallSite, CallSiteID: "site.missing", NewTargetID: "m.Service.init"},
		plan.Edit{Op: plan.AddParameter, TargetID: "m.Gone.init", ParamName: "x"},
	)

	short, err := NewVerifier(Options{}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(short.Violations) != 1 {
		t.Errorf("short-circuit violations = %d, want 1", len(short.Violations))
	}

	full, err := NewVerifier(Options{CollectAll: true}).Verify(p, g)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(full.Violations) != 2 {
		t.Errorf("CollectAll violations = %d, want 2 (%v)", len(full.Violations), full.Violations)
	}
}

func TestVerifyRejectsGenerationMismatch(t *testing.T) {
	g := redirectGraph(t)
	p := &plan.Plan{ID: "p1", Generation: g.Generation() + 1}
	if _, err := NewVerifier(Options{}).Verify(p, g); err == nil {
		t.Fatal("Verify() accepted a plan from another generation")
	}
}
