// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verify checks that a planned transformation preserves call-site
// compatibility before it is considered applicable.
package verify

import (
	"fmt"

	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/plan"
)

// Check names, in evaluation order.
const (
	CheckRedirectTargets    = "redirect-targets"
	CheckAmbiguousOverload  = "ambiguous-overload"
	CheckProtocolImplements = "protocol-implementers"

	// CheckLedgerOverlap is reported by the ledger, not the static
	// checks: two plans touching overlapping call sites cannot both be
	// marked applied.
	CheckLedgerOverlap = "ledger-overlap"
)

// Violation is one failed verification condition.
type Violation struct {
	// Check names the failed check.
	Check string `json:"check"`

	// NodeID is the violating call site, method, or type.
	NodeID string `json:"node_id,omitempty"`

	// Reason is a human-readable description.
	Reason string `json:"reason"`
}

// VerificationResult is the outcome of verifying one plan.
//
// Results are recomputed per verification pass, never persisted.
type VerificationResult struct {
	PlanID     string      `json:"plan_id"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Options configures a verification pass.
type Options struct {
	// CollectAll keeps evaluating after the first failing check, so test
	// suites can see every violation instead of just the first.
	CollectAll bool
}

// Verifier checks plans against a graph snapshot.
//
// Thread Safety:
//
//	Verifier is stateless; Verify only reads the frozen graph and is safe
//	for concurrent use. Serializing applied-state transitions is the
//	Ledger's job, not the Verifier's.
type Verifier struct {
	options Options
}

// NewVerifier creates a Verifier.
func NewVerifier(opts Options) *Verifier {
	return &Verifier{options: opts}
}

// Verify runs the check sequence against one plan.
//
// Description:
//
//	Checks run in a fixed order: (a) every RedirectCallSite target exists
//	and keeps an identical arity/contract after the edit, (b) no
//	AddParameter introduces an ambiguous overload at an existing call
//	site, (c) every concrete implementer reachable in the graph satisfies
//	an ExtractProtocol's method set. The first failing check
//	short-circuits unless CollectAll is set.
//
//	A no-op plan verifies trivially: it changes nothing, so there is
//	nothing to violate.
//
// Inputs:
//
//	p - The plan to verify. Must not be nil.
//	g - The frozen graph snapshot the plan was derived from.
//
// Outputs:
//
//	*VerificationResult - Pass/fail plus the violated call sites, if any.
//	error - Non-nil only for misuse (nil or generation-mismatched inputs).
func (v *Verifier) Verify(p *plan.Plan, g *graph.Graph) (*VerificationResult, error) {
	if p == nil {
		return nil, fmt.Errorf("plan must not be nil")
	}
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	if p.Generation != g.Generation() {
		return nil, fmt.Errorf("plan generation %d does not match graph generation %d",
			p.Generation, g.Generation())
	}

	result := &VerificationResult{PlanID: p.ID, Passed: true}
	if p.NoOp {
		return result, nil
	}

	checks := []func(*plan.Plan, *graph.Graph) []Violation{
		v.checkRedirectTargets,
		v.checkAmbiguousOverloads,
		v.checkProtocolImplementers,
	}
	for _, check := range checks {
		violations := check(p, g)
		if len(violations) == 0 {
			continue
		}
		result.Passed = false
		result.Violations = append(result.Violations, violations...)
		if !v.options.CollectAll {
			break
		}
	}
	return result, nil
}

// checkRedirectTargets verifies check (a).
//
// A redirect target is valid when it already exists in the graph or when
// the same plan inserts it. Arity is compatible when the target's formal
// parameters are covered by the original call plus any parameters the plan
// itself adds with a default fallback.
func (v *Verifier) checkRedirectTargets(p *plan.Plan, g *graph.Graph) []Violation {
	inserted := map[string]bool{}
	addedParams := map[string]int{} // method ID -> params added by this plan
	for _, e := range p.Edits {
		switch e.Op {
		case plan.InsertOverridableMethod, plan.ExtractProtocol:
			inserted[e.TargetID+"#"+e.MethodName] = true
		case plan.AddParameter:
			addedParams[e.TargetID]++
		}
	}

	var violations []Violation
	for _, e := range p.Edits {
		if e.Op != plan.RedirectCallSite {
			continue
		}
		if _, ok := g.GetNode(e.CallSiteID); !ok {
			violations = append(violations, Violation{
				Check:  CheckRedirectTargets,
				NodeID: e.CallSiteID,
				Reason: fmt.Sprintf("call site %s not in graph", e.CallSiteID),
			})
			continue
		}
		target, exists := g.GetNode(e.NewTargetID)
		if !exists {
			if inserted[e.NewTargetID] {
				continue // target is created by this very plan
			}
			violations = append(violations, Violation{
				Check:  CheckRedirectTargets,
				NodeID: e.NewTargetID,
				Reason: fmt.Sprintf("redirect target %s does not exist and is not inserted by the plan", e.NewTargetID),
			})
			continue
		}
		// Contract check: parameters the plan adds must be covered by the
		// redirect's fallback; anything else changes the caller contract.
		if added := addedParams[target.ID]; added > 0 && !e.DefaultFallback {
			violations = append(violations, Violation{
				Check:  CheckRedirectTargets,
				NodeID: e.CallSiteID,
				Reason: fmt.Sprintf("target %s gains %d parameter(s) but redirect supplies no fallback", target.ID, added),
			})
		}
	}
	return violations
}

// checkAmbiguousOverloads verifies check (b).
func (v *Verifier) checkAmbiguousOverloads(p *plan.Plan, g *graph.Graph) []Violation {
	var violations []Violation
	for _, e := range p.Edits {
		if e.Op != plan.AddParameter {
			continue
		}
		method, ok := g.GetNode(e.TargetID)
		if !ok {
			violations = append(violations, Violation{
				Check:  CheckAmbiguousOverload,
				NodeID: e.TargetID,
				Reason: fmt.Sprintf("parameterized method %s not in graph", e.TargetID),
			})
			continue
		}
		newArity := len(method.Params) + 1
		for _, sibling := range g.MethodsOf(method.DeclaringTypeID) {
			if sibling.ID == method.ID {
				continue
			}
			if sibling.Name == method.Name && len(sibling.Params) == newArity {
				violations = append(violations, Violation{
					Check:  CheckAmbiguousOverload,
					NodeID: sibling.ID,
					Reason: fmt.Sprintf("adding a parameter to %s collides with overload %s (arity %d)",
						method.ID, sibling.ID, newArity),
				})
			}
		}
	}
	return violations
}

// checkProtocolImplementers verifies check (c).
func (v *Verifier) checkProtocolImplementers(p *plan.Plan, g *graph.Graph) []Violation {
	var violations []Violation
	for _, e := range p.Edits {
		if e.Op != plan.ExtractProtocol {
			continue
		}

		required := map[string]string{} // method name -> source node ID
		for _, id := range e.Methods {
			if m, ok := g.GetNode(id); ok {
				required[m.Name] = id
			}
		}

		for _, impl := range g.Implementers(e.TargetID) {
			have := map[string]bool{}
			for _, m := range g.MethodsOf(impl.ID) {
				have[m.Name] = true
			}
			for name, srcID := range required {
				if !have[name] {
					violations = append(violations, Violation{
						Check:  CheckProtocolImplements,
						NodeID: impl.ID,
						Reason: fmt.Sprintf("implementer %s lacks %s required by extracted protocol (from %s)",
							impl.ID, name, srcID),
					})
				}
			}
		}
	}
	return violations
}
