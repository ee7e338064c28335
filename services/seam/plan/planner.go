// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package plan turns classified opportunities into ordered, reversible edit
// plans without executing them.
//
// One opportunity maps to exactly one strategy, chosen by its PatternKind.
// A plan is immutable once verified; applying its edits in order must not
// change any existing edge's runtime target for callers outside the
// rewritten type.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/seamkit/seamkit/services/seam/classify"
	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/unit"
)

// EditOp is one edit primitive.
type EditOp int

const (
	// AddParameter adds a constructor parameter.
	AddParameter EditOp = iota

	// InsertOverridableMethod inserts a method subclasses can override.
	InsertOverridableMethod

	// ExtractProtocol introduces a protocol capturing a method subset.
	ExtractProtocol

	// AddSetter adds a setter superseding an instance variable.
	AddSetter

	// RedirectCallSite points an existing call site at a new target.
	RedirectCallSite
)

// String returns the string representation of the EditOp.
func (op EditOp) String() string {
	switch op {
	case AddParameter:
		return "add_parameter"
	case InsertOverridableMethod:
		return "insert_overridable_method"
	case ExtractProtocol:
		return "extract_protocol"
	case AddSetter:
		return "add_setter"
	case RedirectCallSite:
		return "redirect_call_site"
	default:
		return "unknown"
	}
}

// Edit is one reversible edit primitive.
type Edit struct {
	Op EditOp `json:"op"`

	// OpName is the human-readable op, kept for serialization.
	OpName string `json:"op_name"`

	// TargetID is the node the edit applies to: the constructor for
	// AddParameter, the declaring type for InsertOverridableMethod and
	// ExtractProtocol, the call-site node for RedirectCallSite.
	TargetID string `json:"target_id"`

	// CallSiteID identifies the rewritten call site for RedirectCallSite.
	CallSiteID string `json:"call_site_id,omitempty"`

	// NewTargetID is the redirect destination or forwarded callee.
	NewTargetID string `json:"new_target_id,omitempty"`

	// ParamName and ParamTypeRef describe an added parameter.
	ParamName    string `json:"param_name,omitempty"`
	ParamTypeRef string `json:"param_type_ref,omitempty"`

	// MethodName names an inserted method or extracted protocol.
	MethodName string `json:"method_name,omitempty"`

	// Methods lists the method node IDs an ExtractProtocol captures.
	Methods []string `json:"methods,omitempty"`

	// DefaultFallback marks redirects that supply a default-constructing
	// fallback argument, preserving behavior at untouched call sites.
	DefaultFallback bool `json:"default_fallback,omitempty"`

	Location unit.Location `json:"location"`
}

// Plan is an ordered, reversible edit sequence resolving one opportunity.
type Plan struct {
	// ID is deterministic over the opportunity and edit list.
	ID string `json:"id"`

	// OpportunityID references the finding this plan resolves.
	OpportunityID string `json:"opportunity_id"`

	Kind classify.PatternKind `json:"kind"`

	// Strategy is the dependency-breaking technique applied.
	Strategy string `json:"strategy"`

	Edits []Edit `json:"edits"`

	// NoOp marks a plan degraded because no safe edit exists. Its Reason
	// explains why; a no-op plan is recorded, never partially applied.
	NoOp   bool   `json:"no_op,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Generation ties the plan to one graph snapshot.
	Generation uint64 `json:"generation"`
}

// Strategy names, one per PatternKind.
const (
	StrategyParameterizeConstructor = "Parameterize Constructor"
	StrategyReplaceGlobalWithGetter = "Replace Global Reference with Getter"
	StrategyAdaptParameter          = "Adapt Parameter / Extract Protocol"
	StrategyExtractOverrideFactory  = "Extract and Override Factory Method"
	StrategyInstanceDelegator       = "Instance Delegator"
)

// PlanningError is an opportunity-local planning failure. It is recorded
// and skipped; it never aborts a run.
type PlanningError struct {
	OpportunityID string
	Reason        string
}

// Planning failure reasons.
const (
	// ReasonAmbiguousTarget means more than one equally-ranked strategy
	// target applies and cannot be disambiguated without user input.
	ReasonAmbiguousTarget = "ambiguous-target"

	// ReasonNoSafeEdit means every call-site redirect would cross the
	// analyzed module boundary.
	ReasonNoSafeEdit = "no-safe-edit"
)

// Error implements the error interface.
func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning opportunity %s: %s", e.OpportunityID, e.Reason)
}

// Planner maps opportunities to edit plans.
//
// Thread Safety:
//
//	Planner is stateless; Plan is a pure function over the frozen graph
//	and safe to call concurrently.
type Planner struct{}

// NewPlanner creates a Planner.
func NewPlanner() *Planner { return &Planner{} }

// Plan produces the edit plan for one opportunity.
//
// Description:
//
//	Chooses the single strategy mapped to the opportunity's kind and emits
//	its ordered edits. Ambiguity that user input must resolve surfaces as
//	a PlanningError("ambiguous-target"). When every call-site rewrite
//	would touch a site outside the analyzed unit set, the plan degrades
//	to a recorded no-op instead of a partial apply.
//
// Inputs:
//
//	opp - The opportunity to resolve. Must not be nil.
//	g - The frozen graph snapshot the opportunity was classified on.
//
// Outputs:
//
//	*Plan - The plan, possibly a no-op with its reason recorded.
//	error - *PlanningError for opportunity-local failures, or a plain
//	error for misuse (nil/stale inputs).
func (p *Planner) Plan(opp *classify.Opportunity, g *graph.Graph) (*Plan, error) {
	if opp == nil {
		return nil, fmt.Errorf("opportunity must not be nil")
	}
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	if opp.Generation != g.Generation() {
		return nil, fmt.Errorf("opportunity generation %d does not match graph generation %d",
			opp.Generation, g.Generation())
	}

	var (
		strategy string
		edits    []Edit
		err      error
	)
	switch opp.Kind {
	case classify.HiddenDependency:
		strategy = StrategyParameterizeConstructor
		edits, err = p.planParameterizeConstructor(opp, g)
	case classify.GlobalSingleton:
		strategy = StrategyReplaceGlobalWithGetter
		edits, err = p.planReplaceGlobal(opp, g)
	case classify.OnionParameter:
		strategy = StrategyAdaptParameter
		edits, err = p.planAdaptParameter(opp, g)
	case classify.IrritatingParameter:
		strategy = StrategyExtractOverrideFactory
		edits, err = p.planExtractFactory(opp, g)
	case classify.NakedStaticCall:
		strategy = StrategyInstanceDelegator
		edits, err = p.planInstanceDelegator(opp, g)
	default:
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: fmt.Sprintf("unmapped kind %s", opp.Kind)}
	}
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		OpportunityID: opp.ID,
		Kind:          opp.Kind,
		Strategy:      strategy,
		Edits:         edits,
		Generation:    opp.Generation,
	}

	// Module-boundary safety: if any redirect touches an external call
	// site, degrade the whole plan. A partial apply is never acceptable.
	if crossesModuleBoundary(plan, g) {
		plan.Edits = nil
		plan.NoOp = true
		plan.Reason = ReasonNoSafeEdit
	}

	plan.ID = planID(plan)
	return plan, nil
}

// planParameterizeConstructor handles HiddenDependency.
//
// The constructor gains a parameter for the hidden dependency, generalized
// to a conformed protocol when exactly one covers the methods actually
// called on it. Every existing call site is redirected to a form supplying
// a default-constructing fallback, so external behavior is unchanged.
func (p *Planner) planParameterizeConstructor(opp *classify.Opportunity, g *graph.Graph) ([]Edit, error) {
	ctorEdge := opp.Edges[0]
	dep, ok := g.GetNode(ctorEdge.ToID)
	if !ok {
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: fmt.Sprintf("dependency %s vanished", ctorEdge.ToID)}
	}

	paramType, err := generalizedParamType(opp, g, dep)
	if err != nil {
		return nil, err
	}

	edits := []Edit{{
		Op:           AddParameter,
		OpName:       AddParameter.String(),
		TargetID:     opp.ConstructorID,
		ParamName:    lowerFirst(dep.Name),
		ParamTypeRef: paramType,
		Location:     ctorEdge.Location,
	}}
	for _, call := range g.InEdges(opp.ConstructorID, graph.EdgeCalls) {
		edits = append(edits, Edit{
			Op:              RedirectCallSite,
			OpName:          RedirectCallSite.String(),
			TargetID:        call.SiteID,
			CallSiteID:      call.SiteID,
			NewTargetID:     opp.ConstructorID,
			DefaultFallback: true,
			Location:        call.Location,
		})
	}
	return edits, nil
}

// planReplaceGlobal handles GlobalSingleton.
func (p *Planner) planReplaceGlobal(opp *classify.Opportunity, g *graph.Graph) ([]Edit, error) {
	globalEdge := opp.Edges[0]
	global, ok := g.GetNode(globalEdge.ToID)
	if !ok {
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: fmt.Sprintf("global accessor %s vanished", globalEdge.ToID)}
	}
	owner := declaringTypeOf(g, opp.ConstructorID)

	getterName := "get" + upperFirst(global.Name)
	edits := []Edit{{
		Op:          InsertOverridableMethod,
		OpName:      InsertOverridableMethod.String(),
		TargetID:    owner,
		NewTargetID: global.ID,
		MethodName:  getterName,
		Location:    globalEdge.Location,
	}, {
		Op:          RedirectCallSite,
		OpName:      RedirectCallSite.String(),
		TargetID:    globalEdge.SiteID,
		CallSiteID:  globalEdge.SiteID,
		NewTargetID: getterMethodID(owner, getterName),
		Location:    globalEdge.Location,
	}}
	return edits, nil
}

// planAdaptParameter handles OnionParameter.
//
// The extracted protocol captures only the methods the outer constructor
// actually calls on the deep argument, not the argument's full surface.
func (p *Planner) planAdaptParameter(opp *classify.Opportunity, g *graph.Graph) ([]Edit, error) {
	argEdge := opp.Edges[0]
	argType, ok := g.GetNode(argEdge.ToID)
	if !ok {
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: fmt.Sprintf("argument type %s vanished", argEdge.ToID)}
	}

	var captured []string
	for _, call := range g.OutEdges(opp.ConstructorID, graph.EdgeCalls) {
		callee, ok := g.GetNode(call.ToID)
		if ok && callee.DeclaringTypeID == argType.ID {
			captured = append(captured, callee.ID)
		}
	}
	sort.Strings(captured)

	return []Edit{{
		Op:         ExtractProtocol,
		OpName:     ExtractProtocol.String(),
		TargetID:   argType.ID,
		MethodName: argType.Name + "Port",
		Methods:    captured,
		Location:   argEdge.Location,
	}}, nil
}

// planExtractFactory handles IrritatingParameter.
//
// Ambiguity check: if the constructed type exposes more than one
// constructor of identical arity, the factory cannot pick its wrapped
// constructor without user input.
func (p *Planner) planExtractFactory(opp *classify.Opportunity, g *graph.Graph) ([]Edit, error) {
	ctorEdge := opp.Edges[0]
	dep, ok := g.GetNode(ctorEdge.ToID)
	if !ok {
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: fmt.Sprintf("dependency %s vanished", ctorEdge.ToID)}
	}
	if hasAmbiguousConstructors(g, dep.ID) {
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: ReasonAmbiguousTarget}
	}
	owner := declaringTypeOf(g, opp.ConstructorID)

	factoryName := "create" + upperFirst(dep.Name)
	return []Edit{{
		Op:          InsertOverridableMethod,
		OpName:      InsertOverridableMethod.String(),
		TargetID:    owner,
		NewTargetID: dep.ID,
		MethodName:  factoryName,
		Location:    ctorEdge.Location,
	}, {
		Op:          RedirectCallSite,
		OpName:      RedirectCallSite.String(),
		TargetID:    ctorEdge.SiteID,
		CallSiteID:  ctorEdge.SiteID,
		NewTargetID: getterMethodID(owner, factoryName),
		Location:    ctorEdge.Location,
	}}, nil
}

// planInstanceDelegator handles NakedStaticCall.
func (p *Planner) planInstanceDelegator(opp *classify.Opportunity, g *graph.Graph) ([]Edit, error) {
	callEdge := opp.Edges[0]
	callee, ok := g.GetNode(callEdge.ToID)
	if !ok {
		return nil, &PlanningError{OpportunityID: opp.ID, Reason: fmt.Sprintf("static callee %s vanished", callEdge.ToID)}
	}
	owner := declaringTypeOf(g, opp.ConstructorID)

	delegatorName := "do" + upperFirst(callee.Name)
	return []Edit{{
		Op:          InsertOverridableMethod,
		OpName:      InsertOverridableMethod.String(),
		TargetID:    owner,
		NewTargetID: callee.ID,
		MethodName:  delegatorName,
		Location:    callEdge.Location,
	}, {
		Op:          RedirectCallSite,
		OpName:      RedirectCallSite.String(),
		TargetID:    callEdge.SiteID,
		CallSiteID:  callEdge.SiteID,
		NewTargetID: getterMethodID(owner, delegatorName),
		Location:    callEdge.Location,
	}}, nil
}

// generalizedParamType picks the protocol type for an added parameter when
// exactly one conformed protocol covers the methods the constructor's type
// actually calls on the dependency; otherwise the concrete type stands.
// More than one covering protocol is an ambiguity the user must resolve.
func generalizedParamType(opp *classify.Opportunity, g *graph.Graph, dep *graph.Node) (string, error) {
	called := map[string]bool{} // method names invoked on dep
	for _, call := range g.OutEdges(opp.ConstructorID, graph.EdgeCalls) {
		if callee, ok := g.GetNode(call.ToID); ok && callee.DeclaringTypeID == dep.ID {
			called[callee.Name] = true
		}
	}
	if len(called) == 0 {
		return dep.ID, nil
	}

	var covering []string
	for _, e := range g.OutEdges(dep.ID, graph.EdgeConformsTo) {
		proto, ok := g.GetNode(e.ToID)
		if !ok {
			continue
		}
		names := map[string]bool{}
		for _, m := range g.MethodsOf(proto.ID) {
			names[m.Name] = true
		}
		covers := true
		for name := range called {
			if !names[name] {
				covers = false
				break
			}
		}
		if covers {
			covering = append(covering, proto.ID)
		}
	}
	switch len(covering) {
	case 0:
		return dep.ID, nil
	case 1:
		return covering[0], nil
	default:
		return "", &PlanningError{OpportunityID: opp.ID, Reason: ReasonAmbiguousTarget}
	}
}

// crossesModuleBoundary reports whether every redirect in the plan would
// rewrite a call site declared in an external unit. One rewritable internal
// site keeps the plan live; zero means no safe edit exists.
func crossesModuleBoundary(p *Plan, g *graph.Graph) bool {
	hasRedirect := false
	for _, e := range p.Edits {
		if e.Op != RedirectCallSite {
			continue
		}
		hasRedirect = true
		site, ok := g.GetNode(e.CallSiteID)
		if !ok || !site.External {
			return false // at least one rewritable site inside the module
		}
	}
	if !hasRedirect {
		return false
	}
	return true
}

// hasAmbiguousConstructors reports whether a type has two constructors of
// identical arity.
func hasAmbiguousConstructors(g *graph.Graph, typeID string) bool {
	seen := map[int]bool{}
	for _, ctor := range g.ConstructorsOf(typeID) {
		arity := len(ctor.Params)
		if seen[arity] {
			return true
		}
		seen[arity] = true
	}
	return false
}

// declaringTypeOf returns a method's declaring type ID, or the method's own
// ID for free functions (the edit then targets the function's unit).
func declaringTypeOf(g *graph.Graph, methodID string) string {
	if n, ok := g.GetNode(methodID); ok && n.DeclaringTypeID != "" {
		return n.DeclaringTypeID
	}
	return methodID
}

// getterMethodID derives the node ID a newly inserted method will get.
// Kept stable so verification and patch emission agree on the target.
func getterMethodID(ownerID, methodName string) string {
	return ownerID + "#" + methodName
}

// planID computes the deterministic plan identifier.
func planID(p *Plan) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:%v:%s", p.OpportunityID, p.Strategy, p.NoOp, p.Reason)
	for _, e := range p.Edits {
		fmt.Fprintf(h, "|%d:%s:%s:%s", e.Op, e.TargetID, e.CallSiteID, e.NewTargetID)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// lowerFirst lowercases the first rune of a name. Names starting with a
// digit, underscore, or non-letter rune pass through unchanged.
func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// upperFirst uppercases the first rune of a name.
func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
