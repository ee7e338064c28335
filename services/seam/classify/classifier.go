// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify pattern-matches graph neighborhoods against known
// dependency-breaking opportunities.
//
// Classification is pure: the same frozen graph always yields the same
// ordered opportunity list, which is what makes analysis runs reproducible
// and test fixtures stable.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/unit"
)

// PatternKind tags a classifier finding.
type PatternKind int

const (
	// HiddenDependency is a constructor instantiating a concrete type that
	// reaches an impure boundary.
	HiddenDependency PatternKind = iota

	// GlobalSingleton is a call to a global/shared-instance accessor.
	GlobalSingleton

	// OnionParameter is a chain of two or more constructions required
	// transitively to build an outer constructor's argument.
	OnionParameter

	// IrritatingParameter is a construction of a type whose own
	// constructor needs parameters unavailable at the call site.
	IrritatingParameter

	// NakedStaticCall is a call to a static method with no instance
	// receiver and no override point.
	NakedStaticCall
)

// String returns the string representation of the PatternKind.
func (k PatternKind) String() string {
	switch k {
	case HiddenDependency:
		return "hidden_dependency"
	case GlobalSingleton:
		return "global_singleton"
	case OnionParameter:
		return "onion_parameter"
	case IrritatingParameter:
		return "irritating_parameter"
	case NakedStaticCall:
		return "naked_static_call"
	default:
		return "unknown"
	}
}

// ParsePatternKind converts a string form back to a PatternKind.
func ParsePatternKind(s string) (PatternKind, error) {
	for _, k := range DefaultPriority() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown pattern kind %q", s)
}

// DefaultPriority returns the default tie-break order between kinds.
//
// The source material gives no authoritative ranking, so this order is
// configurable rather than hard-coded; callers can override it per run.
func DefaultPriority() []PatternKind {
	return []PatternKind{
		HiddenDependency,
		GlobalSingleton,
		OnionParameter,
		IrritatingParameter,
		NakedStaticCall,
	}
}

// Opportunity is one detected, unresolved seam candidate.
//
// It borrows edge values out of one graph snapshot and records that
// snapshot's generation; a newer generation invalidates it.
type Opportunity struct {
	// ID is deterministic over (generation, constructor, kind, edges).
	ID string `json:"id"`

	Kind PatternKind `json:"kind"`

	// KindName is the human-readable kind, kept for serialization.
	KindName string `json:"kind_name"`

	// ConstructorID is the constructor node the rule fired on.
	ConstructorID string `json:"constructor_id"`

	// Edges is the minimal edge set responsible for the finding, used
	// later for patch scoping.
	Edges []graph.Edge `json:"edges"`

	// Depth is the construction chain length, recorded for
	// OnionParameter findings only.
	Depth int `json:"depth,omitempty"`

	// Generation ties this opportunity to one graph snapshot.
	Generation uint64 `json:"generation"`
}

// Classifier evaluates seam rules over a frozen graph.
//
// Thread Safety:
//
//	Classifier is immutable after construction and safe for concurrent
//	use; Classify itself only reads the graph.
type Classifier struct {
	priority []PatternKind
	rank     map[PatternKind]int
}

// Option is a functional option for configuring the Classifier.
type Option func(*Classifier)

// WithPriority overrides the tie-break order between pattern kinds. Kinds
// missing from the list keep their default relative order after the listed
// ones.
func WithPriority(order []PatternKind) Option {
	return func(c *Classifier) {
		if len(order) > 0 {
			c.priority = order
		}
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{priority: DefaultPriority()}
	for _, opt := range opts {
		opt(c)
	}
	c.rank = make(map[PatternKind]int, len(c.priority))
	for i, k := range c.priority {
		c.rank[k] = i
	}
	for i, k := range DefaultPriority() {
		if _, ok := c.rank[k]; !ok {
			c.rank[k] = len(c.priority) + i
		}
	}
	return c
}

// Classify evaluates every rule against every constructor node.
//
// Description:
//
//	Rules are evaluated independently per constructor; one constructor may
//	yield multiple opportunities, reported independently (the planner
//	decides ordering). Two exclusions apply within a single edge set:
//	a Constructs edge is HiddenDependency or IrritatingParameter, never
//	both (the impure boundary is the tie-break), and a Calls edge matches
//	at most one of GlobalSingleton / NakedStaticCall, by priority.
//
// Inputs:
//
//	g - A frozen graph snapshot.
//
// Outputs:
//
//	[]*Opportunity - Deterministically ordered findings. Never nil.
//	error - Non-nil if the graph is nil or not frozen.
func (c *Classifier) Classify(g *graph.Graph) ([]*Opportunity, error) {
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	if !g.Frozen() {
		return nil, fmt.Errorf("graph must be frozen before classification")
	}

	opportunities := []*Opportunity{}
	for _, ctor := range g.Constructors() {
		opportunities = append(opportunities, c.classifyConstructor(g, ctor)...)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if a.ConstructorID != b.ConstructorID {
			return a.ConstructorID < b.ConstructorID
		}
		if c.rank[a.Kind] != c.rank[b.Kind] {
			return c.rank[a.Kind] < c.rank[b.Kind]
		}
		return edgeSetKey(a.Edges) < edgeSetKey(b.Edges)
	})
	return opportunities, nil
}

// classifyConstructor evaluates all rules for one constructor node.
func (c *Classifier) classifyConstructor(g *graph.Graph, ctor *graph.Node) []*Opportunity {
	var found []*Opportunity

	constructs := g.OutEdges(ctor.ID, graph.EdgeConstructs)
	ownSites := make(map[string]bool, len(constructs))
	for _, e := range constructs {
		ownSites[e.SiteID] = true
	}

	for _, e := range constructs {
		target, ok := g.GetNode(e.ToID)
		if !ok || target.Kind != unit.KindType || target.Protocol {
			continue
		}

		// HiddenDependency vs IrritatingParameter tie-break: the impure
		// boundary decides. A constructed type with no impure reach is
		// classified only as IrritatingParameter.
		if path, impure := impurePath(g, target); impure {
			edges := append([]graph.Edge{e}, path...)
			found = append(found, c.newOpportunity(g, ctor, HiddenDependency, edges, 0))
		} else if hasIrritatingConstructor(g, target.ID) {
			found = append(found, c.newOpportunity(g, ctor, IrritatingParameter, []graph.Edge{e}, 0))
		}

		// An edge feeding a sibling construction site is an interior link
		// of the chain rooted at the outermost construction; starting a
		// search there would re-report the chain's suffix.
		if e.ArgOf != "" && ownSites[e.ArgOf] {
			continue
		}
		if chain := constructionChain(g, e); len(chain) >= 2 {
			found = append(found, c.newOpportunity(g, ctor, OnionParameter, chain, len(chain)))
		}
	}

	for _, e := range g.OutEdges(ctor.ID, graph.EdgeCalls) {
		target, ok := g.GetNode(e.ToID)
		if !ok {
			continue
		}
		matched := false
		for _, kind := range c.priority {
			switch kind {
			case GlobalSingleton:
				if target.Flags.GlobalAccessor {
					found = append(found, c.newOpportunity(g, ctor, GlobalSingleton, []graph.Edge{e}, 0))
					matched = true
				}
			case NakedStaticCall:
				if target.IsMethod() && target.Flags.Static && !target.OverridePoint && !target.Flags.GlobalAccessor {
					found = append(found, c.newOpportunity(g, ctor, NakedStaticCall, []graph.Edge{e}, 0))
					matched = true
				}
			}
			if matched {
				break
			}
		}
	}

	return found
}

// newOpportunity builds a finding with its deterministic ID.
func (c *Classifier) newOpportunity(g *graph.Graph, ctor *graph.Node, kind PatternKind, edges []graph.Edge, depth int) *Opportunity {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:%s:%s", g.Generation(), ctor.ID, kind, edgeSetKey(edges))
	return &Opportunity{
		ID:            hex.EncodeToString(h.Sum(nil))[:16],
		Kind:          kind,
		KindName:      kind.String(),
		ConstructorID: ctor.ID,
		Edges:         edges,
		Depth:         depth,
		Generation:    g.Generation(),
	}
}

// impurePath searches for an impure boundary reachable from the given type.
//
// Description:
//
//	A type flagged impure is itself a boundary. Otherwise the search
//	follows Calls edges out of the type's methods breadth-first, mapping
//	each reached method to its declaring type, with a visited set so
//	cyclic call graphs terminate. Returns the edge path to the first
//	boundary found (BFS order makes it minimal).
func impurePath(g *graph.Graph, t *graph.Node) ([]graph.Edge, bool) {
	if t.Flags.Impure {
		return nil, true
	}

	type step struct {
		methodID string
		path     []graph.Edge
	}
	visited := map[string]bool{}
	var queue []step
	for _, m := range g.MethodsOf(t.ID) {
		visited[m.ID] = true
		queue = append(queue, step{methodID: m.ID})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.OutEdges(cur.methodID, graph.EdgeCalls) {
			callee, ok := g.GetNode(e.ToID)
			if !ok || visited[callee.ID] {
				continue
			}
			visited[callee.ID] = true
			path := append(append([]graph.Edge{}, cur.path...), e)

			if callee.Flags.Impure {
				return path, true
			}
			if callee.DeclaringTypeID != "" {
				if owner, ok := g.GetNode(callee.DeclaringTypeID); ok && owner.Flags.Impure {
					return path, true
				}
			}
			queue = append(queue, step{methodID: callee.ID, path: path})
		}
	}
	return nil, false
}

// hasIrritatingConstructor reports whether any constructor of the type has a
// parameter unavailable at call time.
func hasIrritatingConstructor(g *graph.Graph, typeID string) bool {
	for _, ctor := range g.ConstructorsOf(typeID) {
		for _, p := range ctor.Params {
			if p.Unresolved {
				return true
			}
		}
	}
	return false
}

// constructionChain returns the longest chain of Constructs edges starting
// at the given edge. A chain of length one means nothing continues past it.
//
// Two continuations count: a construction nested in the same body (the
// ArgOf link pointing at this edge's site), and a construction performed by
// the constructed type's own constructors. Cycles terminate via the visited
// set over type IDs; a looping dependency chain contributes its acyclic
// prefix only.
func constructionChain(g *graph.Graph, e graph.Edge) []graph.Edge {
	visited := map[string]bool{e.ToID: true}
	if from, ok := g.GetNode(e.FromID); ok && from.DeclaringTypeID != "" {
		visited[from.DeclaringTypeID] = true
	}
	return append([]graph.Edge{e}, chainFrom(g, e, visited)...)
}

// chainFrom extends the chain past one Constructs edge.
func chainFrom(g *graph.Graph, e graph.Edge, visited map[string]bool) []graph.Edge {
	var best []graph.Edge

	// Nested constructions feeding this site as arguments.
	for _, sibling := range g.OutEdges(e.FromID, graph.EdgeConstructs) {
		if sibling.ArgOf != e.SiteID || visited[sibling.ToID] {
			continue
		}
		visited[sibling.ToID] = true
		cand := append([]graph.Edge{sibling}, chainFrom(g, sibling, visited)...)
		if len(cand) > len(best) {
			best = cand
		}
		visited[sibling.ToID] = false
	}

	// Constructions performed inside the constructed type's constructors.
	for _, ctor := range g.ConstructorsOf(e.ToID) {
		for _, next := range g.OutEdges(ctor.ID, graph.EdgeConstructs) {
			if visited[next.ToID] {
				continue
			}
			visited[next.ToID] = true
			cand := append([]graph.Edge{next}, chainFrom(g, next, visited)...)
			if len(cand) > len(best) {
				best = cand
			}
			visited[next.ToID] = false
		}
	}
	return best
}

// edgeSetKey is a stable string over an edge set, used for ordering and IDs.
func edgeSetKey(edges []graph.Edge) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = e.FromID + ">" + e.ToID + ":" + e.Kind.String() + ":" + e.SiteID
	}
	sort.Strings(parts)
	key := ""
	for _, p := range parts {
		key += p + "|"
	}
	return key
}
