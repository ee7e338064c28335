// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph holds the dependency graph model and its builder.
//
// A Graph is one analysis snapshot. It owns its nodes and edges, is mutable
// while building, and immutable after Freeze. Derived objects (opportunities,
// plans) borrow into a snapshot and carry its generation number; a newer
// generation invalidates them.
package graph

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// Default capacity limits, matching what a single analysis run of a large
// project needs without letting a runaway adapter exhaust memory.
const (
	DefaultMaxNodes = 1_000_000
	DefaultMaxEdges = 5_000_000
)

// generationCounter is the process-wide source of graph generations.
var generationCounter atomic.Uint64

// Graph is one immutable-after-freeze analysis snapshot.
//
// Thread Safety:
//
//	Mutating methods (AddNode, AddEdge, Freeze) are guarded by an internal
//	mutex. Read methods are safe for unguarded concurrent use only after
//	Freeze; the builder is the sole writer before that.
type Graph struct {
	mu sync.RWMutex

	projectRoot string
	generation  uint64
	frozen      bool
	builtAt     int64 // Unix milliseconds, set on Freeze

	maxNodes int
	maxEdges int

	nodes map[string]*Node
	edges []Edge

	// edgeKeys deduplicates (from, to, kind) triples.
	edgeKeys map[string]struct{}

	// out and in index edge positions by endpoint node ID.
	out map[string][]int
	in  map[string][]int

	// nameIndex maps declared name -> node IDs, for query surfaces.
	nameIndex map[string][]string
}

// GraphOption is a functional option for NewGraph.
type GraphOption func(*Graph)

// WithMaxNodes caps the node count.
func WithMaxNodes(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxNodes = n
		}
	}
}

// WithMaxEdges caps the edge count.
func WithMaxEdges(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxEdges = n
		}
	}
}

// NewGraph creates an empty, unfrozen graph with a fresh generation number.
func NewGraph(projectRoot string, opts ...GraphOption) *Graph {
	g := &Graph{
		projectRoot: projectRoot,
		generation:  generationCounter.Add(1),
		maxNodes:    DefaultMaxNodes,
		maxEdges:    DefaultMaxEdges,
		nodes:       make(map[string]*Node),
		edgeKeys:    make(map[string]struct{}),
		out:         make(map[string][]int),
		in:          make(map[string][]int),
		nameIndex:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProjectRoot returns the project root this graph was built for.
func (g *Graph) ProjectRoot() string { return g.projectRoot }

// Generation returns the snapshot generation number. Opportunities and plans
// derived from this graph carry it; a mismatch means they are stale.
func (g *Graph) Generation() uint64 { return g.generation }

// BuiltAtMilli returns the freeze timestamp in Unix milliseconds, 0 before
// Freeze.
func (g *Graph) BuiltAtMilli() int64 { return g.builtAt }

// Frozen reports whether the graph has been frozen.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// AddNode inserts a node.
//
// Outputs:
//
//	error - Non-nil if the graph is frozen, the node is invalid, a node
//	with the same ID already exists, or the node cap is reached.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return fmt.Errorf("node must not be nil")
	}
	if n.ID == "" {
		return fmt.Errorf("node ID must not be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return fmt.Errorf("graph is frozen")
	}
	if len(g.nodes) >= g.maxNodes {
		return fmt.Errorf("node limit %d reached", g.maxNodes)
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("node %s already exists", n.ID)
	}

	g.nodes[n.ID] = n
	g.nameIndex[n.Name] = append(g.nameIndex[n.Name], n.ID)
	return nil
}

// AddEdge inserts an edge between two existing nodes.
//
// Description:
//
//	Self-edges are discarded silently (reported via the returned sentinel
//	errDiscarded is not exported; callers see nil). Same-kind duplicates
//	between the same pair are deduplicated. Constructs edges must
//	originate from a constructor node; anything else is an error, since
//	this invariant is what separates a hidden dependency from a call.
//
// Outputs:
//
//	bool - True if the edge was inserted, false if discarded as a
//	self-edge or duplicate.
//	error - Non-nil on frozen graph, unknown endpoints, cap, or a
//	Constructs edge from a non-constructor.
func (g *Graph) AddEdge(e Edge) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return false, fmt.Errorf("graph is frozen")
	}
	if e.FromID == e.ToID {
		return false, nil
	}
	from, ok := g.nodes[e.FromID]
	if !ok {
		return false, fmt.Errorf("edge source %s not in graph", e.FromID)
	}
	if _, ok := g.nodes[e.ToID]; !ok {
		return false, fmt.Errorf("edge target %s not in graph", e.ToID)
	}
	if e.Kind == EdgeConstructs && !from.Constructor {
		return false, fmt.Errorf("constructs edge from non-constructor %s", e.FromID)
	}
	if len(g.edges) >= g.maxEdges {
		return false, fmt.Errorf("edge limit %d reached", g.maxEdges)
	}

	key := e.key()
	if _, dup := g.edgeKeys[key]; dup {
		return false, nil
	}
	g.edgeKeys[key] = struct{}{}

	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.FromID] = append(g.out[e.FromID], idx)
	g.in[e.ToID] = append(g.in[e.ToID], idx)
	return true, nil
}

// Freeze makes the graph immutable and orders its edges deterministically.
//
// Classification depends on stable iteration order, so Freeze sorts edges by
// (from, kind, to, site) and rebuilds the endpoint indexes.
func (g *Graph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return
	}

	sort.Slice(g.edges, func(i, j int) bool {
		a, b := g.edges[i], g.edges[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.SiteID < b.SiteID
	})

	g.out = make(map[string][]int, len(g.out))
	g.in = make(map[string][]int, len(g.in))
	for i, e := range g.edges {
		g.out[e.FromID] = append(g.out[e.FromID], i)
		g.in[e.ToID] = append(g.in[e.ToID], i)
	}

	for name := range g.nameIndex {
		sort.Strings(g.nameIndex[name])
	}

	g.builtAt = time.Now().UnixMilli()
	g.frozen = true
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// NodesByName returns node IDs declared under the given name, sorted.
func (g *Graph) NodesByName(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.nameIndex[name]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// NodeIDs returns all node IDs sorted ascending.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OutEdges returns the edges leaving a node, optionally filtered by kind.
func (g *Graph) OutEdges(id string, kinds ...EdgeKind) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filterEdges(g.out[id], kinds)
}

// InEdges returns the edges arriving at a node, optionally filtered by kind.
func (g *Graph) InEdges(id string, kinds ...EdgeKind) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filterEdges(g.in[id], kinds)
}

func (g *Graph) filterEdges(idxs []int, kinds []EdgeKind) []Edge {
	var out []Edge
	for _, i := range idxs {
		e := g.edges[i]
		if len(kinds) == 0 {
			out = append(out, e)
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Edges returns a copy of all edges in deterministic order. Only valid after
// Freeze; before that the order is insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// MethodsOf returns the method nodes declared by a type, sorted by ID.
func (g *Graph) MethodsOf(typeID string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var methods []*Node
	for _, n := range g.nodes {
		if n.Kind == unit.KindMethod && n.DeclaringTypeID == typeID {
			methods = append(methods, n)
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].ID < methods[j].ID })
	return methods
}

// ConstructorsOf returns the constructor nodes of a type, sorted by ID.
func (g *Graph) ConstructorsOf(typeID string) []*Node {
	var ctors []*Node
	for _, m := range g.MethodsOf(typeID) {
		if m.Constructor {
			ctors = append(ctors, m)
		}
	}
	return ctors
}

// Constructors returns every constructor node in the graph, sorted by ID.
// Classifier rules are evaluated once per entry of this list.
func (g *Graph) Constructors() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ctors []*Node
	for _, n := range g.nodes {
		if n.Kind == unit.KindMethod && n.Constructor {
			ctors = append(ctors, n)
		}
	}
	sort.Slice(ctors, func(i, j int) bool { return ctors[i].ID < ctors[j].ID })
	return ctors
}

// Implementers returns concrete type nodes with a ConformsTo or Inherits
// edge to the given type, sorted by ID.
func (g *Graph) Implementers(typeID string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var impls []*Node
	for _, i := range g.in[typeID] {
		e := g.edges[i]
		if e.Kind != EdgeConformsTo && e.Kind != EdgeInherits {
			continue
		}
		if n, ok := g.nodes[e.FromID]; ok && n.Kind == unit.KindType && !n.Protocol {
			impls = append(impls, n)
		}
	}
	sort.Slice(impls, func(i, j int) bool { return impls[i].ID < impls[j].ID })
	return impls
}
