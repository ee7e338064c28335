// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// EdgeKind is the typed relation between two nodes.
type EdgeKind int

const (
	// EdgeConstructs means the source constructor instantiates the target
	// type directly. Only constructor nodes may originate this edge.
	EdgeConstructs EdgeKind = iota

	// EdgeCalls means the source method invokes the target method.
	EdgeCalls

	// EdgeReads means the source method reads the target field.
	EdgeReads

	// EdgeWrites means the source method writes the target field.
	EdgeWrites

	// EdgeInherits means the source type extends the target type.
	EdgeInherits

	// EdgeConformsTo means the source type implements the target protocol.
	EdgeConformsTo
)

// String returns the string representation of the EdgeKind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeConstructs:
		return "constructs"
	case EdgeCalls:
		return "calls"
	case EdgeReads:
		return "reads"
	case EdgeWrites:
		return "writes"
	case EdgeInherits:
		return "inherits"
	case EdgeConformsTo:
		return "conforms_to"
	default:
		return "unknown"
	}
}

// Node is a declared entity in the dependency graph.
//
// Nodes are owned by the Graph and immutable once the graph is frozen. A new
// analysis run produces a new graph; nodes are never mutated in place.
type Node struct {
	// ID is the stable identifier, unique within one graph.
	ID string `json:"id"`

	// Kind is the declaration kind.
	Kind unit.DeclKind `json:"kind"`

	// Name is the declared name.
	Name string `json:"name"`

	// DeclaringTypeID is the node ID of the owning type, empty for types
	// and free functions.
	DeclaringTypeID string `json:"declaring_type_id,omitempty"`

	// UnitPath is the source file this node was declared in.
	UnitPath string `json:"unit_path,omitempty"`

	Visibility unit.Visibility `json:"visibility"`
	Mutable    bool            `json:"mutable,omitempty"`
	Flags      unit.Flags      `json:"flags"`

	// Constructor marks constructor/initializer methods.
	Constructor bool `json:"constructor,omitempty"`

	// OverridePoint marks methods that already permit override.
	OverridePoint bool `json:"override_point,omitempty"`

	// Protocol marks pure protocol/interface types.
	Protocol bool `json:"protocol,omitempty"`

	// External marks nodes declared in units outside the analyzed module
	// boundary. Plans must never rewrite call sites in external nodes.
	External bool `json:"external,omitempty"`

	// Params holds formal parameters for method nodes.
	Params []unit.Param `json:"params,omitempty"`

	Location unit.Location `json:"location"`
}

// IsMethod reports whether the node is a method or free function.
func (n *Node) IsMethod() bool { return n.Kind == unit.KindMethod }

// Edge is a typed, located relation between two nodes.
//
// Direction is always dependent → dependency.
type Edge struct {
	FromID string   `json:"from_id"`
	ToID   string   `json:"to_id"`
	Kind   EdgeKind `json:"kind"`

	// SiteID identifies the call/construction site node for Calls and
	// Constructs edges, empty otherwise.
	SiteID string `json:"site_id,omitempty"`

	// ArgOf links a Constructs edge to the construction site its result
	// feeds as an argument. Chains of ArgOf links carry onion nesting.
	ArgOf string `json:"arg_of,omitempty"`

	// Location is where the relation is expressed in source, kept for
	// patch scoping.
	Location unit.Location `json:"location"`
}

// key returns the deduplication key. Edges of the same kind between the same
// pair are one edge; different kinds between the same pair stay distinct.
func (e Edge) key() string {
	return e.FromID + "\x00" + e.ToID + "\x00" + e.Kind.String()
}

// ResolutionError reports an unresolved symbol reference in one unit.
//
// It is fatal for that unit's contribution only: the rest of the build
// proceeds and a partial graph is returned.
type ResolutionError struct {
	// UnitPath is the unit whose reference failed to resolve.
	UnitPath string

	// Symbol is the missing symbol's identifier.
	Symbol string

	// Ref is the referencing node's ID.
	Ref string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unit %s: unresolved symbol %q referenced by %s", e.UnitPath, e.Symbol, e.Ref)
}

// UnitError pairs a unit path with the error that degraded it.
type UnitError struct {
	UnitPath string `json:"unit_path"`
	Err      error  `json:"-"`

	// Reason is the string form of Err, kept for serialization.
	Reason string `json:"reason"`
}

// BuildStats summarizes one build.
type BuildStats struct {
	UnitsProcessed int   `json:"units_processed"`
	UnitsFailed    int   `json:"units_failed"`
	NodesCreated   int   `json:"nodes_created"`
	EdgesCreated   int   `json:"edges_created"`
	EdgesDropped   int   `json:"edges_dropped"`
	DurationMilli  int64 `json:"duration_milli"`
}

// BuildResult contains the graph, unit-local errors, and build statistics.
//
// A build is resilient to individual unit failures: the graph is always
// usable, and UnitErrors tells the caller what it is missing.
type BuildResult struct {
	Graph      *Graph      `json:"-"`
	UnitErrors []UnitError `json:"unit_errors,omitempty"`
	Stats      BuildStats  `json:"stats"`

	// Incomplete is true when the build was cancelled before finishing.
	Incomplete bool `json:"incomplete,omitempty"`
}
