// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// GraphSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const GraphSchemaVersion = "1.0"

// SerializableGraph is the JSON-serializable representation of a Graph.
//
// Nodes are sorted by ID and edges by the freeze ordering, so the encoded
// form is deterministic and safe to hash and diff.
type SerializableGraph struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// ProjectRoot is the analyzed project root.
	ProjectRoot string `json:"project_root"`

	// Generation is the snapshot generation number.
	Generation uint64 `json:"generation"`

	// BuiltAtMilli is the Unix timestamp in milliseconds when the graph
	// was frozen.
	BuiltAtMilli int64 `json:"built_at_milli"`

	// GraphHash is the deterministic hash of the graph structure.
	GraphHash string `json:"graph_hash"`

	// Nodes contains all nodes, sorted by ID.
	Nodes []*Node `json:"nodes"`

	// Edges contains all edges in freeze order.
	Edges []SerializableEdge `json:"edges"`
}

// SerializableEdge is the JSON form of an Edge with a human-readable kind
// next to the exact integer code.
type SerializableEdge struct {
	Edge
	KindName string `json:"kind_name"`
}

// ToSerializable converts a frozen Graph to its serializable representation.
//
// Complexity:
//
//	O(V log V + E); sorting nodes by ID dominates.
func (g *Graph) ToSerializable() *SerializableGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]SerializableEdge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, SerializableEdge{Edge: e, KindName: e.Kind.String()})
	}

	sg := &SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		ProjectRoot:   g.projectRoot,
		Generation:    g.generation,
		BuiltAtMilli:  g.builtAt,
		Nodes:         nodes,
		Edges:         edges,
	}
	sg.GraphHash = structureHash(nodes, edges)
	return sg
}

// FromSerializable reconstructs a frozen Graph from its serialized form.
//
// The reconstructed graph keeps the serialized generation number rather
// than drawing a new one: derived objects saved alongside a snapshot stay
// valid against it.
func FromSerializable(sg *SerializableGraph) (*Graph, error) {
	if sg == nil {
		return nil, fmt.Errorf("serializable graph must not be nil")
	}
	if sg.SchemaVersion != GraphSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (want %q)", sg.SchemaVersion, GraphSchemaVersion)
	}

	g := NewGraph(sg.ProjectRoot)
	for _, n := range sg.Nodes {
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("restoring node %s: %w", n.ID, err)
		}
	}
	for _, e := range sg.Edges {
		if _, err := g.AddEdge(e.Edge); err != nil {
			return nil, fmt.Errorf("restoring edge %s -> %s: %w", e.FromID, e.ToID, err)
		}
	}
	g.Freeze()

	g.mu.Lock()
	g.generation = sg.Generation
	g.builtAt = sg.BuiltAtMilli
	g.mu.Unlock()
	return g, nil
}

// Hash returns the deterministic structure hash of a frozen graph.
func (g *Graph) Hash() string {
	return g.ToSerializable().GraphHash
}

// structureHash computes a SHA-256 over the ordered node IDs and edge
// triples. Timestamps and generations are deliberately excluded so two
// builds of identical source hash identically.
func structureHash(nodes []*Node, edges []SerializableEdge) string {
	h := sha256.New()
	for _, n := range nodes {
		fmt.Fprintf(h, "n:%s:%d:%s:%v\n", n.ID, n.Kind, n.DeclaringTypeID, n.Flags)
	}
	for _, e := range edges {
		fmt.Fprintf(h, "e:%s:%s:%d:%s\n", e.FromID, e.ToID, e.Kind, e.SiteID)
	}
	return hex.EncodeToString(h.Sum(nil))
}
