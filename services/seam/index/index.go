// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index provides cached symbol lookup over a frozen graph.
package index

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/seamkit/seamkit/services/seam/graph"
)

// defaultCacheSize bounds memoized query results. Lookups are cheap; the
// cache mainly absorbs repeated interactive queries over large graphs.
const defaultCacheSize = 4096

// Match is one symbol lookup hit.
type Match struct {
	NodeID string `json:"node_id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Unit   string `json:"unit"`
}

// SymbolIndex answers name and prefix queries against one graph
// generation. A rebuilt graph needs a fresh index; the generation check
// guards against stale reuse.
//
// Thread Safety: Safe for concurrent use; the LRU is internally locked and
// the underlying graph is frozen.
type SymbolIndex struct {
	g          *graph.Graph
	generation uint64
	names      []string // sorted distinct node names
	cache      *lru.Cache[string, []Match]
}

// New builds an index over a frozen graph.
func New(g *graph.Graph) (*SymbolIndex, error) {
	if !g.Frozen() {
		return nil, fmt.Errorf("cannot index an unfrozen graph")
	}
	cache, err := lru.New[string, []Match](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, id := range g.NodeIDs() {
		if n, ok := g.GetNode(id); ok && !seen[n.Name] {
			seen[n.Name] = true
			names = append(names, n.Name)
		}
	}
	sort.Strings(names)

	return &SymbolIndex{
		g:          g,
		generation: g.Generation(),
		names:      names,
		cache:      cache,
	}, nil
}

// Generation returns the graph generation this index serves.
func (idx *SymbolIndex) Generation() uint64 { return idx.generation }

// Exact returns all nodes with exactly the given name, sorted by node ID.
func (idx *SymbolIndex) Exact(name string) []Match {
	key := "=" + name
	if hit, ok := idx.cache.Get(key); ok {
		return hit
	}
	matches := idx.collect(idx.g.NodesByName(name))
	idx.cache.Add(key, matches)
	return matches
}

// Prefix returns all nodes whose name starts with prefix, sorted by name
// then node ID.
func (idx *SymbolIndex) Prefix(prefix string) []Match {
	key := "^" + prefix
	if hit, ok := idx.cache.Get(key); ok {
		return hit
	}

	start := sort.SearchStrings(idx.names, prefix)
	var matches []Match
	for i := start; i < len(idx.names) && strings.HasPrefix(idx.names[i], prefix); i++ {
		matches = append(matches, idx.collect(idx.g.NodesByName(idx.names[i]))...)
	}
	idx.cache.Add(key, matches)
	return matches
}

func (idx *SymbolIndex) collect(ids []string) []Match {
	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		n, ok := idx.g.GetNode(id)
		if !ok {
			continue
		}
		matches = append(matches, Match{
			NodeID: n.ID,
			Name:   n.Name,
			Kind:   n.Kind.String(),
			Unit:   n.UnitPath,
		})
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Name != matches[b].Name {
			return matches[a].Name < matches[b].Name
		}
		return matches[a].NodeID < matches[b].NodeID
	})
	return matches
}
