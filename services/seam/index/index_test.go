// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"testing"

	"github.com/seamkit/seamkit/services/seam/graph"
	"github.com/seamkit/seamkit/services/seam/unit"
)

func indexedGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph("")
	nodes := []*graph.Node{
		{ID: "t.Mailer", Kind: unit.KindType, Name: "Mailer", UnitPath: "mail/mailer.src"},
		{ID: "t2.Mailer", Kind: unit.KindType, Name: "Mailer", UnitPath: "legacy/mailer.src"},
		{ID: "t.MailQueue", Kind: unit.KindType, Name: "MailQueue", UnitPath: "mail/queue.src"},
		{ID: "t.Service", Kind: unit.KindType, Name: "Service", UnitPath: "svc/service.src"},
		{ID: "m.Service.init", Kind: unit.KindMethod, Name: "init",
			DeclaringTypeID: "t.Service", UnitPath: "svc/service.src"},
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) error = %v", n.ID, err)
		}
	}
	g.Freeze()
	return g
}

func TestExactMatchesAllHomonyms(t *testing.T) {
	idx, err := New(indexedGraph(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	matches := idx.Exact("Mailer")
	if len(matches) != 2 {
		t.Fatalf("Exact(Mailer) = %d matches, want 2", len(matches))
	}
	// Sorted by node ID for equal names.
	if matches[0].NodeID != "t.Mailer" || matches[1].NodeID != "t2.Mailer" {
		t.Errorf("match order = %s, %s", matches[0].NodeID, matches[1].NodeID)
	}
	if matches[0].Kind != "type" || matches[0].Unit != "mail/mailer.src" {
		t.Errorf("match detail = %+v", matches[0])
	}

	if got := idx.Exact("Nonexistent"); len(got) != 0 {
		t.Errorf("Exact(Nonexistent) = %v, want empty", got)
	}
}

func TestPrefixWalksSortedNames(t *testing.T) {
	idx, err := New(indexedGraph(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	matches := idx.Prefix("Mail")
	if len(matches) != 3 {
		t.Fatalf("Prefix(Mail) = %d matches, want 3", len(matches))
	}
	// Name order first, then node ID.
	want := []string{"t.MailQueue", "t.Mailer", "t2.Mailer"}
	for i, id := range want {
		if matches[i].NodeID != id {
			t.Errorf("match %d = %s, want %s", i, matches[i].NodeID, id)
		}
	}

	if got := idx.Prefix("Z"); len(got) != 0 {
		t.Errorf("Prefix(Z) = %v, want empty", got)
	}
}

func TestCachedQueriesAreStable(t *testing.T) {
	idx, err := New(indexedGraph(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first := idx.Prefix("Mail")
	second := idx.Prefix("Mail")
	if len(first) != len(second) {
		t.Fatalf("cached result differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("match %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestNewRejectsUnfrozenGraph(t *testing.T) {
	g := graph.NewGraph("")
	if _, err := New(g); err == nil {
		t.Error("New() accepted an unfrozen graph")
	}
}

func TestGenerationMatchesGraph(t *testing.T) {
	g := indexedGraph(t)
	idx, err := New(g)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if idx.Generation() != g.Generation() {
		t.Errorf("Generation() = %d, want %d", idx.Generation(), g.Generation())
	}
}
