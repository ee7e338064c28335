// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDump(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "units.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("writing dump: %v", err)
	}
	return path
}

const serviceUnit = `{"path":"svc/service.src","types":[{"id":"t.Service","name":"Service","methods":[{"id":"m.Service.init","name":"init","constructor":true,"constructs":[{"site_id":"site.1","target_type_id":"t.Mailer"}]}]}]}`
const mailerUnit = `{"path":"mail/mailer.src","types":[{"id":"t.Mailer","name":"Mailer","flags":{"impure":true}}]}`

func TestJSONLLoadsUnits(t *testing.T) {
	path := writeDump(t,
		"# extracted by front end",
		serviceUnit,
		"",
		mailerUnit,
	)

	a := NewJSONLAdapter(nil)
	if a.Name() != "jsonl" {
		t.Errorf("Name() = %q, want jsonl", a.Name())
	}
	units, err := a.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2 (comment and blank line skipped)", len(units))
	}
	if units[0].Path != "svc/service.src" || units[1].Path != "mail/mailer.src" {
		t.Errorf("paths = %s, %s", units[0].Path, units[1].Path)
	}
	if !units[1].Types[0].Flags.Impure {
		t.Error("impure flag lost in decode")
	}
}

func TestJSONLReportsLineNumberOnBadJSON(t *testing.T) {
	path := writeDump(t, serviceUnit, "{not json")
	_, err := NewJSONLAdapter(nil).Load(context.Background(), path)
	if err == nil {
		t.Fatal("Load() accepted malformed JSON")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error = %v, want the failing line number", err)
	}
}

func TestJSONLRejectsInvalidUnit(t *testing.T) {
	// Valid JSON, but the unit has no path.
	path := writeDump(t, `{"types":[{"id":"t.X","name":"X"}]}`)
	if _, err := NewJSONLAdapter(nil).Load(context.Background(), path); err == nil {
		t.Error("Load() accepted a unit that fails validation")
	}
}

func TestJSONLRejectsDuplicatePaths(t *testing.T) {
	path := writeDump(t, serviceUnit, serviceUnit)
	_, err := NewJSONLAdapter(nil).Load(context.Background(), path)
	if err == nil {
		t.Fatal("Load() accepted duplicate unit paths")
	}
	if !strings.Contains(err.Error(), "duplicate unit path") {
		t.Errorf("error = %v, want duplicate path named", err)
	}
}

func TestJSONLMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.jsonl")
	if _, err := NewJSONLAdapter(nil).Load(context.Background(), path); err == nil {
		t.Error("Load() on a missing file succeeded")
	}
}

func TestJSONLCancelledContext(t *testing.T) {
	path := writeDump(t, serviceUnit)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewJSONLAdapter(nil).Load(ctx, path); err == nil {
		t.Error("Load() ignored a cancelled context")
	}
}
