// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// maxUnitLineBytes bounds a single JSONL record. Units describing very
// large generated files still fit comfortably under this.
const maxUnitLineBytes = 16 << 20

// JSONLAdapter loads pre-extracted units from a JSON Lines file: one
// serialized AbstractUnit per line. This is the interchange format for
// front ends written in other languages.
type JSONLAdapter struct {
	logger *slog.Logger
}

// NewJSONLAdapter creates a JSONLAdapter.
func NewJSONLAdapter(logger *slog.Logger) *JSONLAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONLAdapter{logger: logger}
}

// Name implements Adapter.
func (a *JSONLAdapter) Name() string { return "jsonl" }

// Load implements Adapter. Root is the path of the .jsonl file.
//
// Description:
//
//	Each line is decoded and validated independently; a malformed or
//	invalid line fails the load with its line number, since a silently
//	dropped unit would poison every resolution that references it.
//	Blank lines and lines starting with '#' are skipped.
func (a *JSONLAdapter) Load(ctx context.Context, root string) ([]*unit.AbstractUnit, error) {
	f, err := os.Open(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit dump %s: %w", root, err)
	}
	defer f.Close()

	units, err := a.decode(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit dump %s: %w", root, err)
	}
	a.logger.Debug("Loaded unit dump", "path", root, "units", len(units))
	return units, nil
}

func (a *JSONLAdapter) decode(ctx context.Context, r io.Reader) ([]*unit.AbstractUnit, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxUnitLineBytes)

	var units []*unit.AbstractUnit
	seen := make(map[string]bool)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		u := &unit.AbstractUnit{}
		if err := json.Unmarshal(line, u); err != nil {
			return nil, fmt.Errorf("line %d: invalid unit JSON: %w", lineNo, err)
		}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: invalid unit %q: %w", lineNo, u.Path, err)
		}
		if seen[u.Path] {
			return nil, fmt.Errorf("line %d: duplicate unit path %q", lineNo, u.Path)
		}
		seen[u.Path] = true
		units = append(units, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan unit dump: %w", err)
	}
	return units, nil
}
