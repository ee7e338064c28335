// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package adapter turns source material into the language-neutral unit
// model the graph builder consumes.
package adapter

import (
	"context"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// Adapter produces abstract units from some source of truth: a source
// tree, a pre-extracted dump, or a remote index.
//
// Implementations must be safe for concurrent use; Load may be called for
// several projects at once.
type Adapter interface {
	// Name identifies the adapter in logs and run reports.
	Name() string

	// Load extracts every unit under root. Per-unit extraction problems
	// should surface as partial units (unresolved refs) rather than
	// failing the whole load; only I/O and syntax-level failures that
	// prevent any extraction return an error.
	Load(ctx context.Context, root string) ([]*unit.AbstractUnit, error)
}
