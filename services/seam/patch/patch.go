// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package patch renders verified plans as unified-diff previews.
//
// The preview is advisory: it shows, per source file, the edit each plan
// step would make at its recorded location. Applying edits to real source
// text is the consuming tool's job.
package patch

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/seamkit/seamkit/services/seam/plan"
	"github.com/seamkit/seamkit/services/seam/unit"
)

// fileEdit pairs one plan edit with the file it lands in.
type fileEdit struct {
	edit plan.Edit
	loc  unit.Location
}

// Preview renders a plan as a unified diff, one file section per touched
// source file, hunks ordered by line.
//
// Description:
//
//	Edits without a recorded location are grouped under the plan's own
//	pseudo-file so nothing silently disappears from the preview. A no-op
//	plan yields an empty (zero-byte) diff.
//
// Outputs:
//
//	[]byte - Unified diff text.
//	error - Non-nil when the plan is nil or rendering fails.
func Preview(p *plan.Plan) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("plan must not be nil")
	}
	if p.NoOp || len(p.Edits) == 0 {
		return nil, nil
	}

	byFile := make(map[string][]fileEdit)
	for _, e := range p.Edits {
		path := e.Location.File
		if path == "" {
			path = fmt.Sprintf("<plan:%s>", p.ID)
		}
		byFile[path] = append(byFile[path], fileEdit{edit: e, loc: e.Location})
	}

	paths := make([]string, 0, len(byFile))
	for path := range byFile {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var fileDiffs []*diff.FileDiff
	for _, path := range paths {
		edits := byFile[path]
		sort.SliceStable(edits, func(a, b int) bool {
			return edits[a].loc.StartLine < edits[b].loc.StartLine
		})

		fd := &diff.FileDiff{
			OrigName: "a/" + path,
			NewName:  "b/" + path,
			Extended: []string{fmt.Sprintf("plan %s strategy %s", p.ID, p.Strategy)},
		}
		for _, fe := range edits {
			fd.Hunks = append(fd.Hunks, hunkFor(fe))
		}
		fileDiffs = append(fileDiffs, fd)
	}

	out, err := diff.PrintMultiFileDiff(fileDiffs)
	if err != nil {
		return nil, fmt.Errorf("failed to render diff for plan %s: %w", p.ID, err)
	}
	return out, nil
}

// hunkFor renders one edit as a single-line replacement hunk.
func hunkFor(fe fileEdit) *diff.Hunk {
	line := int32(fe.loc.StartLine)
	if line <= 0 {
		line = 1
	}
	var body bytes.Buffer
	body.WriteString("-" + describeBefore(fe.edit) + "\n")
	body.WriteString("+" + describeAfter(fe.edit) + "\n")
	return &diff.Hunk{
		OrigStartLine: line,
		OrigLines:     1,
		NewStartLine:  line,
		NewLines:      1,
		Section:       fe.edit.OpName,
		Body:          body.Bytes(),
	}
}

// describeBefore renders the pre-edit shape of the touched declaration or
// call site.
func describeBefore(e plan.Edit) string {
	switch e.Op {
	case plan.AddParameter:
		return fmt.Sprintf("%s(...)", e.TargetID)
	case plan.RedirectCallSite:
		return fmt.Sprintf("call %s", e.CallSiteID)
	case plan.InsertOverridableMethod, plan.ExtractProtocol, plan.AddSetter:
		return e.TargetID
	default:
		return e.TargetID
	}
}

// describeAfter renders the post-edit shape.
func describeAfter(e plan.Edit) string {
	switch e.Op {
	case plan.AddParameter:
		return fmt.Sprintf("%s(..., %s %s)", e.TargetID, e.ParamName, e.ParamTypeRef)
	case plan.RedirectCallSite:
		suffix := ""
		if e.DefaultFallback {
			suffix = " [default fallback]"
		}
		return fmt.Sprintf("call %s -> %s%s", e.CallSiteID, e.NewTargetID, suffix)
	case plan.InsertOverridableMethod:
		return fmt.Sprintf("%s + overridable %s()", e.TargetID, e.MethodName)
	case plan.ExtractProtocol:
		return fmt.Sprintf("%s + protocol %s {%s}", e.TargetID, e.MethodName, strings.Join(e.Methods, ", "))
	case plan.AddSetter:
		return fmt.Sprintf("%s + setter %s", e.TargetID, e.MethodName)
	default:
		return e.TargetID
	}
}
