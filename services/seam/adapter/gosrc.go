// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package adapter

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// defaultGlobalAccessors are function names conventionally returning
// process-wide singletons.
var defaultGlobalAccessors = []string{"Instance", "Shared", "Default", "GetInstance"}

// GoSourceAdapter extracts units directly from a Go source tree.
//
// Description:
//
//	The reference front end. Extraction is syntactic: only identifiers
//	declared in the same package resolve to graph targets, so cross-module
//	calls appear as external or are omitted rather than guessed. That
//	keeps false seams out of the graph at the cost of recall.
//
// Thread Safety: Safe for concurrent Load calls.
type GoSourceAdapter struct {
	logger          *slog.Logger
	impurePrefixes  []string
	globalAccessors map[string]bool
}

// GoSourceOption configures a GoSourceAdapter.
type GoSourceOption func(*GoSourceAdapter)

// WithImpurePrefixes marks calls into these import-path prefixes as
// impure-boundary crossings.
func WithImpurePrefixes(prefixes []string) GoSourceOption {
	return func(a *GoSourceAdapter) { a.impurePrefixes = prefixes }
}

// WithGlobalAccessorNames overrides the function names treated as global
// state accessors.
func WithGlobalAccessorNames(names []string) GoSourceOption {
	return func(a *GoSourceAdapter) {
		a.globalAccessors = make(map[string]bool, len(names))
		for _, n := range names {
			a.globalAccessors[n] = true
		}
	}
}

// NewGoSourceAdapter creates a GoSourceAdapter.
func NewGoSourceAdapter(logger *slog.Logger, opts ...GoSourceOption) *GoSourceAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &GoSourceAdapter{
		logger:         logger,
		impurePrefixes: []string{"os", "net", "net/http", "database/sql", "io"},
	}
	a.globalAccessors = make(map[string]bool, len(defaultGlobalAccessors))
	for _, n := range defaultGlobalAccessors {
		a.globalAccessors[n] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *GoSourceAdapter) Name() string { return "gosrc" }

// goFile is one parsed source file awaiting reference resolution.
type goFile struct {
	path    string
	pkg     string
	source  []byte
	tree    *sitter.Tree
	imports map[string]string // local name -> import path
}

// pkgDecls indexes what a package declares, so the second pass only emits
// refs that resolve locally.
type pkgDecls struct {
	types map[string]string // type name -> node ID
	funcs map[string]string // free function name -> node ID
}

// Load implements Adapter.
//
// Two passes over the tree: the first parses every file and indexes
// package-level declarations, the second emits units with call and
// construction refs resolved against that index.
func (a *GoSourceAdapter) Load(ctx context.Context, root string) ([]*unit.AbstractUnit, error) {
	files, err := a.parseTree(ctx, root)
	if err != nil {
		return nil, err
	}

	decls := make(map[string]*pkgDecls)
	for _, f := range files {
		a.indexDecls(f, decls)
	}

	units := make([]*unit.AbstractUnit, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := a.extractUnit(f, decls[f.pkg])
		if err := u.Validate(); err != nil {
			// A malformed extraction degrades that unit only: the builder
			// records it as a unit-local error and the run completes on
			// the remaining files.
			a.logger.Warn("Extracted unit failed validation",
				"path", f.path, "error", err)
		}
		units = append(units, u)
	}
	a.logger.Debug("Extracted Go source tree", "root", root, "units", len(units))
	return units, nil
}

// parseTree walks root and parses every non-test, non-vendored Go file.
func (a *GoSourceAdapter) parseTree(ctx context.Context, root string) ([]*goFile, error) {
	var files []*goFile
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			return nil
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		tree, err := parser.ParseCtx(ctx, nil, source)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		f := &goFile{path: rel, source: source, tree: tree}
		f.pkg = packageName(tree.RootNode(), source)
		f.imports = importMap(tree.RootNode(), source)
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source tree %s: %w", root, err)
	}
	return files, nil
}

// indexDecls records package-level type and function names.
func (a *GoSourceAdapter) indexDecls(f *goFile, decls map[string]*pkgDecls) {
	d := decls[f.pkg]
	if d == nil {
		d = &pkgDecls{types: map[string]string{}, funcs: map[string]string{}}
		decls[f.pkg] = d
	}
	walk(f.tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "type_spec":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nameNode.Content(f.source)
				d.types[name] = typeID(f.pkg, name)
			}
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nameNode.Content(f.source)
				d.funcs[name] = funcID(f.pkg, name)
			}
		}
		return true
	})
}

// extractUnit builds the AbstractUnit for one file.
func (a *GoSourceAdapter) extractUnit(f *goFile, decls *pkgDecls) *unit.AbstractUnit {
	u := &unit.AbstractUnit{Path: f.path}
	typeIdx := map[string]int{} // type name -> index into u.Types

	walk(f.tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "type_spec":
			if t, ok := a.extractType(f, n); ok {
				u.Types = append(u.Types, t)
				typeIdx[t.Name] = len(u.Types) - 1
			}
			return false
		case "method_declaration", "function_declaration":
			return false // handled below, after all types exist
		}
		return true
	})

	walk(f.tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "method_declaration":
			recv := receiverTypeName(n, f.source)
			m, ok := a.extractMethod(f, n, decls, recv)
			if !ok {
				return false
			}
			a.collectRefs(f, n.ChildByFieldName("body"), decls, &m, false)
			if i, declared := typeIdx[recv]; declared {
				u.Types[i].Methods = append(u.Types[i].Methods, m)
			} else {
				// Receiver type declared in a sibling file; keep the
				// method as free so its refs still enter the graph.
				u.FreeMethods = append(u.FreeMethods, m)
			}
			return false
		case "function_declaration":
			m, ok := a.extractMethod(f, n, decls, "")
			if !ok {
				return false
			}
			// Constructor status decides how the body's instantiations are
			// recorded, so it must be known before refs are collected.
			i, isCtor := constructorTarget(m.Name, n, f.source, typeIdx)
			a.collectRefs(f, n.ChildByFieldName("body"), decls, &m, isCtor)
			if isCtor {
				m.Constructor = true
				u.Types[i].Methods = append(u.Types[i].Methods, m)
			} else {
				m.Flags.Static = true
				if a.globalAccessors[m.Name] {
					m.Flags.GlobalAccessor = true
				}
				u.FreeMethods = append(u.FreeMethods, m)
			}
			return false
		}
		return true
	})
	return u
}

// extractType builds a TypeDecl from a type_spec node.
func (a *GoSourceAdapter) extractType(f *goFile, n *sitter.Node) (unit.TypeDecl, bool) {
	nameNode := n.ChildByFieldName("name")
	bodyNode := n.ChildByFieldName("type")
	if nameNode == nil || bodyNode == nil {
		return unit.TypeDecl{}, false
	}
	name := nameNode.Content(f.source)
	t := unit.TypeDecl{
		ID:         typeID(f.pkg, name),
		Name:       name,
		Visibility: visibilityOf(name),
		Location:   locationOf(f, n),
	}
	switch bodyNode.Type() {
	case "struct_type":
		for _, fd := range namedChildren(bodyNode, "field_declaration_list") {
			for _, field := range namedChildren(fd, "field_declaration") {
				fieldName := ""
				if fn := field.ChildByFieldName("name"); fn != nil {
					fieldName = fn.Content(f.source)
				} else if tn := field.ChildByFieldName("type"); tn != nil {
					fieldName = tn.Content(f.source) // embedded
				}
				if fieldName == "" {
					continue
				}
				t.Fields = append(t.Fields, unit.FieldDecl{
					ID:         t.ID + "." + fieldName,
					Name:       fieldName,
					Visibility: visibilityOf(fieldName),
					Location:   locationOf(f, field),
				})
			}
		}
	case "interface_type":
		t.Protocol = true
		for _, m := range namedChildren(bodyNode, "method_elem") {
			if fn := m.ChildByFieldName("name"); fn != nil {
				methodName := fn.Content(f.source)
				t.Methods = append(t.Methods, unit.MethodDecl{
					ID:            methodID(f.pkg, name, methodName),
					Name:          methodName,
					Visibility:    visibilityOf(methodName),
					OverridePoint: true,
					Location:      locationOf(f, m),
				})
			}
		}
	}
	return t, true
}

// extractMethod builds a MethodDecl and resolves its parameter types; the
// caller collects body refs once constructor status is known.
func (a *GoSourceAdapter) extractMethod(f *goFile, n *sitter.Node, decls *pkgDecls, recv string) (unit.MethodDecl, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return unit.MethodDecl{}, false
	}
	name := nameNode.Content(f.source)
	var id string
	if recv != "" {
		id = methodID(f.pkg, recv, name)
	} else {
		id = funcID(f.pkg, name)
	}
	m := unit.MethodDecl{
		ID:         id,
		Name:       name,
		Visibility: visibilityOf(name),
		Location:   locationOf(f, n),
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for pi, p := range namedChildren(params, "parameter_declaration") {
			paramName := fmt.Sprintf("arg%d", pi)
			if pn := p.ChildByFieldName("name"); pn != nil {
				paramName = pn.Content(f.source)
			}
			typeRef, unresolved := "", true
			if pt := p.ChildByFieldName("type"); pt != nil {
				raw := strings.TrimPrefix(pt.Content(f.source), "*")
				if declID, ok := decls.types[raw]; ok {
					typeRef, unresolved = declID, false
				} else {
					typeRef = raw
				}
			}
			m.Params = append(m.Params, unit.Param{Name: paramName, TypeRef: typeRef, Unresolved: unresolved})
		}
	}
	return m, true
}

// collectRefs walks a function body for calls and constructions. Only
// constructor bodies may record ConstructRefs; in ordinary methods an
// instantiation surfaces as a call to the type's constructor function, or
// not at all for bare literals, keeping the unit's construct invariant
// intact.
func (a *GoSourceAdapter) collectRefs(f *goFile, body *sitter.Node, decls *pkgDecls, m *unit.MethodDecl, ctor bool) {
	if body == nil {
		return
	}
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "call_expression":
			a.collectCall(f, n, decls, m, ctor)
		case "composite_literal":
			if !ctor {
				return true
			}
			if tn := n.ChildByFieldName("type"); tn != nil {
				typeName := strings.TrimPrefix(tn.Content(f.source), "&")
				if targetID, ok := decls.types[typeName]; ok {
					m.Constructs = append(m.Constructs, unit.ConstructRef{
						SiteID:       siteID(f, n),
						TargetTypeID: targetID,
						Location:     locationOf(f, n),
					})
				}
			}
		}
		return true
	})
}

// collectCall classifies one call expression.
func (a *GoSourceAdapter) collectCall(f *goFile, n *sitter.Node, decls *pkgDecls, m *unit.MethodDecl, ctor bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		callee := fn.Content(f.source)
		if ctor && (strings.HasPrefix(callee, "New") || strings.HasPrefix(callee, "new")) {
			base := strings.TrimPrefix(strings.TrimPrefix(callee, "New"), "new")
			if targetID, ok := decls.types[base]; ok {
				m.Constructs = append(m.Constructs, unit.ConstructRef{
					SiteID:       siteID(f, n),
					TargetTypeID: targetID,
					Location:     locationOf(f, n),
				})
				return
			}
		}
		if targetID, ok := decls.funcs[callee]; ok {
			m.Calls = append(m.Calls, unit.CallRef{
				SiteID:   siteID(f, n),
				TargetID: targetID,
				Location: locationOf(f, n),
			})
		}
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if operand == nil || field == nil || operand.Type() != "identifier" {
			return
		}
		base := operand.Content(f.source)
		if importPath, ok := f.imports[base]; ok && a.isImpurePath(importPath) {
			m.Flags.Impure = true
		}
	}
}

func (a *GoSourceAdapter) isImpurePath(importPath string) bool {
	for _, prefix := range a.impurePrefixes {
		if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
			return true
		}
	}
	return false
}

// Tree helpers.

// walk visits nodes depth-first; the callback returns false to prune.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

// namedChildren returns the named children of n with the given type, or,
// when n itself matches, n.
func namedChildren(n *sitter.Node, nodeType string) []*sitter.Node {
	if n.Type() == nodeType {
		return []*sitter.Node{n}
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == nodeType {
			out = append(out, c)
		} else {
			out = append(out, namedChildren(c, nodeType)...)
		}
	}
	return out
}

func packageName(root *sitter.Node, source []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		if c.Type() == "package_clause" && c.NamedChildCount() > 0 {
			return c.NamedChild(0).Content(source)
		}
	}
	return ""
}

// importMap maps local import names to import paths.
func importMap(root *sitter.Node, source []byte) map[string]string {
	imports := map[string]string{}
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "import_spec" {
			return n.Type() == "source_file" || n.Type() == "import_declaration" || n.Type() == "import_spec_list"
		}
		pathNode := n.ChildByFieldName("path")
		if pathNode == nil {
			return false
		}
		importPath := strings.Trim(pathNode.Content(source), `"`)
		local := importPath
		if idx := strings.LastIndex(importPath, "/"); idx >= 0 {
			local = importPath[idx+1:]
		}
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			local = nameNode.Content(source)
		}
		imports[local] = importPath
		return false
	})
	return imports
}

// receiverTypeName extracts the bare receiver type of a method.
func receiverTypeName(n *sitter.Node, source []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	decls := namedChildren(recv, "parameter_declaration")
	if len(decls) == 0 {
		return ""
	}
	tn := decls[0].ChildByFieldName("type")
	if tn == nil {
		return ""
	}
	return strings.TrimPrefix(tn.Content(source), "*")
}

// constructorTarget decides whether a free function is a constructor of a
// type declared in the same file: a New<T> name whose result mentions T.
func constructorTarget(name string, n *sitter.Node, source []byte, typeIdx map[string]int) (int, bool) {
	base := ""
	switch {
	case strings.HasPrefix(name, "New"):
		base = strings.TrimPrefix(name, "New")
	case strings.HasPrefix(name, "new"):
		base = strings.TrimPrefix(name, "new")
	default:
		return 0, false
	}
	i, ok := typeIdx[base]
	if !ok {
		return 0, false
	}
	if result := n.ChildByFieldName("result"); result != nil {
		if !strings.Contains(result.Content(source), base) {
			return 0, false
		}
	}
	return i, true
}

func visibilityOf(name string) unit.Visibility {
	if name == "" {
		return unit.VisibilityPrivate
	}
	r := rune(name[0])
	if r >= 'A' && r <= 'Z' {
		return unit.VisibilityPublic
	}
	return unit.VisibilityPrivate
}

func locationOf(f *goFile, n *sitter.Node) unit.Location {
	return unit.Location{
		File:      f.path,
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		StartCol:  int(n.StartPoint().Column) + 1,
	}
}

func siteID(f *goFile, n *sitter.Node) string {
	return fmt.Sprintf("%s:%d:%d", f.path, n.StartPoint().Row+1, n.StartPoint().Column+1)
}

// The "()" suffix keeps a function from colliding with a same-named type
// in the same package.
func typeID(pkg, name string) string   { return "go:" + pkg + "." + name }
func funcID(pkg, name string) string   { return "go:" + pkg + "." + name + "()" }
func methodID(pkg, t, m string) string { return "go:" + pkg + "." + t + "." + m }
