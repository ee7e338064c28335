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
	"testing"

	"github.com/seamkit/seamkit/services/seam/unit"
)

// writeGoTree lays out Go source fixtures under a temp dir, keyed by
// slash-separated relative path.
func writeGoTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating fixture dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	return dir
}

func loadGoTree(t *testing.T, files map[string]string, opts ...GoSourceOption) []*unit.AbstractUnit {
	t.Helper()
	units, err := NewGoSourceAdapter(nil, opts...).Load(context.Background(), writeGoTree(t, files))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return units
}

func findType(t *testing.T, u *unit.AbstractUnit, name string) *unit.TypeDecl {
	t.Helper()
	for i := range u.Types {
		if u.Types[i].Name == name {
			return &u.Types[i]
		}
	}
	t.Fatalf("type %s not extracted from %s", name, u.Path)
	return nil
}

func findMethod(t *testing.T, methods []unit.MethodDecl, name string) *unit.MethodDecl {
	t.Helper()
	for i := range methods {
		if methods[i].Name == name {
			return &methods[i]
		}
	}
	t.Fatalf("method %s not extracted", name)
	return nil
}

func TestGoSourceDetectsConstructor(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"server.go": `package app

type Config struct {
	Host string
}

type Server struct {
	cfg Config
}

func NewConfig() Config {
	return Config{Host: "localhost"}
}

func NewServer() *Server {
	return &Server{cfg: NewConfig()}
}
`,
	})
	if len(units) != 1 {
		t.Fatalf("units = %d, want 1", len(units))
	}
	u := units[0]
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	server := findType(t, u, "Server")
	if server.ID != "go:app.Server" {
		t.Errorf("type ID = %q, want go:app.Server", server.ID)
	}
	ctor := findMethod(t, server.Methods, "NewServer")
	if !ctor.Constructor {
		t.Error("NewServer not marked as a constructor")
	}

	targets := map[string]bool{}
	for _, c := range ctor.Constructs {
		targets[c.TargetTypeID] = true
	}
	if !targets["go:app.Server"] {
		t.Errorf("constructs = %v, want the Server literal recorded", targets)
	}
	if !targets["go:app.Config"] {
		t.Errorf("constructs = %v, want the NewConfig call recorded as a construction", targets)
	}

	cfgCtor := findMethod(t, findType(t, u, "Config").Methods, "NewConfig")
	if !cfgCtor.Constructor || len(cfgCtor.Constructs) != 1 {
		t.Errorf("NewConfig constructor = %v constructs = %d, want true and 1",
			cfgCtor.Constructor, len(cfgCtor.Constructs))
	}
	if len(u.FreeMethods) != 0 {
		t.Errorf("free methods = %d, want constructors attached to their types", len(u.FreeMethods))
	}
}

func TestGoSourceMethodBodyLiteralIsNotAConstruction(t *testing.T) {
	// A composite literal inside an ordinary method must not surface as a
	// construction: that would fail the unit's constructor invariant and
	// poison the whole run for one file's worth of syntax.
	units := loadGoTree(t, map[string]string{
		"server.go": `package app

type Config struct {
	Host string
}

type Server struct {
	cfg Config
}

func (s *Server) Reload() {
	c := Config{Host: "localhost"}
	s.cfg = c
}
`,
	})
	if len(units) != 1 {
		t.Fatalf("units = %d, want 1", len(units))
	}
	u := units[0]
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	reload := findMethod(t, findType(t, u, "Server").Methods, "Reload")
	if reload.Constructor {
		t.Error("Reload marked as a constructor")
	}
	if len(reload.Constructs) != 0 {
		t.Errorf("constructs = %v, want none for a plain method body", reload.Constructs)
	}
}

func TestGoSourceConstructorCallInPlainFunctionIsACall(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"boot.go": `package app

type Config struct {
	Host string
}

func NewConfig() Config {
	return Config{}
}

func Reboot() {
	cfg := NewConfig()
	_ = cfg
}
`,
	})
	u := units[0]
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	reboot := findMethod(t, u.FreeMethods, "Reboot")
	if !reboot.Flags.Static {
		t.Error("free function not flagged static")
	}
	if len(reboot.Constructs) != 0 {
		t.Errorf("constructs = %v, want the NewConfig call kept as a call", reboot.Constructs)
	}
	if len(reboot.Calls) != 1 || reboot.Calls[0].TargetID != "go:app.NewConfig()" {
		t.Errorf("calls = %v, want one call to go:app.NewConfig()", reboot.Calls)
	}
}

func TestGoSourceImpureFlagFromImportPrefix(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"loader.go": `package app

import "os"

type Loader struct{}

func (l *Loader) Fetch(path string) ([]byte, error) {
	return os.ReadFile(path)
}
`,
	})
	fetch := findMethod(t, findType(t, units[0], "Loader").Methods, "Fetch")
	if !fetch.Flags.Impure {
		t.Error("call through os package did not mark the method impure")
	}
}

func TestGoSourceInterfaceBecomesProtocol(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"store.go": `package app

type Store interface {
	Get(key string) (string, bool)
	Put(key, value string)
}
`,
	})
	store := findType(t, units[0], "Store")
	if !store.Protocol {
		t.Error("interface type not marked as a protocol")
	}
	if len(store.Methods) != 2 {
		t.Fatalf("protocol methods = %d, want 2", len(store.Methods))
	}
	for _, m := range store.Methods {
		if !m.OverridePoint {
			t.Errorf("protocol method %s not an override point", m.Name)
		}
	}
	if store.Methods[0].ID != "go:app.Store.Get" {
		t.Errorf("protocol method ID = %q, want go:app.Store.Get", store.Methods[0].ID)
	}
}

func TestGoSourceParameterResolution(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"apply.go": `package app

type Config struct {
	Host string
}

func Apply(c *Config, w Writer) {}
`,
	})
	apply := findMethod(t, units[0].FreeMethods, "Apply")
	if len(apply.Params) != 2 {
		t.Fatalf("params = %d, want 2", len(apply.Params))
	}
	if apply.Params[0].Unresolved || apply.Params[0].TypeRef != "go:app.Config" {
		t.Errorf("param c = %+v, want resolved to go:app.Config", apply.Params[0])
	}
	if !apply.Params[1].Unresolved {
		t.Errorf("param w = %+v, want unresolved for an undeclared type", apply.Params[1])
	}
}

func TestGoSourceGlobalAccessorName(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"registry.go": `package app

type Registry struct{}

func Instance() *Registry {
	return nil
}
`,
	})
	inst := findMethod(t, units[0].FreeMethods, "Instance")
	if !inst.Flags.GlobalAccessor {
		t.Error("Instance not flagged as a global accessor")
	}
}

func TestGoSourceSkipsVendorTestsAndHiddenDirs(t *testing.T) {
	units := loadGoTree(t, map[string]string{
		"app/app.go":         "package app\n\ntype App struct{}\n",
		"app/app_test.go":    "package app\n\nfunc helper() {}\n",
		"vendor/dep/dep.go":  "package dep\n\ntype Dep struct{}\n",
		"testdata/fix.go":    "package fix\n\ntype Fix struct{}\n",
		".cache/stale.go":    "package stale\n\ntype Stale struct{}\n",
		"_archive/old.go":    "package old\n\ntype Old struct{}\n",
		"app/notes.markdown": "not go\n",
	})
	if len(units) != 1 {
		paths := make([]string, len(units))
		for i, u := range units {
			paths[i] = u.Path
		}
		t.Fatalf("units = %v, want only app/app.go", paths)
	}
	if units[0].Path != filepath.Join("app", "app.go") {
		t.Errorf("path = %q, want app/app.go", units[0].Path)
	}
}

func TestGoSourceTypeAndFunctionIDsDistinct(t *testing.T) {
	if typeID("app", "Report") == funcID("app", "Report") {
		t.Fatalf("same-named type and function share ID %q", typeID("app", "Report"))
	}
	if got, want := funcID("app", "Report"), "go:app.Report()"; got != want {
		t.Errorf("funcID = %q, want %q", got, want)
	}
	if got, want := methodID("app", "Report", "Render"), "go:app.Report.Render"; got != want {
		t.Errorf("methodID = %q, want %q", got, want)
	}
}
