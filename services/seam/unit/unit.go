// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package unit defines the abstract node model that language-specific
// syntax adapters produce and the graph builder consumes.
//
// An AbstractUnit corresponds to one source file. It carries fully-resolved
// declarations, call sites, field accesses, and constructor bodies, plus the
// boundary flags (impure / global accessor / static) that the engine never
// infers on its own.
package unit

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DeclKind identifies the kind of a declared entity.
type DeclKind int

const (
	// KindType is a class, struct, or protocol declaration.
	KindType DeclKind = iota

	// KindMethod is a method, function, or constructor.
	KindMethod

	// KindField is a member variable.
	KindField

	// KindParameter is a formal parameter of a method.
	KindParameter

	// KindCallSite is a single invocation or instantiation expression.
	KindCallSite
)

// String returns the string representation of the DeclKind.
func (k DeclKind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindParameter:
		return "parameter"
	case KindCallSite:
		return "call_site"
	default:
		return "unknown"
	}
}

// Visibility describes how widely a declaration is accessible.
type Visibility int

const (
	// VisibilityPublic is accessible outside the declaring unit.
	VisibilityPublic Visibility = iota

	// VisibilityPackage is accessible within the declaring package/module.
	VisibilityPackage

	// VisibilityPrivate is accessible only within the declaring type.
	VisibilityPrivate
)

// String returns the string representation of the Visibility.
func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityPackage:
		return "package"
	case VisibilityPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Flags carries adapter-supplied boundary markers.
//
// The engine treats these as ground truth: it never infers impurity or
// globality from code shape, only from what the adapter tagged.
type Flags struct {
	// Impure marks an I/O, network, database, or otherwise side-effecting
	// boundary.
	Impure bool `json:"impure,omitempty"`

	// GlobalAccessor marks a static or shared-instance accessor
	// (module-level binding, static field getter, singleton accessor).
	GlobalAccessor bool `json:"global_accessor,omitempty"`

	// Static marks a method with no instance receiver.
	Static bool `json:"static,omitempty"`
}

// Location identifies a span in a source file. Edges carry locations so a
// downstream patch emitter can scope its edits.
type Location struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line,omitempty"`
	StartCol  int    `json:"start_col,omitempty"`
	EndCol    int    `json:"end_col,omitempty"`
}

// String returns file:line for log output.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.StartLine)
}

// Param is a formal parameter of a method or constructor.
type Param struct {
	Name string `json:"name" validate:"required"`

	// TypeRef is the resolved node ID of the parameter's type, or a bare
	// type name for primitives and types outside the analyzed set.
	TypeRef string `json:"type_ref,omitempty"`

	// Unresolved marks a parameter that cannot be supplied at existing
	// call sites (environment, config, or runtime-only values). Feeds the
	// IrritatingParameter rule.
	Unresolved bool `json:"unresolved,omitempty"`
}

// CallRef records one method invocation inside a method body.
type CallRef struct {
	// SiteID is the stable identifier of this call site.
	SiteID string `json:"site_id" validate:"required"`

	// TargetID is the resolved node ID of the callee method.
	TargetID string `json:"target_id" validate:"required"`

	Location Location `json:"location"`
}

// ConstructRef records one direct instantiation inside a method body.
type ConstructRef struct {
	// SiteID is the stable identifier of this construction site.
	SiteID string `json:"site_id" validate:"required"`

	// TargetTypeID is the resolved node ID of the instantiated type.
	TargetTypeID string `json:"target_type_id" validate:"required"`

	// ArgOf, when non-empty, names the construction site this result feeds
	// as an argument. Chains of ArgOf links are what the OnionParameter
	// rule walks.
	ArgOf string `json:"arg_of,omitempty"`

	Location Location `json:"location"`
}

// FieldRef records one field read or write.
type FieldRef struct {
	// TargetID is the resolved node ID of the accessed field.
	TargetID string `json:"target_id" validate:"required"`

	Location Location `json:"location"`
}

// MethodDecl is a method, function, or constructor declaration.
type MethodDecl struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`

	Visibility Visibility `json:"visibility"`
	Flags      Flags      `json:"flags"`

	// Constructor marks constructors and initializers. Only constructor
	// bodies may produce Constructs edges; the builder rejects the rest.
	Constructor bool `json:"constructor,omitempty"`

	// OverridePoint marks a method that subclasses can already override
	// (virtual, non-final). NakedStaticCall requires its absence.
	OverridePoint bool `json:"override_point,omitempty"`

	Params []Param `json:"params,omitempty" validate:"dive"`

	Calls      []CallRef      `json:"calls,omitempty" validate:"dive"`
	Constructs []ConstructRef `json:"constructs,omitempty" validate:"dive"`
	Reads      []FieldRef     `json:"reads,omitempty" validate:"dive"`
	Writes     []FieldRef     `json:"writes,omitempty" validate:"dive"`

	Location Location `json:"location"`
}

// FieldDecl is a member variable declaration.
type FieldDecl struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`

	Visibility Visibility `json:"visibility"`
	Mutable    bool       `json:"mutable,omitempty"`
	TypeRef    string     `json:"type_ref,omitempty"`

	Location Location `json:"location"`
}

// TypeDecl is a class, struct, or protocol declaration.
type TypeDecl struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`

	Visibility Visibility `json:"visibility"`
	Flags      Flags      `json:"flags"`

	// Protocol marks pure interface/protocol types with no concrete state.
	Protocol bool `json:"protocol,omitempty"`

	// Supertypes holds resolved node IDs of inherited types.
	Supertypes []string `json:"supertypes,omitempty"`

	// Protocols holds resolved node IDs of protocols this type conforms to.
	Protocols []string `json:"protocols,omitempty"`

	Fields  []FieldDecl  `json:"fields,omitempty" validate:"dive"`
	Methods []MethodDecl `json:"methods,omitempty" validate:"dive"`

	Location Location `json:"location"`
}

// AbstractUnit is the adapter's output for one source file.
type AbstractUnit struct {
	// Path is the source file path, unique within an analysis run.
	Path string `json:"path" validate:"required"`

	// External marks units describing code outside the analyzed module
	// boundary. Call sites in external units must never be rewritten; a
	// plan that would touch one degrades to a no-op.
	External bool `json:"external,omitempty"`

	Types []TypeDecl `json:"types,omitempty" validate:"dive"`

	// FreeMethods holds functions declared outside any type (module-level
	// functions, static helpers).
	FreeMethods []MethodDecl `json:"free_methods,omitempty" validate:"dive"`
}

var validate = validator.New()

// Validate checks structural invariants of the unit.
//
// Description:
//
//	Runs struct-tag validation (required IDs and names, recursive dive)
//	and the one semantic invariant adapters most often get wrong:
//	Constructs entries on non-constructor methods.
//
// Outputs:
//
//	error - Non-nil with the first violation found.
func (u *AbstractUnit) Validate() error {
	if u == nil {
		return fmt.Errorf("unit must not be nil")
	}
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("unit %s: %w", u.Path, err)
	}
	for i := range u.Types {
		for j := range u.Types[i].Methods {
			m := &u.Types[i].Methods[j]
			if len(m.Constructs) > 0 && !m.Constructor {
				return fmt.Errorf("unit %s: method %s has constructs but is not a constructor", u.Path, m.ID)
			}
		}
	}
	for i := range u.FreeMethods {
		m := &u.FreeMethods[i]
		if len(m.Constructs) > 0 && !m.Constructor {
			return fmt.Errorf("unit %s: function %s has constructs but is not a constructor", u.Path, m.ID)
		}
	}
	return nil
}
