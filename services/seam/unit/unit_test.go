// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package unit

import (
	"strings"
	"testing"
)

func validUnit() *AbstractUnit {
	return &AbstractUnit{
		Path: "svc/service.src",
		Types: []TypeDecl{{
			ID:   "t.Service",
			Name: "Service",
			Methods: []MethodDecl{{
				ID:          "m.Service.init",
				Name:        "init",
				Constructor: true,
				Params:      []Param{{Name: "cfg", TypeRef: "t.Config"}},
				Constructs: []ConstructRef{{
					SiteID:       "site.1",
					TargetTypeID: "t.Mailer",
				}},
			}},
		}},
	}
}

func TestValidateAcceptsWellFormedUnit(t *testing.T) {
	if err := validUnit().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRequiresPath(t *testing.T) {
	u := validUnit()
	u.Path = ""
	if err := u.Validate(); err == nil {
		t.Error("Validate() accepted a unit with no path")
	}
}

func TestValidateRequiresDeclIDs(t *testing.T) {
	u := validUnit()
	u.Types[0].ID = ""
	if err := u.Validate(); err == nil {
		t.Error("Validate() accepted a type with no ID")
	}

	u = validUnit()
	u.Types[0].Methods[0].Name = ""
	if err := u.Validate(); err == nil {
		t.Error("Validate() accepted a method with no name")
	}

	u = validUnit()
	u.Types[0].Methods[0].Params[0].Name = ""
	if err := u.Validate(); err == nil {
		t.Error("Validate() accepted a parameter with no name")
	}
}

func TestValidateRequiresConstructRefFields(t *testing.T) {
	u := validUnit()
	u.Types[0].Methods[0].Constructs[0].TargetTypeID = ""
	if err := u.Validate(); err == nil {
		t.Error("Validate() accepted a construct ref with no target")
	}
}

func TestValidateRejectsConstructsOnNonConstructor(t *testing.T) {
	u := validUnit()
	u.Types[0].Methods[0].Constructor = false
	err := u.Validate()
	if err == nil {
		t.Fatal("Validate() accepted constructs on a non-constructor")
	}
	if !strings.Contains(err.Error(), "not a constructor") {
		t.Errorf("error = %v, want the constructor invariant named", err)
	}

	// Same invariant for free-standing functions.
	u2 := &AbstractUnit{
		Path: "util/helpers.src",
		FreeMethods: []MethodDecl{{
			ID:   "m.helper",
			Name: "helper",
			Constructs: []ConstructRef{{
				SiteID:       "site.1",
				TargetTypeID: "t.Thing",
			}},
		}},
	}
	if err := u2.Validate(); err == nil {
		t.Error("Validate() accepted constructs on a free function")
	}
}

func TestValidateNilUnit(t *testing.T) {
	var u *AbstractUnit
	if err := u.Validate(); err == nil {
		t.Error("Validate() on nil unit succeeded")
	}
}

func TestDeclKindStrings(t *testing.T) {
	cases := map[DeclKind]string{
		KindType:     "type",
		KindMethod:   "method",
		KindField:    "field",
		KindCallSite: "call_site",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", int(kind), got, want)
		}
	}
}
