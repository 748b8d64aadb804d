package imports

import (
	"context"
	"errors"
	"testing"

	"github.com/emilycares/java-lsp/internal/index"
	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/symbol"
)

func buildTable(t *testing.T, source string) *Table {
	t.Helper()
	tree, err := parser.Parse([]byte(source), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(tree.Close)
	return Build(tree.RootNode(), []byte(source))
}

func universeWith(fqns ...string) *index.Universe {
	u := index.New()
	for _, fqn := range fqns {
		u.Put(&symbol.Class{
			FQN:  fqn,
			Name: symbol.SimpleName(fqn),
			Kind: symbol.KindClass,
			Mods: symbol.ModPublic,
			Tier: symbol.TierRuntime,
		})
	}
	return u
}

const sampleSource = `package com.acme.app;

import java.util.List;
import java.util.*;
import java.io.*;
import static java.util.Collections.emptyList;
import static java.lang.Math.*;

class App {}
`

func TestBuildTable(t *testing.T) {
	table := buildTable(t, sampleSource)

	if table.Package != "com.acme.app" {
		t.Errorf("package = %q", table.Package)
	}
	if table.Explicit["List"] != "java.util.List" {
		t.Errorf("explicit = %v", table.Explicit)
	}
	if len(table.Wildcards) != 2 || table.Wildcards[0] != "java.util" || table.Wildcards[1] != "java.io" {
		t.Errorf("wildcards = %v", table.Wildcards)
	}
	if table.StaticExplicit["emptyList"] != "java.util.Collections" {
		t.Errorf("static explicit = %v", table.StaticExplicit)
	}
	if len(table.StaticWildcards) != 1 || table.StaticWildcards[0] != "java.lang.Math" {
		t.Errorf("static wildcards = %v", table.StaticWildcards)
	}
	if table.SectionEnd == 0 {
		t.Error("section end not recorded")
	}
}

func TestResolveExplicitWinsOverWildcard(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith("java.util.List", "java.awt.List")

	fqn, err := table.Resolve("List", u, nil)
	if err != nil || fqn != "java.util.List" {
		t.Errorf("Resolve(List) = %q, %v", fqn, err)
	}
}

func TestResolveSamePackage(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith("com.acme.app.Helper")

	fqn, err := table.Resolve("Helper", u, nil)
	if err != nil || fqn != "com.acme.app.Helper" {
		t.Errorf("Resolve(Helper) = %q, %v", fqn, err)
	}
}

func TestResolveJavaLang(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith("java.lang.String")

	fqn, err := table.Resolve("String", u, nil)
	if err != nil || fqn != "java.lang.String" {
		t.Errorf("Resolve(String) = %q, %v", fqn, err)
	}
}

func TestResolveWildcard(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith("java.util.HashMap")

	fqn, err := table.Resolve("HashMap", u, nil)
	if err != nil || fqn != "java.util.HashMap" {
		t.Errorf("Resolve(HashMap) = %q, %v", fqn, err)
	}
}

func TestResolveWildcardAmbiguity(t *testing.T) {
	table := buildTable(t, sampleSource)
	// Both wildcard sources provide the same simple name.
	u := universeWith("java.util.Scanner", "java.io.Scanner")

	fqn, err := table.Resolve("Scanner", u, nil)
	var ambig *AmbiguousError
	if !errors.As(err, &ambig) {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}
	if len(ambig.Candidates) != 2 {
		t.Errorf("candidates = %v", ambig.Candidates)
	}
	// The sorted first candidate is still returned as a best effort.
	if fqn != "java.io.Scanner" {
		t.Errorf("best effort = %q", fqn)
	}
}

func TestResolveMiss(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith()

	fqn, err := table.Resolve("Nonexistent", u, nil)
	if fqn != "" || err != nil {
		t.Errorf("miss should be empty + nil error, got %q, %v", fqn, err)
	}
}

func TestResolveInheritedNested(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith("com.acme.lib.Base", "com.acme.lib.Base.Inner")
	enclosing := &symbol.Class{
		FQN:        "com.acme.app.App",
		Name:       "App",
		SuperClass: "com.acme.lib.Base",
	}
	u.Put(enclosing)

	fqn, err := table.Resolve("Inner", u, enclosing)
	if err != nil || fqn != "com.acme.lib.Base.Inner" {
		t.Errorf("Resolve(Inner) = %q, %v", fqn, err)
	}
}

func putWithStatics(u *index.Universe, fqn string, statics ...string) {
	cls := &symbol.Class{
		FQN:  fqn,
		Name: symbol.SimpleName(fqn),
		Kind: symbol.KindClass,
		Mods: symbol.ModPublic,
		Tier: symbol.TierRuntime,
	}
	for _, name := range statics {
		cls.Methods = append(cls.Methods, symbol.Member{
			Owner: fqn,
			Name:  name,
			Kind:  symbol.KindMethod,
			Mods:  symbol.ModPublic | symbol.ModStatic,
			Type:  "int",
		})
	}
	u.Put(cls)
}

func TestStaticOwner(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := index.New()
	putWithStatics(u, "java.util.Collections", "emptyList")
	putWithStatics(u, "java.lang.Math", "max")
	ctx := context.Background()

	owner, err := table.StaticOwner(ctx, "emptyList", u)
	if err != nil || owner != "java.util.Collections" {
		t.Errorf("StaticOwner(emptyList) = %q, %v", owner, err)
	}
	owner, err = table.StaticOwner(ctx, "max", u)
	if err != nil || owner != "java.lang.Math" {
		t.Errorf("StaticOwner(max) = %q, %v", owner, err)
	}
}

func TestStaticOwnerWildcardNeedsDeclaringMember(t *testing.T) {
	src := `package com.acme.app;

import static java.lang.Math.*;
import static java.util.Collections.*;

class App {}
`
	table := buildTable(t, src)
	u := index.New()
	putWithStatics(u, "java.lang.Math", "max", "min")
	putWithStatics(u, "java.util.Collections", "emptyList", "min")
	// An instance member with a colliding name must not count.
	collections, _ := u.LookupCachedOnly("java.util.Collections")
	collections.Methods = append(collections.Methods, symbol.Member{
		Owner: collections.FQN,
		Name:  "max",
		Kind:  symbol.KindMethod,
		Mods:  symbol.ModPublic,
		Type:  "int",
	})
	ctx := context.Background()

	owner, err := table.StaticOwner(ctx, "max", u)
	if err != nil || owner != "java.lang.Math" {
		t.Errorf("StaticOwner(max) = %q, %v", owner, err)
	}
	owner, err = table.StaticOwner(ctx, "emptyList", u)
	if err != nil || owner != "java.util.Collections" {
		t.Errorf("StaticOwner(emptyList) = %q, %v", owner, err)
	}

	owner, err = table.StaticOwner(ctx, "min", u)
	var ambig *AmbiguousError
	if !errors.As(err, &ambig) {
		t.Fatalf("both classes declare min, want ambiguity, got %q, %v", owner, err)
	}
	if len(ambig.Candidates) != 2 {
		t.Errorf("candidates = %v", ambig.Candidates)
	}
	if owner != "java.lang.Math" {
		t.Errorf("best effort = %q", owner)
	}

	if owner, err := table.StaticOwner(ctx, "bogus", u); owner != "" || err != nil {
		t.Errorf("unknown member should miss, got %q, %v", owner, err)
	}
}

func TestAmbiguityDiagnostics(t *testing.T) {
	table := buildTable(t, sampleSource)
	u := universeWith("java.util.Scanner", "java.io.Scanner", "java.util.HashMap")

	diags := table.AmbiguityDiagnostics([]byte(sampleSource), u)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", diags)
	}
	if diags[0].Severity != 2 {
		t.Errorf("severity = %v", diags[0].Severity)
	}
}
