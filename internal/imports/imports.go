// Package imports builds the per-compilation-unit import table and resolves
// simple type names against it.
package imports

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/index"
	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/position"
	"github.com/emilycares/java-lsp/internal/symbol"
)

// AmbiguousError reports a simple name importable from more than one
// wildcard source. Resolution surfaces it instead of picking one arbitrarily.
type AmbiguousError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous reference %q: candidates %s", e.Name, strings.Join(e.Candidates, ", "))
}

// Table is the import state of one compilation unit. Built once per unit and
// rebuilt whenever the unit's import section changes; the owning document
// keys it by version.
type Table struct {
	Package         string
	Explicit        map[string]string // simple name -> fully-qualified name
	StaticExplicit  map[string]string // imported static member -> owning class FQN
	Wildcards       []string          // on-demand package prefixes
	StaticWildcards []string          // static on-demand class FQNs

	// SectionEnd is the byte offset where the import section stops; an edit
	// before this point invalidates the table.
	SectionEnd uint
}

// Build extracts the package declaration and all import declarations from a
// parsed compilation unit.
func Build(root *tree_sitter.Node, source []byte) *Table {
	t := &Table{
		Explicit:       make(map[string]string),
		StaticExplicit: make(map[string]string),
	}

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "package_declaration":
			for i := uint(0); i < node.NamedChildCount(); i++ {
				child := node.NamedChild(i)
				if child != nil && (child.Kind() == "scoped_identifier" || child.Kind() == "identifier") {
					t.Package = parser.NodeText(child, source)
				}
			}
			t.sectionEndAtLeast(node.EndByte())
			return false
		case "import_declaration":
			t.addImport(node, source)
			t.sectionEndAtLeast(node.EndByte())
			return false
		case "class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration":
			return false // imports cannot appear past the first type
		}
		return true
	})
	return t
}

func (t *Table) sectionEndAtLeast(end uint) {
	if end > t.SectionEnd {
		t.SectionEnd = end
	}
}

// addImport handles the four declaration shapes:
//
//	import a.b.C;             explicit
//	import a.b.*;             wildcard
//	import static a.b.C.m;    static explicit
//	import static a.b.C.*;    static wildcard
func (t *Table) addImport(node *tree_sitter.Node, source []byte) {
	isStatic := false
	wildcard := false
	var path string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "static":
			isStatic = true
		case "asterisk":
			wildcard = true
		case "scoped_identifier", "identifier":
			path = parser.NodeText(child, source)
		}
	}
	if path == "" {
		return
	}

	switch {
	case isStatic && wildcard:
		t.StaticWildcards = append(t.StaticWildcards, path)
	case isStatic:
		owner, member, ok := splitLast(path)
		if ok {
			t.StaticExplicit[member] = owner
		}
	case wildcard:
		t.Wildcards = append(t.Wildcards, path)
	default:
		t.Explicit[symbol.SimpleName(path)] = path
	}
}

func splitLast(path string) (string, string, bool) {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

// Resolve maps a simple type name to a fully-qualified name. Order:
// explicit import, same-package type, supertype-inherited nested type,
// implicit java.lang, then wildcard imports. Two wildcard sources providing
// the same name is an AmbiguousError, not a silent pick. A miss everywhere
// returns ("", nil).
func (t *Table) Resolve(name string, u *index.Universe, enclosing *symbol.Class) (string, error) {
	if name == "" {
		return "", nil
	}
	if strings.Contains(name, ".") {
		// Already qualified; trust it if known.
		if u.Contains(name) {
			return name, nil
		}
		return "", nil
	}

	if fqn, ok := t.Explicit[name]; ok {
		return fqn, nil
	}

	if t.Package != "" {
		if candidate := t.Package + "." + name; u.Contains(candidate) {
			return candidate, nil
		}
	} else if u.Contains(name) {
		return name, nil // default package
	}

	if enclosing != nil {
		if fqn := resolveInheritedNested(name, u, enclosing); fqn != "" {
			return fqn, nil
		}
	}

	if candidate := "java.lang." + name; u.Contains(candidate) {
		return candidate, nil
	}

	var matches []string
	for _, prefix := range t.Wildcards {
		if candidate := prefix + "." + name; u.Contains(candidate) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return matches[0], &AmbiguousError{Name: name, Candidates: matches}
}

// resolveInheritedNested looks for a nested type declared on the enclosing
// class or one of its supertypes: class B extends A may refer to A.Inner by
// simple name. The walk is depth-capped like every hierarchy traversal.
func resolveInheritedNested(name string, u *index.Universe, enclosing *symbol.Class) string {
	current := enclosing
	for depth := 0; current != nil && depth < 16; depth++ {
		if candidate := current.FQN + "." + name; u.Contains(candidate) {
			return candidate
		}
		if current.SuperClass == "" || current.SuperClass == current.FQN {
			return ""
		}
		next, ok := u.LookupCachedOnly(current.SuperClass)
		if !ok {
			return ""
		}
		current = next
	}
	return ""
}

// StaticOwner resolves a statically-imported member name to the class that
// provides it. Explicit static imports win over static wildcards; a wildcard
// class is a candidate only when it actually has a static member by that
// name, and ambiguity across the remaining candidates is reported.
func (t *Table) StaticOwner(ctx context.Context, member string, u *index.Universe) (string, error) {
	if owner, ok := t.StaticExplicit[member]; ok {
		return owner, nil
	}
	var matches []string
	for _, owner := range t.StaticWildcards {
		if hasStaticMember(ctx, u, owner, member) {
			matches = append(matches, owner)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return matches[0], &AmbiguousError{Name: member, Candidates: matches}
}

func hasStaticMember(ctx context.Context, u *index.Universe, owner, member string) bool {
	if !u.Contains(owner) {
		return false
	}
	for _, m := range u.MembersOf(ctx, owner) {
		if m.Name == member && m.Mods.IsStatic() {
			return true
		}
	}
	return false
}

// AmbiguityDiagnostics flags every wildcard-importable simple name that more
// than one wildcard source provides, anchored to the import section.
func (t *Table) AmbiguityDiagnostics(source []byte, u *index.Universe) []position.Diagnostic {
	if len(t.Wildcards) < 2 {
		return nil
	}
	providers := make(map[string][]string)
	for _, prefix := range t.Wildcards {
		for _, fqn := range u.TypesInPackage(prefix) {
			n := symbol.SimpleName(fqn)
			providers[n] = append(providers[n], fqn)
		}
	}
	sectionRange := position.Range{End: position.FromByteOffset(source, t.SectionEnd)}
	var out []position.Diagnostic
	var names []string
	for n, fqns := range providers {
		if len(fqns) > 1 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fqns := providers[n]
		sort.Strings(fqns)
		out = append(out, position.Diagnostic{
			Range:    sectionRange,
			Severity: position.SeverityWarning,
			Message:  (&AmbiguousError{Name: n, Candidates: fqns}).Error(),
		})
	}
	return out
}
