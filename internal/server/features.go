package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/document"
	"github.com/emilycares/java-lsp/internal/imports"
	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/position"
	"github.com/emilycares/java-lsp/internal/scope"
	"github.com/emilycares/java-lsp/internal/symbol"
	"github.com/emilycares/java-lsp/internal/typeres"
)

// ErrStale is returned when the document moved to a newer version while a
// request was resolving. The client retries against the new revision.
var ErrStale = errors.New("document changed during resolution")

var typeDeclAncestors = []string{
	"class_declaration", "interface_declaration", "enum_declaration",
	"record_declaration", "annotation_type_declaration",
}

// HoverResult is the text shown for the symbol under the cursor.
type HoverResult struct {
	Contents string
	Range    position.Range
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label  string
	Detail string
	Kind   symbol.Kind
}

// Location points into a project source file.
type Location struct {
	Path string
	Line int
}

// Hover resolves the chain under the cursor and renders its type or member
// signature.
func (s *Server) Hover(ctx context.Context, uri string, at position.Point) (*HoverResult, error) {
	doc, ok := s.document(uri)
	if !ok {
		return nil, fmt.Errorf("document %s is not open", uri)
	}
	source, tree, version := doc.Snapshot()
	if tree == nil {
		return nil, nil
	}
	defer tree.Close()
	offset := position.ByteOffset(source, at)
	node := parser.SmallestNodeAt(tree.RootNode(), offset)
	if node == nil {
		return nil, nil
	}

	eng := s.engineAt(doc, source, tree.RootNode(), offset, version)
	res := eng.TypeOf(ctx, node)
	if res.Cancelled {
		return nil, ErrStale
	}
	if res.Unknown {
		return nil, nil
	}

	var contents string
	switch {
	case res.Member != nil:
		contents = memberSignature(res.Member)
		if res.Member.Owner != "" {
			contents += "\n" + res.Member.Owner
		}
	case res.TypeFQN != "":
		contents = s.typeSignature(ctx, res.TypeFQN)
	default:
		return nil, nil
	}
	return &HoverResult{
		Contents: contents,
		Range:    position.NodeRange(source, node),
	}, nil
}

// Complete lists candidates at the cursor. After a dot the receiver chain is
// resolved and its members offered; otherwise in-scope variables, enclosing
// members and visible type names are offered. Candidates sort by confidence,
// then alphabetically.
func (s *Server) Complete(ctx context.Context, uri string, at position.Point) ([]CompletionItem, error) {
	doc, ok := s.document(uri)
	if !ok {
		return nil, fmt.Errorf("document %s is not open", uri)
	}
	source, tree, version := doc.Snapshot()
	if tree == nil {
		return nil, nil
	}
	defer tree.Close()
	offset := position.ByteOffset(source, at)
	prefix, prefixStart := completionPrefix(source, offset)

	eng := s.engineAt(doc, source, tree.RootNode(), offset, version)

	if prefixStart > 0 && source[prefixStart-1] == '.' {
		return s.completeMembers(ctx, eng, tree.RootNode(), source, prefix, prefixStart)
	}
	return s.completeUnqualified(ctx, eng, prefix, offset)
}

// completeMembers resolves the chain ending just before the dot and offers
// the receiver's members.
func (s *Server) completeMembers(ctx context.Context, eng *typeres.Engine, root *tree_sitter.Node, source []byte, prefix string, prefixStart uint) ([]CompletionItem, error) {
	recvNode := parser.SmallestNodeAt(root, prefixStart-2)
	if recvNode == nil {
		return nil, nil
	}
	steps := typeres.ExtractChain(recvNode, source)
	res := eng.ResolveChainToOffset(ctx, steps, prefixStart)
	if res.Cancelled {
		return nil, ErrStale
	}
	if res.Unknown || res.TypeFQN == "" {
		return nil, nil
	}

	type scored struct {
		item CompletionItem
		conf int
	}
	var out []scored
	seen := make(map[string]bool)
	for _, m := range s.Universe.MembersOf(ctx, res.TypeFQN) {
		if m.Kind == symbol.KindConstructor {
			continue
		}
		if res.IsType && !m.Mods.IsStatic() {
			continue
		}
		if m.Mods.IsPrivate() {
			continue
		}
		if prefix != "" && !strings.HasPrefix(m.Name, prefix) {
			continue
		}
		label := m.Name
		if m.Kind == symbol.KindMethod && seen[label+m.Descriptor()] {
			continue
		}
		seen[label+m.Descriptor()] = true
		conf := 1
		if m.Owner == res.TypeFQN {
			conf = 2 // declared on the receiver itself
		}
		out = append(out, scored{
			item: CompletionItem{Label: label, Detail: memberSignature(&m), Kind: m.Kind},
			conf: conf,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].conf != out[j].conf {
			return out[i].conf > out[j].conf
		}
		return out[i].item.Label < out[j].item.Label
	})
	items := make([]CompletionItem, len(out))
	for i, c := range out {
		items[i] = c.item
	}
	return items, nil
}

// completeUnqualified offers scope bindings, enclosing members, and type
// names visible through imports or the same package.
func (s *Server) completeUnqualified(ctx context.Context, eng *typeres.Engine, prefix string, offset uint) ([]CompletionItem, error) {
	var items []CompletionItem
	seen := make(map[string]bool)
	add := func(item CompletionItem) {
		if seen[item.Label] {
			return
		}
		if prefix != "" && !strings.HasPrefix(item.Label, prefix) {
			return
		}
		seen[item.Label] = true
		items = append(items, item)
	}

	if eng.Scopes != nil {
		for sc := eng.Scopes; sc != nil; {
			inner := sc
			sc = nil
			for _, b := range inner.Bindings {
				if b.DeclPoint <= offset {
					add(CompletionItem{Label: b.Name, Detail: b.Type, Kind: symbol.KindField})
				}
			}
			for _, child := range inner.Children {
				if child.Start <= offset && offset <= child.End {
					sc = child
					break
				}
			}
		}
	}

	if eng.Enclosing != nil {
		for _, m := range s.Universe.MembersOf(ctx, eng.Enclosing.FQN) {
			if m.Kind == symbol.KindConstructor {
				continue
			}
			if eng.Static && !m.Mods.IsStatic() {
				continue
			}
			add(CompletionItem{Label: m.Name, Detail: memberSignature(&m), Kind: m.Kind})
		}
	}

	if eng.Imports != nil {
		for name, fqn := range eng.Imports.Explicit {
			add(CompletionItem{Label: name, Detail: fqn, Kind: symbol.KindClass})
		}
		if eng.Imports.Package != "" {
			for _, fqn := range s.Universe.TypesInPackage(eng.Imports.Package) {
				add(CompletionItem{Label: symbol.SimpleName(fqn), Detail: fqn, Kind: symbol.KindClass})
			}
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

// Definition maps the symbol under the cursor to its declaration site.
// Only project-tier symbols carry source locations; a dependency or runtime
// hit returns nil.
func (s *Server) Definition(ctx context.Context, uri string, at position.Point) (*Location, error) {
	doc, ok := s.document(uri)
	if !ok {
		return nil, fmt.Errorf("document %s is not open", uri)
	}
	source, tree, version := doc.Snapshot()
	if tree == nil {
		return nil, nil
	}
	defer tree.Close()
	offset := position.ByteOffset(source, at)
	node := parser.SmallestNodeAt(tree.RootNode(), offset)
	if node == nil {
		return nil, nil
	}

	eng := s.engineAt(doc, source, tree.RootNode(), offset, version)
	res := eng.TypeOf(ctx, node)
	if res.Cancelled {
		return nil, ErrStale
	}
	if res.Unknown {
		return nil, nil
	}

	if res.Member != nil {
		owner, ok := s.Universe.Lookup(ctx, res.Member.Owner)
		if !ok || owner.Tier != symbol.TierProject || owner.SourcePath == "" {
			return nil, nil
		}
		return &Location{Path: owner.SourcePath, Line: res.Member.Line}, nil
	}
	if res.TypeFQN != "" {
		cls, ok := s.Universe.Lookup(ctx, symbol.Erase(strings.TrimSuffix(res.TypeFQN, "[]")))
		if !ok || cls.Tier != symbol.TierProject || cls.SourcePath == "" {
			return nil, nil
		}
		return &Location{Path: cls.SourcePath, Line: cls.Line}, nil
	}
	return nil, nil
}

// Diagnostics analyses one document: syntax errors, ambiguous imports,
// unresolvable or ambiguous call chains, plus index findings anchored to
// this file.
func (s *Server) Diagnostics(ctx context.Context, uri string) ([]position.Diagnostic, error) {
	doc, ok := s.document(uri)
	if !ok {
		return nil, fmt.Errorf("document %s is not open", uri)
	}
	source, tree, version := doc.Snapshot()
	if tree == nil {
		return nil, nil
	}
	defer tree.Close()
	root := tree.RootNode()

	var out []position.Diagnostic
	out = append(out, syntaxDiagnostics(root, source)...)

	table := imports.Build(root, source)
	out = append(out, table.AmbiguityDiagnostics(source, s.Universe)...)

	eng := s.engineAt(doc, source, root, 0, version)
	stale := false
	for _, chainRoot := range chainRoots(root) {
		res := eng.TypeOf(ctx, chainRoot)
		if res.Cancelled {
			stale = true
			break
		}
	}
	out = append(out, eng.Diagnostics()...)
	if stale {
		return out, ErrStale
	}

	path := uriPath(uri)
	for _, d := range s.Universe.Diagnostics() {
		cls, ok := s.Universe.LookupCachedOnly(d.FQN)
		if !ok || cls.SourcePath != path {
			continue
		}
		line := uint32(cls.Line)
		out = append(out, position.Diagnostic{
			Range:    position.Range{Start: position.Point{Line: line}, End: position.Point{Line: line}},
			Severity: position.SeverityWarning,
			Message:  d.Message,
		})
	}
	return out, nil
}

// engineAt builds a per-request resolution engine for one document revision.
func (s *Server) engineAt(doc *document.Document, source []byte, root *tree_sitter.Node, offset uint, version int32) *typeres.Engine {
	table := imports.Build(root, source)
	scopes := scope.Build(root, source)

	var enclosing *symbol.Class
	var static bool
	if node := parser.SmallestNodeAt(root, offset); node != nil {
		enclosing = s.enclosingClass(node, source, table.Package)
		static = inStaticContext(node, source)
	}

	return &typeres.Engine{
		Universe:  s.Universe,
		Imports:   table,
		Scopes:    scopes,
		Source:    source,
		Enclosing: enclosing,
		Static:    static,
		Stale: func() bool {
			return doc.Version() != version
		},
	}
}

// enclosingClass climbs to the type declarations containing node and looks
// the innermost one up in the universe.
func (s *Server) enclosingClass(node *tree_sitter.Node, source []byte, pkg string) *symbol.Class {
	var names []string
	for cur := node; cur != nil; cur = cur.Parent() {
		for _, k := range typeDeclAncestors {
			if cur.Kind() == k {
				if nameNode := cur.ChildByFieldName("name"); nameNode != nil {
					names = append([]string{parser.NodeText(nameNode, source)}, names...)
				}
				break
			}
		}
	}
	if len(names) == 0 {
		return nil
	}
	fqn := strings.Join(names, ".")
	if pkg != "" {
		fqn = pkg + "." + fqn
	}
	cls, _ := s.Universe.LookupCachedOnly(fqn)
	return cls
}

// inStaticContext reports whether the position sits in a static method,
// static field initializer or static initializer block.
func inStaticContext(node *tree_sitter.Node, source []byte) bool {
	for cur := node; cur != nil; cur = cur.Parent() {
		switch cur.Kind() {
		case "static_initializer":
			return true
		case "method_declaration", "field_declaration", "constructor_declaration":
			for i := uint(0); i < cur.ChildCount(); i++ {
				child := cur.Child(i)
				if child == nil || child.Kind() != "modifiers" {
					continue
				}
				if strings.Contains(parser.NodeText(child, source), "static") {
					return true
				}
			}
			return false
		}
	}
	return false
}

// chainRoots collects the outermost expression node of every call chain in
// the tree, so each chain is resolved once.
func chainRoots(root *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "method_invocation", "field_access":
			out = append(out, n)
			return false // inner segments belong to this chain
		}
		return true
	})
	return out
}

func syntaxDiagnostics(root *tree_sitter.Node, source []byte) []position.Diagnostic {
	if !root.HasError() {
		return nil
	}
	var out []position.Diagnostic
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if n.IsError() {
			out = append(out, position.Diagnostic{
				Range:    position.NodeRange(source, n),
				Severity: position.SeverityError,
				Message:  "syntax error",
			})
			return false
		}
		if n.IsMissing() {
			out = append(out, position.Diagnostic{
				Range:    position.NodeRange(source, n),
				Severity: position.SeverityError,
				Message:  fmt.Sprintf("missing %s", n.Kind()),
			})
			return false
		}
		return n.HasError()
	})
	return out
}

// memberSignature renders a Java-like signature for hovers and completion
// detail text.
func memberSignature(m *symbol.Member) string {
	var b strings.Builder
	if mods := m.Mods.String(); mods != "" {
		b.WriteString(mods)
		b.WriteByte(' ')
	}
	switch m.Kind {
	case symbol.KindField:
		b.WriteString(m.Type)
		b.WriteByte(' ')
		b.WriteString(m.Name)
	case symbol.KindConstructor:
		b.WriteString(symbol.SimpleName(m.Owner))
		writeParams(&b, m)
	default:
		b.WriteString(m.Type)
		b.WriteByte(' ')
		b.WriteString(m.Name)
		writeParams(&b, m)
	}
	return b.String()
}

func writeParams(b *strings.Builder, m *symbol.Member) {
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		typeText := p.Type
		if m.Varargs && i == len(m.Params)-1 {
			typeText = strings.TrimSuffix(typeText, "[]") + "..."
		}
		b.WriteString(typeText)
		if p.Name != "" {
			b.WriteByte(' ')
			b.WriteString(p.Name)
		}
	}
	b.WriteByte(')')
}

func (s *Server) typeSignature(ctx context.Context, typeFQN string) string {
	base := symbol.Erase(strings.TrimSuffix(typeFQN, "[]"))
	cls, ok := s.Universe.Lookup(ctx, base)
	if !ok {
		return typeFQN
	}
	var b strings.Builder
	switch cls.Kind {
	case symbol.KindInterface:
		b.WriteString("interface ")
	case symbol.KindEnum:
		b.WriteString("enum ")
	case symbol.KindRecord:
		b.WriteString("record ")
	case symbol.KindAnnotation:
		b.WriteString("@interface ")
	default:
		b.WriteString("class ")
	}
	b.WriteString(cls.FQN)
	if len(cls.TypeParams) > 0 {
		b.WriteByte('<')
		b.WriteString(strings.Join(cls.TypeParams, ", "))
		b.WriteByte('>')
	}
	if cls.SuperClass != "" && cls.SuperClass != "java.lang.Object" {
		b.WriteString(" extends ")
		b.WriteString(cls.SuperClass)
	}
	return b.String()
}

// completionPrefix scans backwards from the cursor over identifier
// characters.
func completionPrefix(source []byte, offset uint) (string, uint) {
	if offset > uint(len(source)) {
		offset = uint(len(source))
	}
	start := offset
	for start > 0 {
		c := source[start-1]
		if c == '_' || c == '$' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			start--
			continue
		}
		break
	}
	return string(source[start:offset]), start
}
