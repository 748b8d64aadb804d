// Package scope builds the variable-visibility tree for a compilation unit
// and answers "which binding does this name refer to at this position".
//
// Shadowing is innermost-wins; a local is visible only at or after its
// declaration point within its block, while parameters and fields are visible
// throughout their scope.
package scope

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/symbol"
)

// BindingKind classifies how the name was introduced.
type BindingKind int

const (
	KindField BindingKind = iota
	KindParam
	KindLocal
	KindLambdaParam
	KindCatchParam
)

// Binding is one name in scope. Type is the declared type text ("List<String>",
// "int", or "" when a lambda parameter's type is inferred from context).
type Binding struct {
	Name string
	Type string
	Kind BindingKind

	// DeclPoint is the byte offset from which the binding is visible within
	// its scope. Zero for parameters and fields.
	DeclPoint uint

	// EffectivelyFinal is true while no reassignment has been seen; lambdas
	// may only capture bindings that stay effectively final.
	EffectivelyFinal bool
}

// Scope is a nested visibility region.
type Scope struct {
	Start, End uint
	Bindings   []Binding
	Children   []*Scope
	parent     *Scope
}

// Build constructs the scope tree for a parsed compilation unit.
func Build(root *tree_sitter.Node, source []byte) *Scope {
	top := &Scope{Start: root.StartByte(), End: root.EndByte()}
	collect(root, source, top)
	markReassignments(root, source, top)
	return top
}

// collect walks the tree, opening child scopes at scope-introducing nodes.
func collect(node *tree_sitter.Node, source []byte, current *Scope) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "method_declaration", "constructor_declaration":
			s := newChild(current, child)
			addFormalParams(child.ChildByFieldName("parameters"), source, s, KindParam)
			collect(child, source, s)

		case "lambda_expression":
			s := newChild(current, child)
			addLambdaParams(child.ChildByFieldName("parameters"), source, s)
			collect(child, source, s)

		case "block", "switch_block":
			s := newChild(current, child)
			collect(child, source, s)

		case "for_statement":
			// The init declaration scopes over the whole statement.
			s := newChild(current, child)
			collect(child, source, s)

		case "enhanced_for_statement":
			s := newChild(current, child)
			typeNode := child.ChildByFieldName("type")
			nameNode := child.ChildByFieldName("name")
			if typeNode != nil && nameNode != nil {
				s.Bindings = append(s.Bindings, Binding{
					Name:             parser.NodeText(nameNode, source),
					Type:             parser.NodeText(typeNode, source),
					Kind:             KindLocal,
					EffectivelyFinal: true,
				})
			}
			collect(child, source, s)

		case "class_declaration", "interface_declaration", "enum_declaration",
			"annotation_type_declaration":
			// Each type declaration gets its own scope so siblings in one
			// unit do not see each other's fields.
			s := newChild(current, child)
			collect(child, source, s)

		case "record_declaration":
			s := newChild(current, child)
			addFormalParams(child.ChildByFieldName("parameters"), source, s, KindField)
			collect(child, source, s)

		case "catch_clause":
			s := newChild(current, child)
			addCatchParam(child, source, s)
			collect(child, source, s)

		case "local_variable_declaration":
			addLocals(child, source, current)

		case "field_declaration":
			addFields(child, source, current)
			collect(child, source, current)

		default:
			collect(child, source, current)
		}
	}
}

func newChild(parent *Scope, node *tree_sitter.Node) *Scope {
	s := &Scope{Start: node.StartByte(), End: node.EndByte(), parent: parent}
	parent.Children = append(parent.Children, s)
	return s
}

func addFormalParams(params *tree_sitter.Node, source []byte, s *Scope, kind BindingKind) {
	if params == nil {
		return
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		if p.Kind() != "formal_parameter" && p.Kind() != "spread_parameter" {
			continue
		}
		typeNode := p.ChildByFieldName("type")
		nameNode := p.ChildByFieldName("name")
		if p.Kind() == "spread_parameter" {
			// spread_parameter has no named fields: the element type and the
			// declarator sit as plain children.
			for j := uint(0); j < p.NamedChildCount(); j++ {
				c := p.NamedChild(j)
				if c == nil {
					continue
				}
				if c.Kind() == "variable_declarator" {
					nameNode = c.ChildByFieldName("name")
				} else if typeNode == nil {
					typeNode = c
				}
			}
		}
		if nameNode == nil {
			continue
		}
		b := Binding{
			Name:             parser.NodeText(nameNode, source),
			Kind:             kind,
			EffectivelyFinal: true,
		}
		if typeNode != nil {
			b.Type = parser.NodeText(typeNode, source)
			if p.Kind() == "spread_parameter" {
				b.Type += "[]"
			}
		}
		s.Bindings = append(s.Bindings, b)
	}
}

// addLambdaParams handles the three lambda shapes: x -> ..., (x, y) -> ...,
// (Type x) -> ... Inferred parameters get an empty type; the call-chain
// engine substitutes from context when it can.
func addLambdaParams(params *tree_sitter.Node, source []byte, s *Scope) {
	if params == nil {
		return
	}
	switch params.Kind() {
	case "identifier":
		s.Bindings = append(s.Bindings, Binding{
			Name:             parser.NodeText(params, source),
			Kind:             KindLambdaParam,
			EffectivelyFinal: true,
		})
	case "inferred_parameters":
		for i := uint(0); i < params.NamedChildCount(); i++ {
			c := params.NamedChild(i)
			if c != nil && c.Kind() == "identifier" {
				s.Bindings = append(s.Bindings, Binding{
					Name:             parser.NodeText(c, source),
					Kind:             KindLambdaParam,
					EffectivelyFinal: true,
				})
			}
		}
	case "formal_parameters":
		addFormalParams(params, source, s, KindLambdaParam)
	}
}

func addCatchParam(clause *tree_sitter.Node, source []byte, s *Scope) {
	parser.Walk(clause, func(n *tree_sitter.Node) bool {
		if n.Kind() != "catch_formal_parameter" {
			return true
		}
		nameNode := n.ChildByFieldName("name")
		var typeText string
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			if c != nil && c.Kind() == "catch_type" {
				typeText = parser.NodeText(c, source)
			}
		}
		if nameNode != nil {
			s.Bindings = append(s.Bindings, Binding{
				Name:             parser.NodeText(nameNode, source),
				Type:             typeText,
				Kind:             KindCatchParam,
				EffectivelyFinal: true,
			})
		}
		return false
	})
}

func addLocals(decl *tree_sitter.Node, source []byte, s *Scope) {
	typeNode := decl.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	typeText := parser.NodeText(typeNode, source)
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		c := decl.NamedChild(i)
		if c == nil || c.Kind() != "variable_declarator" {
			continue
		}
		nameNode := c.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		s.Bindings = append(s.Bindings, Binding{
			Name:             parser.NodeText(nameNode, source),
			Type:             typeText,
			Kind:             KindLocal,
			DeclPoint:        c.EndByte(),
			EffectivelyFinal: true,
		})
	}
}

func addFields(decl *tree_sitter.Node, source []byte, s *Scope) {
	typeNode := decl.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	typeText := parser.NodeText(typeNode, source)
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		c := decl.NamedChild(i)
		if c == nil || c.Kind() != "variable_declarator" {
			continue
		}
		nameNode := c.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		s.Bindings = append(s.Bindings, Binding{
			Name:             parser.NodeText(nameNode, source),
			Type:             typeText,
			Kind:             KindField,
			EffectivelyFinal: true,
		})
	}
}

// markReassignments clears the effectively-final flag on every binding that
// is the target of an assignment or increment after its declaration.
func markReassignments(root *tree_sitter.Node, source []byte, top *Scope) {
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		var target *tree_sitter.Node
		switch n.Kind() {
		case "assignment_expression":
			target = n.ChildByFieldName("left")
		case "update_expression":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				if c := n.NamedChild(i); c != nil && c.Kind() == "identifier" {
					target = c
				}
			}
		default:
			return true
		}
		if target == nil || target.Kind() != "identifier" {
			return true
		}
		name := parser.NodeText(target, source)
		if b := top.Lookup(name, target.StartByte()); b != nil && b.Kind != KindField {
			b.EffectivelyFinal = false
		}
		return true
	})
}

// Lookup finds the binding a name refers to at a byte offset: the innermost
// scope containing the offset is searched first, honoring declaration-point
// ordering, then enclosing scopes outward. Returns nil when unbound.
func (s *Scope) Lookup(name string, offset uint) *Binding {
	target := s.innermost(offset)
	for cur := target; cur != nil; cur = cur.parent {
		var found *Binding
		for i := range cur.Bindings {
			b := &cur.Bindings[i]
			if b.Name != name {
				continue
			}
			if b.DeclPoint > offset {
				continue // declared later in this block
			}
			found = b // keep scanning: the latest declaration before offset wins
		}
		if found != nil {
			return found
		}
	}
	return nil
}

// innermost descends to the deepest scope containing the offset.
func (s *Scope) innermost(offset uint) *Scope {
	best := s
	for {
		descended := false
		for _, child := range best.Children {
			if child.Start <= offset && offset <= child.End {
				best = child
				descended = true
				break
			}
		}
		if !descended {
			return best
		}
	}
}

// ResolveType normalizes a binding's declared type for index lookups:
// erased simple name for generics, primitives untouched.
func (b *Binding) ResolveType() string {
	return symbol.Erase(b.Type)
}
