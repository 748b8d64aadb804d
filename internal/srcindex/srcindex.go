// Package srcindex extracts project-tier class declarations from parsed Java
// source. Extraction is two-phase: a raw pass pulls declarations with their
// declared type text, and a qualify pass rewrites type references to
// fully-qualified names once the whole project has been seen.
package srcindex

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/imports"
	"github.com/emilycares/java-lsp/internal/index"
	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/symbol"
)

var typeDeclKinds = map[string]symbol.Kind{
	"class_declaration":           symbol.KindClass,
	"interface_declaration":       symbol.KindInterface,
	"enum_declaration":            symbol.KindEnum,
	"record_declaration":          symbol.KindRecord,
	"annotation_type_declaration": symbol.KindAnnotation,
}

// Extract pulls every type declaration out of one compilation unit. Type
// references keep their declared spelling; run Qualify after all project
// files are published.
func Extract(path string, root *tree_sitter.Node, source []byte) []*symbol.Class {
	table := imports.Build(root, source)
	var out []*symbol.Class
	extractTypes(root, source, path, table.Package, "", &out)
	return out
}

func extractTypes(node *tree_sitter.Node, source []byte, path, pkg, outer string, out *[]*symbol.Class) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		kind, isDecl := typeDeclKinds[child.Kind()]
		if !isDecl {
			extractTypes(child, source, path, pkg, outer, out)
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := parser.NodeText(nameNode, source)
		fqn := name
		if outer != "" {
			fqn = outer + "." + name
		} else if pkg != "" {
			fqn = pkg + "." + name
		}

		cls := &symbol.Class{
			FQN:        fqn,
			Name:       name,
			Kind:       kind,
			Mods:       readModifiers(child, source),
			Tier:       symbol.TierProject,
			SourcePath: path,
			Line:       int(child.StartPosition().Row),
		}
		readTypeParams(child, source, cls)
		readSupertypes(child, source, cls)

		if body := child.ChildByFieldName("body"); body != nil {
			readBody(body, source, cls)
			// Nested declarations become their own entries.
			extractTypes(body, source, path, pkg, fqn, out)
		}
		if kind == symbol.KindRecord {
			readRecordComponents(child, source, cls)
		}
		*out = append(*out, cls)
	}
}

func readModifiers(decl *tree_sitter.Node, source []byte) symbol.Modifiers {
	var mods symbol.Modifiers
	for i := uint(0); i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		if child == nil || child.Kind() != "modifiers" {
			continue
		}
		for j := uint(0); j < child.ChildCount(); j++ {
			m := child.Child(j)
			if m == nil {
				continue
			}
			switch m.Kind() {
			case "public":
				mods |= symbol.ModPublic
			case "protected":
				mods |= symbol.ModProtected
			case "private":
				mods |= symbol.ModPrivate
			case "static":
				mods |= symbol.ModStatic
			case "final":
				mods |= symbol.ModFinal
			case "abstract":
				mods |= symbol.ModAbstract
			}
		}
	}
	return mods
}

func readTypeParams(decl *tree_sitter.Node, source []byte, cls *symbol.Class) {
	for i := uint(0); i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		if child == nil || child.Kind() != "type_parameters" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			p := child.NamedChild(j)
			if p == nil || p.Kind() != "type_parameter" {
				continue
			}
			for k := uint(0); k < p.NamedChildCount(); k++ {
				if c := p.NamedChild(k); c != nil && c.Kind() == "type_identifier" {
					cls.TypeParams = append(cls.TypeParams, parser.NodeText(c, source))
					break
				}
			}
		}
	}
}

func readSupertypes(decl *tree_sitter.Node, source []byte, cls *symbol.Class) {
	for i := uint(0); i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "superclass":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				if t := child.NamedChild(j); t != nil {
					cls.SuperClass = symbol.Erase(parser.NodeText(t, source))
				}
			}
		case "super_interfaces", "extends_interfaces":
			parser.Walk(child, func(n *tree_sitter.Node) bool {
				switch n.Kind() {
				case "type_identifier", "scoped_type_identifier":
					cls.Interfaces = append(cls.Interfaces, symbol.Erase(parser.NodeText(n, source)))
					return false
				case "generic_type":
					// take the erased head, skip the arguments
					for k := uint(0); k < n.NamedChildCount(); k++ {
						if c := n.NamedChild(k); c != nil && (c.Kind() == "type_identifier" || c.Kind() == "scoped_type_identifier") {
							cls.Interfaces = append(cls.Interfaces, parser.NodeText(c, source))
							break
						}
					}
					return false
				}
				return true
			})
		}
	}
	// Interface "extends" lands the supers in Interfaces for interfaces,
	// which matches how member inheritance walks them.
}

func readBody(body *tree_sitter.Node, source []byte, cls *symbol.Class) {
	for i := uint(0); i < body.NamedChildCount(); i++ {
		decl := body.NamedChild(i)
		if decl == nil {
			continue
		}
		switch decl.Kind() {
		case "method_declaration":
			if m, ok := readMethod(decl, source, cls, false); ok {
				cls.Methods = append(cls.Methods, m)
			}
		case "constructor_declaration":
			if m, ok := readMethod(decl, source, cls, true); ok {
				cls.Methods = append(cls.Methods, m)
			}
		case "field_declaration", "constant_declaration":
			cls.Fields = append(cls.Fields, readFields(decl, source, cls)...)
		case "enum_body_declarations":
			readBody(decl, source, cls)
		case "enum_constant":
			if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
				cls.Fields = append(cls.Fields, symbol.Member{
					Owner: cls.FQN,
					Name:  parser.NodeText(nameNode, source),
					Kind:  symbol.KindField,
					Mods:  symbol.ModPublic | symbol.ModStatic | symbol.ModFinal,
					Type:  cls.Name,
					Line:  int(decl.StartPosition().Row),
				})
			}
		}
	}
}

func readMethod(decl *tree_sitter.Node, source []byte, cls *symbol.Class, ctor bool) (symbol.Member, bool) {
	nameNode := decl.ChildByFieldName("name")
	if nameNode == nil {
		return symbol.Member{}, false
	}
	m := symbol.Member{
		Owner: cls.FQN,
		Name:  parser.NodeText(nameNode, source),
		Kind:  symbol.KindMethod,
		Mods:  readModifiers(decl, source),
		Line:  int(decl.StartPosition().Row),
	}
	if ctor {
		m.Kind = symbol.KindConstructor
		m.Type = cls.FQN
	} else if typeNode := decl.ChildByFieldName("type"); typeNode != nil {
		m.Type = parser.NodeText(typeNode, source)
	}

	if params := decl.ChildByFieldName("parameters"); params != nil {
		for i := uint(0); i < params.NamedChildCount(); i++ {
			p := params.NamedChild(i)
			if p == nil {
				continue
			}
			switch p.Kind() {
			case "formal_parameter":
				typeNode := p.ChildByFieldName("type")
				nameNode := p.ChildByFieldName("name")
				if typeNode == nil || nameNode == nil {
					continue
				}
				m.Params = append(m.Params, symbol.Param{
					Name: parser.NodeText(nameNode, source),
					Type: parser.NodeText(typeNode, source),
				})
			case "spread_parameter":
				m.Varargs = true
				var typeText, paramName string
				for j := uint(0); j < p.NamedChildCount(); j++ {
					c := p.NamedChild(j)
					if c == nil {
						continue
					}
					if c.Kind() == "variable_declarator" {
						if n := c.ChildByFieldName("name"); n != nil {
							paramName = parser.NodeText(n, source)
						}
					} else if typeText == "" {
						typeText = parser.NodeText(c, source)
					}
				}
				if typeText != "" {
					m.Params = append(m.Params, symbol.Param{Name: paramName, Type: typeText + "[]"})
				}
			}
		}
	}
	return m, true
}

func readFields(decl *tree_sitter.Node, source []byte, cls *symbol.Class) []symbol.Member {
	typeNode := decl.ChildByFieldName("type")
	if typeNode == nil {
		return nil
	}
	typeText := parser.NodeText(typeNode, source)
	mods := readModifiers(decl, source)
	var out []symbol.Member
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		c := decl.NamedChild(i)
		if c == nil || c.Kind() != "variable_declarator" {
			continue
		}
		nameNode := c.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		out = append(out, symbol.Member{
			Owner: cls.FQN,
			Name:  parser.NodeText(nameNode, source),
			Kind:  symbol.KindField,
			Mods:  mods,
			Type:  typeText,
			Line:  int(c.StartPosition().Row),
		})
	}
	return out
}

// readRecordComponents turns record parameters into final fields plus their
// accessor methods.
func readRecordComponents(decl *tree_sitter.Node, source []byte, cls *symbol.Class) {
	params := decl.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p == nil || p.Kind() != "formal_parameter" {
			continue
		}
		typeNode := p.ChildByFieldName("type")
		nameNode := p.ChildByFieldName("name")
		if typeNode == nil || nameNode == nil {
			continue
		}
		name := parser.NodeText(nameNode, source)
		typeText := parser.NodeText(typeNode, source)
		cls.Fields = append(cls.Fields, symbol.Member{
			Owner: cls.FQN, Name: name, Kind: symbol.KindField,
			Mods: symbol.ModPrivate | symbol.ModFinal, Type: typeText,
			Line: int(p.StartPosition().Row),
		})
		cls.Methods = append(cls.Methods, symbol.Member{
			Owner: cls.FQN, Name: name, Kind: symbol.KindMethod,
			Mods: symbol.ModPublic, Type: typeText,
			Line: int(p.StartPosition().Row),
		})
	}
}

// Qualify rewrites a unit's supertype and member type references to
// fully-qualified names, using the unit's import table against the now fully
// populated universe. Returns replacement classes; the originals stay
// untouched since published entries are immutable.
func Qualify(classes []*symbol.Class, root *tree_sitter.Node, source []byte, u *index.Universe) []*symbol.Class {
	table := imports.Build(root, source)
	out := make([]*symbol.Class, 0, len(classes))
	for _, cls := range classes {
		q := *cls
		q.SuperClass = qualifyRef(cls.SuperClass, cls, table, u)
		q.Interfaces = make([]string, len(cls.Interfaces))
		for i, ref := range cls.Interfaces {
			q.Interfaces[i] = qualifyRef(ref, cls, table, u)
		}
		q.Methods = qualifyMembers(cls.Methods, cls, table, u)
		q.Fields = qualifyMembers(cls.Fields, cls, table, u)
		out = append(out, &q)
	}
	return out
}

func qualifyMembers(members []symbol.Member, cls *symbol.Class, table *imports.Table, u *index.Universe) []symbol.Member {
	out := make([]symbol.Member, len(members))
	for i, m := range members {
		q := m
		q.Type = qualifyTypeText(m.Type, cls, table, u)
		if len(m.Params) > 0 {
			q.Params = make([]symbol.Param, len(m.Params))
			for j, p := range m.Params {
				q.Params[j] = symbol.Param{Name: p.Name, Type: qualifyTypeText(p.Type, cls, table, u)}
			}
		}
		out[i] = q
	}
	return out
}

// qualifyTypeText resolves the erased head of a declared type and rebuilds
// the generic suffix with resolved arguments: "Map<String,Widget>" ->
// "java.util.Map<java.lang.String,com.acme.Widget>".
func qualifyTypeText(text string, cls *symbol.Class, table *imports.Table, u *index.Universe) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	if strings.HasSuffix(text, "[]") {
		return qualifyTypeText(strings.TrimSuffix(text, "[]"), cls, table, u) + "[]"
	}
	base := symbol.Erase(text)
	if symbol.IsPrimitive(base) || isTypeVar(base, cls) {
		return text
	}
	resolved := qualifyRef(base, cls, table, u)
	args := symbol.TypeArgs(text)
	if len(args) == 0 {
		return resolved
	}
	qualified := make([]string, len(args))
	for i, a := range args {
		qualified[i] = qualifyTypeText(a, cls, table, u)
	}
	return resolved + "<" + strings.Join(qualified, ",") + ">"
}

func qualifyRef(name string, cls *symbol.Class, table *imports.Table, u *index.Universe) string {
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	if isTypeVar(name, cls) {
		return name
	}
	if fqn, err := table.Resolve(name, u, cls); err == nil && fqn != "" {
		return fqn
	}
	return name
}

func isTypeVar(name string, cls *symbol.Class) bool {
	for _, tp := range cls.TypeParams {
		if tp == name {
			return true
		}
	}
	return false
}
