// Package typeres computes the static type of expressions by walking dotted
// call chains left to right against the symbol universe.
package typeres

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/parser"
)

// StepKind tags one link of a call chain.
type StepKind int

const (
	StepIdent StepKind = iota // leftmost bare name: variable, type or implicit member
	StepThis                  // explicit this receiver
	StepCall                  // method invocation segment
	StepField                 // field access segment
	StepNew                   // constructor expression
	StepLiteral               // literal receiver, e.g. "abc".length()
)

// Step is one link in a chain: receiver -> member access -> result.
type Step struct {
	Kind StepKind
	Name string
	Args []*tree_sitter.Node // argument expressions for calls and news
	Node *tree_sitter.Node

	// LiteralType is the known type of a literal step.
	LiteralType string
}

// ExtractChain flattens the expression containing node into chain order.
// It first ascends to the outermost chain expression, then recurses into
// receiver ("object") children so the leftmost segment comes first.
func ExtractChain(node *tree_sitter.Node, source []byte) []Step {
	expr := outermostChain(node)
	if expr == nil {
		return nil
	}
	var steps []Step
	flatten(expr, source, &steps)
	return steps
}

// outermostChain ascends while the parent continues the dotted expression.
func outermostChain(node *tree_sitter.Node) *tree_sitter.Node {
	cur := node
	for {
		p := cur.Parent()
		if p == nil {
			return cur
		}
		switch p.Kind() {
		case "field_access", "method_invocation":
			// Only continue when cur is the receiver or the member name,
			// not an argument.
			if sameNode(p.ChildByFieldName("object"), cur) ||
				sameNode(p.ChildByFieldName("name"), cur) ||
				sameNode(p.ChildByFieldName("field"), cur) {
				cur = p
				continue
			}
			return cur
		case "parenthesized_expression":
			cur = p
		default:
			return cur
		}
	}
}

func flatten(node *tree_sitter.Node, source []byte, out *[]Step) {
	switch node.Kind() {
	case "method_invocation":
		if obj := node.ChildByFieldName("object"); obj != nil {
			flatten(obj, source, out)
		}
		name := node.ChildByFieldName("name")
		if name == nil {
			return
		}
		*out = append(*out, Step{
			Kind: StepCall,
			Name: parser.NodeText(name, source),
			Args: argumentNodes(node.ChildByFieldName("arguments")),
			Node: node,
		})

	case "field_access":
		if obj := node.ChildByFieldName("object"); obj != nil {
			flatten(obj, source, out)
		}
		field := node.ChildByFieldName("field")
		if field == nil {
			return
		}
		*out = append(*out, Step{
			Kind: StepField,
			Name: parser.NodeText(field, source),
			Node: node,
		})

	case "object_creation_expression":
		typeNode := node.ChildByFieldName("type")
		if typeNode == nil {
			return
		}
		*out = append(*out, Step{
			Kind: StepNew,
			Name: parser.NodeText(typeNode, source),
			Args: argumentNodes(node.ChildByFieldName("arguments")),
			Node: node,
		})

	case "identifier", "type_identifier":
		*out = append(*out, Step{
			Kind: StepIdent,
			Name: parser.NodeText(node, source),
			Node: node,
		})

	case "this":
		*out = append(*out, Step{Kind: StepThis, Node: node})

	case "parenthesized_expression":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if c := node.NamedChild(i); c != nil {
				flatten(c, source, out)
				return
			}
		}

	case "string_literal":
		*out = append(*out, Step{Kind: StepLiteral, Node: node, LiteralType: "java.lang.String"})
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		*out = append(*out, Step{Kind: StepLiteral, Node: node, LiteralType: literalIntType(parser.NodeText(node, source))})
	case "decimal_floating_point_literal":
		*out = append(*out, Step{Kind: StepLiteral, Node: node, LiteralType: literalFloatType(parser.NodeText(node, source))})
	case "true", "false":
		*out = append(*out, Step{Kind: StepLiteral, Node: node, LiteralType: "boolean"})
	case "character_literal":
		*out = append(*out, Step{Kind: StepLiteral, Node: node, LiteralType: "char"})
	case "null_literal":
		*out = append(*out, Step{Kind: StepLiteral, Node: node, LiteralType: "null"})

	case "cast_expression":
		if t := node.ChildByFieldName("type"); t != nil {
			*out = append(*out, Step{Kind: StepIdent, Name: parser.NodeText(t, source), Node: node})
		}

	case "scoped_identifier":
		// Qualified name used as an expression head: com.acme.Widget
		*out = append(*out, Step{Kind: StepIdent, Name: parser.NodeText(node, source), Node: node})
	}
}

func sameNode(a, b *tree_sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

func argumentNodes(args *tree_sitter.Node) []*tree_sitter.Node {
	if args == nil {
		return nil
	}
	var out []*tree_sitter.Node
	for i := uint(0); i < args.NamedChildCount(); i++ {
		if c := args.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func literalIntType(text string) string {
	if len(text) > 0 {
		last := text[len(text)-1]
		if last == 'l' || last == 'L' {
			return "long"
		}
	}
	return "int"
}

func literalFloatType(text string) string {
	if len(text) > 0 {
		last := text[len(text)-1]
		if last == 'f' || last == 'F' {
			return "float"
		}
	}
	return "double"
}
