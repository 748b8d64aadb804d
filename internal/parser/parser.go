// Package parser wraps the tree-sitter Java grammar behind a pooled parser.
package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

var (
	languageOnce sync.Once
	javaLanguage *tree_sitter.Language
	parserPool   *sync.Pool
)

func initLanguage() {
	languageOnce.Do(func() {
		javaLanguage = tree_sitter.NewLanguage(tree_sitter_java.Language())
		parserPool = &sync.Pool{
			New: func() any {
				p := tree_sitter.NewParser()
				if err := p.SetLanguage(javaLanguage); err != nil {
					panic(fmt.Sprintf("set language: %v", err))
				}
				return p
			},
		}
	})
}

// Language returns the tree-sitter Java language.
func Language() *tree_sitter.Language {
	initLanguage()
	return javaLanguage
}

// Parse parses Java source into a tree-sitter Tree. When old is non-nil the
// parse is incremental: only regions invalidated through old.Edit are re-read.
// The caller must call tree.Close() when done.
// Parsers are pooled via sync.Pool to avoid per-parse allocation.
func Parse(source []byte, old *tree_sitter.Tree) (*tree_sitter.Tree, error) {
	initLanguage()

	p, _ := parserPool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser")
	}
	tree := p.Parse(source, old)
	parserPool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse failed")
	}
	return tree, nil
}

// WalkFunc is called for each node during AST traversal.
// Return false to skip children.
type WalkFunc func(node *tree_sitter.Node) bool

// Walk traverses the AST in depth-first order.
func Walk(node *tree_sitter.Node, fn WalkFunc) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			Walk(child, fn)
		}
	}
}

// NodeText returns the text content of a node.
func NodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// NamedAncestor walks up from node to the nearest ancestor with one of the
// given kinds, or nil.
func NamedAncestor(node *tree_sitter.Node, kinds ...string) *tree_sitter.Node {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		for _, k := range kinds {
			if cur.Kind() == k {
				return cur
			}
		}
	}
	return nil
}

// SmallestNodeAt descends from root to the smallest named node containing the
// byte offset.
func SmallestNodeAt(root *tree_sitter.Node, offset uint) *tree_sitter.Node {
	if root == nil || offset < root.StartByte() || offset > root.EndByte() {
		return nil
	}
	best := root
	for {
		descended := false
		for i := uint(0); i < best.NamedChildCount(); i++ {
			child := best.NamedChild(i)
			if child == nil {
				continue
			}
			if child.StartByte() <= offset && offset <= child.EndByte() {
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
