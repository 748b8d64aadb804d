// Package document owns the open-file state: the current text buffer, its
// syntax tree and a monotonically increasing version. The tree is replaced
// atomically on every edit; derived caches key off (URI, Version) and are
// dropped when superseded.
package document

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/position"
)

// Change is one protocol edit. A nil Range replaces the whole buffer.
type Change struct {
	Range *position.Range
	Text  string
}

// Document is the exclusively-owned state of one open file.
type Document struct {
	mu      sync.Mutex
	uri     string
	text    []byte
	version int32
	tree    *tree_sitter.Tree
}

// Open parses the initial text of a newly opened file.
func Open(uri, text string) (*Document, error) {
	tree, err := parser.Parse([]byte(text), nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}
	return &Document{uri: uri, text: []byte(text), version: 1, tree: tree}, nil
}

// URI returns the document identifier.
func (d *Document) URI() string { return d.uri }

// Version returns the current revision counter.
func (d *Document) Version() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Snapshot returns the current text, tree and version together, so a resolver
// works against one consistent revision. The tree is a clone owned by the
// caller, who must Close it: the document frees its own tree on the next
// edit, which must not pull memory out from under an in-flight request.
func (d *Document) Snapshot() ([]byte, *tree_sitter.Tree, int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var tree *tree_sitter.Tree
	if d.tree != nil {
		tree = d.tree.Clone()
	}
	return d.text, tree, d.version
}

// ApplyChanges applies a batch of edits, bumps the version once, and
// re-parses. Ranged edits reuse the previous tree for an incremental parse;
// a full-text change parses from scratch. A syntax error in the result is
// not an error here: tree-sitter yields a best-effort partial tree.
func (d *Document) ApplyChanges(version int32, changes []Change) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if version != 0 && version <= d.version {
		return fmt.Errorf("stale change for %s: version %d <= current %d", d.uri, version, d.version)
	}

	old := d.tree
	incremental := old
	for _, change := range changes {
		if change.Range == nil {
			d.text = []byte(change.Text)
			incremental = nil
			continue
		}
		start := position.ByteOffset(d.text, change.Range.Start)
		end := position.ByteOffset(d.text, change.Range.End)
		if end < start {
			start, end = end, start
		}

		newText := make([]byte, 0, len(d.text)-int(end-start)+len(change.Text))
		newText = append(newText, d.text[:start]...)
		newText = append(newText, change.Text...)
		newText = append(newText, d.text[end:]...)

		if incremental != nil {
			incremental.Edit(&tree_sitter.InputEdit{
				StartByte:      start,
				OldEndByte:     end,
				NewEndByte:     start + uint(len(change.Text)),
				StartPosition:  tsPointAt(d.text, start),
				OldEndPosition: tsPointAt(d.text, end),
				NewEndPosition: tsPointAt(newText, start+uint(len(change.Text))),
			})
		}
		d.text = newText
	}

	tree, err := parser.Parse(d.text, incremental)
	if err != nil {
		return fmt.Errorf("reparse %s: %w", d.uri, err)
	}
	d.tree = tree
	if old != nil {
		old.Close()
	}
	if version != 0 {
		d.version = version
	} else {
		d.version++
	}
	return nil
}

// Close releases the syntax tree.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tree != nil {
		d.tree.Close()
		d.tree = nil
	}
}

// tsPointAt computes the tree-sitter row/column of a byte offset.
func tsPointAt(text []byte, offset uint) tree_sitter.Point {
	if offset > uint(len(text)) {
		offset = uint(len(text))
	}
	var row, lineStart uint
	for i := uint(0); i < offset; i++ {
		if text[i] == '\n' {
			row++
			lineStart = i + 1
		}
	}
	return tree_sitter.Point{Row: row, Column: offset - lineStart}
}
