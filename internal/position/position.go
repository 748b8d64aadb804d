// Package position translates between protocol coordinates (0-based line and
// UTF-16 character offset) and byte offsets / tree-sitter points in a source
// buffer.
package position

import (
	"unicode/utf16"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Point is a 0-based line/character protocol position. Character counts
// UTF-16 code units, matching editor clients.
type Point struct {
	Line      uint32
	Character uint32
}

// Range is a half-open [Start, End) span of protocol positions.
type Range struct {
	Start Point
	End   Point
}

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

// Diagnostic is one reported finding anchored to a source range.
type Diagnostic struct {
	Range    Range
	Severity Severity
	Message  string
}

// ByteOffset converts a protocol point into a byte offset within source.
// Positions past the end of a line clamp to the line end; lines past the end
// of the buffer clamp to the buffer end.
func ByteOffset(source []byte, p Point) uint {
	off := lineStart(source, p.Line)
	remaining := uint32(0)
	for off < uint(len(source)) && source[off] != '\n' {
		if remaining >= p.Character {
			break
		}
		r, size := utf8.DecodeRune(source[off:])
		units := uint32(1)
		if utf16.IsSurrogate(rune(r)) || r > 0xFFFF {
			units = 2
		}
		remaining += units
		off += uint(size)
	}
	return off
}

// FromByteOffset converts a byte offset back into a protocol point.
func FromByteOffset(source []byte, offset uint) Point {
	if offset > uint(len(source)) {
		offset = uint(len(source))
	}
	var line uint32
	lineOff := uint(0)
	for i := uint(0); i < offset; i++ {
		if source[i] == '\n' {
			line++
			lineOff = i + 1
		}
	}
	var ch uint32
	for off := lineOff; off < offset; {
		r, size := utf8.DecodeRune(source[off:])
		if r > 0xFFFF {
			ch += 2
		} else {
			ch++
		}
		off += uint(size)
	}
	return Point{Line: line, Character: ch}
}

// TSPoint converts a protocol point into a tree-sitter point (row plus byte
// column) against the given source.
func TSPoint(source []byte, p Point) tree_sitter.Point {
	off := ByteOffset(source, p)
	return tree_sitter.Point{Row: uint(p.Line), Column: off - lineStart(source, p.Line)}
}

// NodeRange converts a node's byte span into a protocol range.
func NodeRange(source []byte, node *tree_sitter.Node) Range {
	return Range{
		Start: FromByteOffset(source, node.StartByte()),
		End:   FromByteOffset(source, node.EndByte()),
	}
}

// Contains reports whether p falls inside r, inclusive of the start and
// exclusive of the end.
func (r Range) Contains(p Point) bool {
	if p.Line < r.Start.Line || p.Line > r.End.Line {
		return false
	}
	if p.Line == r.Start.Line && p.Character < r.Start.Character {
		return false
	}
	if p.Line == r.End.Line && p.Character >= r.End.Character {
		return false
	}
	return true
}

// Before reports whether p is strictly before q in document order.
func (p Point) Before(q Point) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

func lineStart(source []byte, line uint32) uint {
	if line == 0 {
		return 0
	}
	var seen uint32
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			seen++
			if seen == line {
				return uint(i + 1)
			}
		}
	}
	return uint(len(source))
}
