// Package symbol defines the descriptors shared by every resolver: classes,
// members and their type signatures, tagged with the tier they came from.
package symbol

import "strings"

// Tier is the provenance of a symbol. Lookup priority is Project over
// Dependency over Runtime.
type Tier int

const (
	TierProject Tier = iota
	TierDependency
	TierRuntime
)

func (t Tier) String() string {
	switch t {
	case TierProject:
		return "project"
	case TierDependency:
		return "dependency"
	case TierRuntime:
		return "runtime"
	}
	return "unknown"
}

// Kind classifies a symbol entry.
type Kind string

const (
	KindClass       Kind = "class"
	KindInterface   Kind = "interface"
	KindEnum        Kind = "enum"
	KindRecord      Kind = "record"
	KindAnnotation  Kind = "annotation"
	KindMethod      Kind = "method"
	KindField       Kind = "field"
	KindConstructor Kind = "constructor"
)

// IsType reports whether the kind names a type declaration rather than a member.
func (k Kind) IsType() bool {
	switch k {
	case KindClass, KindInterface, KindEnum, KindRecord, KindAnnotation:
		return true
	}
	return false
}

// Modifiers is a bitset of declaration modifiers.
type Modifiers uint16

const (
	ModPublic Modifiers = 1 << iota
	ModProtected
	ModPrivate
	ModStatic
	ModFinal
	ModAbstract
)

func (m Modifiers) IsStatic() bool  { return m&ModStatic != 0 }
func (m Modifiers) IsPublic() bool  { return m&ModPublic != 0 }
func (m Modifiers) IsPrivate() bool { return m&ModPrivate != 0 }

// String renders modifiers in canonical declaration order.
func (m Modifiers) String() string {
	var parts []string
	if m&ModPublic != 0 {
		parts = append(parts, "public")
	}
	if m&ModProtected != 0 {
		parts = append(parts, "protected")
	}
	if m&ModPrivate != 0 {
		parts = append(parts, "private")
	}
	if m&ModAbstract != 0 {
		parts = append(parts, "abstract")
	}
	if m&ModStatic != 0 {
		parts = append(parts, "static")
	}
	if m&ModFinal != 0 {
		parts = append(parts, "final")
	}
	return strings.Join(parts, " ")
}

// Param is one formal parameter of a method or constructor.
type Param struct {
	Name string
	Type string // fully-qualified where known, simple name otherwise
}

// Class is a decoded type declaration: its identity plus all directly
// declared members. Supertypes are kept as name references, never pointers;
// they are resolved through the index on demand so malformed hierarchies
// cannot produce unbounded structures.
type Class struct {
	FQN        string // e.g. "java.util.ArrayList"
	Name       string // simple name
	Kind       Kind
	Mods       Modifiers
	Tier       Tier
	SuperClass string   // FQN or simple name reference, "" for java.lang.Object roots
	Interfaces []string // implemented/extended interface references
	TypeParams []string // opaque generic parameter names, e.g. ["E"]
	Methods    []Member
	Fields     []Member

	// SourcePath is the defining source file when the class came from the
	// project tier; empty for compiled artifacts.
	SourcePath string
	// Line is the 0-based declaration line in SourcePath.
	Line int
}

// Member is a method, constructor or field entry. Immutable once built;
// identity is Owner + Name + Descriptor.
type Member struct {
	Owner    string // FQN of the declaring type
	Name     string
	Kind     Kind
	Mods     Modifiers
	Type     string  // return type for methods, field type for fields
	Params   []Param // nil for fields
	Varargs  bool
	TypeVars []string // opaque generic parameter names declared on the member
	Line     int
}

// Descriptor renders the identity signature of a member, used for override
// deduplication. Fields have no parameter list.
func (m Member) Descriptor() string {
	if m.Kind == KindField {
		return m.Name
	}
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Type)
	}
	b.WriteByte(')')
	return b.String()
}

// Arity returns the number of declared parameters.
func (m Member) Arity() int { return len(m.Params) }

// SimpleName extracts the last dot-separated segment of a qualified name.
func SimpleName(fqn string) string {
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

// PackageOf returns the package portion of a qualified name, "" for the
// default package.
func PackageOf(fqn string) string {
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		return fqn[:idx]
	}
	return ""
}

// Erase strips a generic suffix from a type reference: "List<String>" -> "List".
func Erase(typeName string) string {
	if idx := strings.IndexByte(typeName, '<'); idx >= 0 {
		return typeName[:idx]
	}
	return typeName
}

// TypeArgs returns the comma-separated generic arguments of a type reference,
// nil when the reference is raw. "Map<String, Integer>" -> ["String", "Integer"].
func TypeArgs(typeName string) []string {
	open := strings.IndexByte(typeName, '<')
	if open < 0 || !strings.HasSuffix(typeName, ">") {
		return nil
	}
	inner := typeName[open+1 : len(typeName)-1]
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(inner[start:]); rest != "" {
		args = append(args, rest)
	}
	return args
}

// IsPrimitive reports whether a type name is a Java primitive.
func IsPrimitive(name string) bool {
	switch name {
	case "boolean", "byte", "char", "short", "int", "long", "float", "double", "void":
		return true
	}
	return false
}

// Boxed returns the java.lang wrapper for a primitive, or "" when the name
// is not a primitive.
func Boxed(name string) string {
	switch name {
	case "boolean":
		return "java.lang.Boolean"
	case "byte":
		return "java.lang.Byte"
	case "char":
		return "java.lang.Character"
	case "short":
		return "java.lang.Short"
	case "int":
		return "java.lang.Integer"
	case "long":
		return "java.lang.Long"
	case "float":
		return "java.lang.Float"
	case "double":
		return "java.lang.Double"
	case "void":
		return "java.lang.Void"
	}
	return ""
}

// Unboxed is the inverse of Boxed; returns "" for non-wrapper types.
func Unboxed(fqn string) string {
	switch fqn {
	case "java.lang.Boolean":
		return "boolean"
	case "java.lang.Byte":
		return "byte"
	case "java.lang.Character":
		return "char"
	case "java.lang.Short":
		return "short"
	case "java.lang.Integer":
		return "int"
	case "java.lang.Long":
		return "long"
	case "java.lang.Float":
		return "float"
	case "java.lang.Double":
		return "double"
	case "java.lang.Void":
		return "void"
	}
	return ""
}

// WideningOf lists the primitives a given primitive widens to, per JLS 5.1.2.
func WideningOf(prim string) []string {
	switch prim {
	case "byte":
		return []string{"short", "int", "long", "float", "double"}
	case "short", "char":
		return []string{"int", "long", "float", "double"}
	case "int":
		return []string{"long", "float", "double"}
	case "long":
		return []string{"float", "double"}
	case "float":
		return []string{"double"}
	}
	return nil
}
