// Package classfile decodes compiled JVM class files into symbol entries.
//
// Only the pieces a resolver needs are read: constant pool, access flags,
// the type hierarchy references and the declared field/method signatures.
// Code attributes are skipped entirely.
package classfile

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/emilycares/java-lsp/internal/symbol"
)

const magic = 0xCAFEBABE

// Class access flags, per JVM spec table 4.1-B.
const (
	accPublic     = 0x0001
	accPrivate    = 0x0002
	accProtected  = 0x0004
	accStatic     = 0x0008
	accFinal      = 0x0010
	accInterface  = 0x0200
	accAbstract   = 0x0400
	accSynthetic  = 0x1000
	accAnnotation = 0x2000
	accEnum       = 0x4000
	accVarargs    = 0x0080 // method flag
)

func classKind(flags uint16) symbol.Kind {
	switch {
	case flags&accAnnotation != 0:
		return symbol.KindAnnotation
	case flags&accInterface != 0:
		return symbol.KindInterface
	case flags&accEnum != 0:
		return symbol.KindEnum
	default:
		return symbol.KindClass
	}
}

func classMods(flags uint16) symbol.Modifiers {
	var mods symbol.Modifiers
	if flags&accPublic != 0 {
		mods |= symbol.ModPublic
	}
	if flags&accFinal != 0 {
		mods |= symbol.ModFinal
	}
	if flags&accAbstract != 0 {
		mods |= symbol.ModAbstract
	}
	return mods
}

func memberMods(flags uint16) symbol.Modifiers {
	var mods symbol.Modifiers
	if flags&accPublic != 0 {
		mods |= symbol.ModPublic
	}
	if flags&accProtected != 0 {
		mods |= symbol.ModProtected
	}
	if flags&accPrivate != 0 {
		mods |= symbol.ModPrivate
	}
	if flags&accStatic != 0 {
		mods |= symbol.ModStatic
	}
	if flags&accFinal != 0 {
		mods |= symbol.ModFinal
	}
	if flags&accAbstract != 0 {
		mods |= symbol.ModAbstract
	}
	return mods
}

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) u1() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) u2() (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("truncated at offset %d", r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// pool holds the resolved constant pool. Only Utf8 and Class entries are
// retained; everything else is skipped but its slot is accounted for.
type pool struct {
	utf8  map[uint16]string
	class map[uint16]uint16 // class index -> name index
}

func (p *pool) className(idx uint16) string {
	nameIdx, ok := p.class[idx]
	if !ok {
		return ""
	}
	return binaryToDotted(p.utf8[nameIdx])
}

// Decode parses one class file into a symbol.Class. The tier is left at the
// zero value; the loader stamps it. Synthetic and private members are dropped
// since no resolver query can reach them from another compilation unit.
func Decode(data []byte) (*symbol.Class, error) {
	r := &reader{buf: data}

	m, err := r.u4()
	if err != nil {
		return nil, err
	}
	if m != magic {
		return nil, fmt.Errorf("bad magic 0x%08X", m)
	}
	if _, err := r.u4(); err != nil { // minor, major version
		return nil, err
	}

	cp, err := readPool(r)
	if err != nil {
		return nil, fmt.Errorf("constant pool: %w", err)
	}

	flags, err := r.u2()
	if err != nil {
		return nil, err
	}
	thisIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	superIdx, err := r.u2()
	if err != nil {
		return nil, err
	}

	fqn := cp.className(thisIdx)
	if fqn == "" {
		return nil, fmt.Errorf("unresolvable this_class index %d", thisIdx)
	}

	cls := &symbol.Class{
		FQN:        fqn,
		Name:       symbol.SimpleName(fqn),
		Kind:       classKind(flags),
		Mods:       classMods(flags),
		SuperClass: cp.className(superIdx),
	}
	if cls.SuperClass == "java.lang.Object" {
		cls.SuperClass = ""
	}

	ifCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(ifCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if name := cp.className(idx); name != "" {
			cls.Interfaces = append(cls.Interfaces, name)
		}
	}

	if err := readMembers(r, cp, cls, symbol.KindField); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if err := readMembers(r, cp, cls, symbol.KindMethod); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}

	// Class-level attributes: only Signature matters, for generic parameter
	// names. Anything after a truncation point is ignored; the members above
	// are already usable.
	if sig, ok, err := scanAttributes(r, cp); err == nil && ok {
		cls.TypeParams = signatureTypeParams(sig)
	}

	return cls, nil
}

func readPool(r *reader) (*pool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	cp := &pool{utf8: make(map[uint16]string), class: make(map[uint16]uint16)}
	for i := uint16(1); i < count; i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagUtf8:
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			cp.utf8[i] = string(b)
		case tagClass:
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			cp.class[i] = idx
		case tagString, tagMethodType, tagModule, tagPackage:
			if _, err := r.u2(); err != nil {
				return nil, err
			}
		case tagMethodHandle:
			if _, err := r.bytes(3); err != nil {
				return nil, err
			}
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			if _, err := r.u4(); err != nil {
				return nil, err
			}
		case tagLong, tagDouble:
			if _, err := r.bytes(8); err != nil {
				return nil, err
			}
			i++ // 8-byte constants take two pool slots
		default:
			return nil, fmt.Errorf("unknown constant tag %d at entry %d", tag, i)
		}
	}
	return cp, nil
}

func readMembers(r *reader, cp *pool, cls *symbol.Class, kind symbol.Kind) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		flags, err := r.u2()
		if err != nil {
			return err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return err
		}
		descIdx, err := r.u2()
		if err != nil {
			return err
		}
		sig, hasSig, err := scanAttributes(r, cp)
		if err != nil {
			return err
		}

		name := cp.utf8[nameIdx]
		desc := cp.utf8[descIdx]
		if name == "" || desc == "" {
			continue
		}
		if flags&accSynthetic != 0 || flags&accPrivate != 0 {
			continue
		}
		if name == "<clinit>" {
			continue
		}

		m := symbol.Member{
			Owner: cls.FQN,
			Name:  name,
			Kind:  kind,
			Mods:  memberMods(flags),
		}
		if kind == symbol.KindField {
			m.Type = fieldDescriptor(desc)
			if hasSig {
				if t, n := readSigType(sig); n == len(sig) && t != "" {
					m.Type = t
				}
			}
			cls.Fields = append(cls.Fields, m)
			continue
		}

		params, ret, err := methodDescriptor(desc)
		if err != nil {
			continue // malformed descriptor degrades that one member
		}
		if hasSig {
			// The generic signature restores type variables and type
			// arguments the descriptor erased. Compilers omit synthetic
			// leading parameters from it, so apply only on arity match.
			if sp, sret, tvars, ok := methodSignature(sig); ok && len(sp) == len(params) {
				for i := range params {
					params[i].Type = sp[i]
				}
				ret = sret
				m.TypeVars = tvars
			}
		}
		m.Params = params
		m.Type = ret
		m.Varargs = flags&accVarargs != 0
		if name == "<init>" {
			m.Name = cls.Name
			m.Kind = symbol.KindConstructor
			m.Type = cls.FQN
		}
		cls.Methods = append(cls.Methods, m)
	}
	return nil
}

// scanAttributes consumes one attribute table, keeping only the Signature
// attribute's string when present.
func scanAttributes(r *reader, cp *pool) (string, bool, error) {
	count, err := r.u2()
	if err != nil {
		return "", false, err
	}
	var sig string
	var found bool
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return "", false, err
		}
		length, err := r.u4()
		if err != nil {
			return "", false, err
		}
		body, err := r.bytes(int(length))
		if err != nil {
			return "", false, err
		}
		if cp.utf8[nameIdx] == "Signature" && len(body) >= 2 {
			if s := cp.utf8[binary.BigEndian.Uint16(body)]; s != "" {
				sig, found = s, true
			}
		}
	}
	return sig, found, nil
}

// methodSignature parses a generic method signature like
// "<T:Ljava/lang/Object;>(TT;I)Ljava/util/List<TT;>;" into parameter types,
// the return type and the method's own type variable names.
func methodSignature(sig string) ([]string, string, []string, bool) {
	var typeVars []string
	rest := sig
	if strings.HasPrefix(rest, "<") {
		typeVars = signatureTypeParams(rest)
		depth := 0
		i := 0
		for ; i < len(rest); i++ {
			if rest[i] == '<' {
				depth++
			}
			if rest[i] == '>' {
				if depth--; depth == 0 {
					i++
					break
				}
			}
		}
		rest = rest[i:]
	}
	if !strings.HasPrefix(rest, "(") {
		return nil, "", nil, false
	}
	rest = rest[1:]
	var params []string
	for !strings.HasPrefix(rest, ")") {
		if rest == "" {
			return nil, "", nil, false
		}
		t, n := readSigType(rest)
		if n == 0 {
			return nil, "", nil, false
		}
		params = append(params, t)
		rest = rest[n:]
	}
	ret, n := readSigType(rest[1:])
	if n == 0 {
		return nil, "", nil, false
	}
	return params, ret, typeVars, true
}

// readSigType reads one type from a generic signature, returning the rendered
// name and the number of bytes consumed (0 on malformed input). Type
// variables render as their bare name, parameterized classes with dotted
// names and angle brackets, wildcard markers collapse to their bound.
func readSigType(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	switch s[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		t, _ := readType(s[:1])
		return t, 1
	case 'T':
		end := strings.IndexByte(s, ';')
		if end < 1 {
			return "", 0
		}
		return s[1:end], end + 1
	case '[':
		elem, n := readSigType(s[1:])
		if n == 0 {
			return "", 0
		}
		return elem + "[]", n + 1
	case '*':
		return "?", 1
	case '+', '-':
		t, n := readSigType(s[1:])
		if n == 0 {
			return "", 0
		}
		return t, n + 1
	case 'L':
		return readSigClassType(s)
	}
	return "", 0
}

// readSigClassType reads a class type reference, including type arguments and
// nested-class suffixes: "Ljava/util/Map<TK;TV;>.Entry<TK;TV;>;".
func readSigClassType(s string) (string, int) {
	var b strings.Builder
	i := 1
	start := i
	for i < len(s) {
		switch s[i] {
		case ';':
			b.WriteString(binaryToDotted(s[start:i]))
			return b.String(), i + 1
		case '<':
			b.WriteString(binaryToDotted(s[start:i]))
			i++
			b.WriteByte('<')
			first := true
			for i < len(s) && s[i] != '>' {
				arg, n := readSigType(s[i:])
				if n == 0 {
					return "", 0
				}
				if !first {
					b.WriteString(", ")
				}
				first = false
				b.WriteString(arg)
				i += n
			}
			if i >= len(s) {
				return "", 0
			}
			b.WriteByte('>')
			i++
			start = i
		default:
			i++
		}
	}
	return "", 0
}

// signatureTypeParams extracts the formal type parameter names from a class
// signature like "<E:Ljava/lang/Object;>Ljava/lang/Object;".
func signatureTypeParams(sig string) []string {
	if !strings.HasPrefix(sig, "<") {
		return nil
	}
	var names []string
	depth := 0
	start := 1
	for i := 1; i < len(sig); i++ {
		switch sig[i] {
		case '<':
			depth++
		case '>':
			if depth == 0 {
				return names
			}
			depth--
		case ':':
			// A second colon marks an interface bound, not a new name.
			if depth == 0 && start >= 0 && start < i {
				names = append(names, sig[start:i])
			}
			start = -1
		case ';':
			if depth == 0 {
				start = i + 1
			}
		}
	}
	return names
}

// fieldDescriptor converts a JVM field descriptor to a dotted type name:
// "Ljava/lang/String;" -> "java.lang.String", "[I" -> "int[]".
func fieldDescriptor(desc string) string {
	t, _ := readType(desc)
	return t
}

// methodDescriptor splits "(Ljava/lang/String;I)V" into parameter types and
// the return type. Parameter names are not present in descriptors; positional
// placeholders are used.
func methodDescriptor(desc string) ([]symbol.Param, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("not a method descriptor: %q", desc)
	}
	rest := desc[1:]
	var params []symbol.Param
	for !strings.HasPrefix(rest, ")") {
		if rest == "" {
			return nil, "", fmt.Errorf("unterminated descriptor: %q", desc)
		}
		t, n := readType(rest)
		if n == 0 {
			return nil, "", fmt.Errorf("bad descriptor: %q", desc)
		}
		params = append(params, symbol.Param{
			Name: fmt.Sprintf("arg%d", len(params)),
			Type: t,
		})
		rest = rest[n:]
	}
	ret, n := readType(rest[1:])
	if n == 0 {
		return nil, "", fmt.Errorf("bad return type: %q", desc)
	}
	return params, ret, nil
}

// readType reads one type from the front of a descriptor string, returning
// the dotted name and the number of bytes consumed (0 on malformed input).
func readType(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	switch s[0] {
	case 'B':
		return "byte", 1
	case 'C':
		return "char", 1
	case 'D':
		return "double", 1
	case 'F':
		return "float", 1
	case 'I':
		return "int", 1
	case 'J':
		return "long", 1
	case 'S':
		return "short", 1
	case 'Z':
		return "boolean", 1
	case 'V':
		return "void", 1
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return "", 0
		}
		return binaryToDotted(s[1:end]), end + 1
	case '[':
		elem, n := readType(s[1:])
		if n == 0 {
			return "", 0
		}
		return elem + "[]", n + 1
	}
	return "", 0
}

// binaryToDotted converts "java/util/Map$Entry" to "java.util.Map.Entry".
func binaryToDotted(name string) string {
	name = strings.ReplaceAll(name, "/", ".")
	return strings.ReplaceAll(name, "$", ".")
}
