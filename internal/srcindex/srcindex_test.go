package srcindex

import (
	"testing"

	"github.com/emilycares/java-lsp/internal/index"
	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/symbol"
)

func extract(t *testing.T, source string) map[string]*symbol.Class {
	t.Helper()
	tree, err := parser.Parse([]byte(source), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()
	out := make(map[string]*symbol.Class)
	for _, cls := range Extract("Widget.java", tree.RootNode(), []byte(source)) {
		out[cls.FQN] = cls
	}
	return out
}

func member(t *testing.T, members []symbol.Member, name string) symbol.Member {
	t.Helper()
	for _, m := range members {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("member %s not found in %v", name, members)
	return symbol.Member{}
}

func TestExtractClass(t *testing.T) {
	classes := extract(t, `package com.acme;

import java.util.List;

public abstract class Widget<T> extends Base implements AutoCloseable {
    private final String name;
    protected int count;

    public Widget(String name) {
        this.name = name;
    }

    public List<String> names() { return null; }

    static void log(String fmt, Object... args) { }
}
`)
	cls, ok := classes["com.acme.Widget"]
	if !ok {
		t.Fatalf("Widget not extracted: %v", classes)
	}
	if cls.Kind != symbol.KindClass || cls.Name != "Widget" {
		t.Errorf("kind/name = %v/%s", cls.Kind, cls.Name)
	}
	if !cls.Mods.IsPublic() || cls.Mods&symbol.ModAbstract == 0 {
		t.Errorf("mods = %v", cls.Mods)
	}
	if cls.Tier != symbol.TierProject || cls.SourcePath != "Widget.java" || cls.Line != 4 {
		t.Errorf("provenance = %v %s line %d", cls.Tier, cls.SourcePath, cls.Line)
	}
	if len(cls.TypeParams) != 1 || cls.TypeParams[0] != "T" {
		t.Errorf("type params = %v", cls.TypeParams)
	}
	if cls.SuperClass != "Base" {
		t.Errorf("superclass = %q", cls.SuperClass)
	}
	if len(cls.Interfaces) != 1 || cls.Interfaces[0] != "AutoCloseable" {
		t.Errorf("interfaces = %v", cls.Interfaces)
	}

	name := member(t, cls.Fields, "name")
	if name.Type != "String" || !name.Mods.IsPrivate() || name.Mods&symbol.ModFinal == 0 {
		t.Errorf("field name = %+v", name)
	}
	count := member(t, cls.Fields, "count")
	if count.Type != "int" || count.Mods&symbol.ModProtected == 0 {
		t.Errorf("field count = %+v", count)
	}

	ctor := member(t, cls.Methods, "Widget")
	if ctor.Kind != symbol.KindConstructor || ctor.Type != "com.acme.Widget" {
		t.Errorf("constructor = %+v", ctor)
	}
	if len(ctor.Params) != 1 || ctor.Params[0].Type != "String" {
		t.Errorf("constructor params = %v", ctor.Params)
	}

	names := member(t, cls.Methods, "names")
	if names.Type != "List<String>" {
		t.Errorf("names return type = %q", names.Type)
	}

	log := member(t, cls.Methods, "log")
	if !log.Varargs || !log.Mods.IsStatic() {
		t.Errorf("log = %+v", log)
	}
	if len(log.Params) != 2 || log.Params[1].Type != "Object[]" {
		t.Errorf("log params = %v", log.Params)
	}
}

func TestExtractNestedTypes(t *testing.T) {
	classes := extract(t, `package com.acme;

public class Outer {
    int depth;

    public static class Inner {
        public void run() { }
    }
}
`)
	if _, ok := classes["com.acme.Outer"]; !ok {
		t.Fatalf("Outer missing: %v", classes)
	}
	inner, ok := classes["com.acme.Outer.Inner"]
	if !ok {
		t.Fatalf("nested Inner missing: %v", classes)
	}
	if !inner.Mods.IsStatic() {
		t.Errorf("Inner mods = %v", inner.Mods)
	}
	if len(inner.Methods) != 1 || inner.Methods[0].Name != "run" {
		t.Errorf("Inner methods = %v", inner.Methods)
	}
	// The nested declaration must not leak members into the outer class.
	outer := classes["com.acme.Outer"]
	if len(outer.Methods) != 0 {
		t.Errorf("Outer methods = %v", outer.Methods)
	}
}

func TestExtractEnum(t *testing.T) {
	classes := extract(t, `package com.acme;

public enum Color {
    RED, GREEN;

    public String hex() { return null; }
}
`)
	cls, ok := classes["com.acme.Color"]
	if !ok {
		t.Fatalf("Color missing: %v", classes)
	}
	if cls.Kind != symbol.KindEnum {
		t.Errorf("kind = %v", cls.Kind)
	}
	red := member(t, cls.Fields, "RED")
	if red.Type != "Color" || !red.Mods.IsStatic() || !red.Mods.IsPublic() {
		t.Errorf("RED = %+v", red)
	}
	member(t, cls.Fields, "GREEN")
	member(t, cls.Methods, "hex")
}

func TestExtractRecord(t *testing.T) {
	classes := extract(t, `package com.acme;

public record Point(int x, int y) {
    public double length() { return 0; }
}
`)
	cls, ok := classes["com.acme.Point"]
	if !ok {
		t.Fatalf("Point missing: %v", classes)
	}
	if cls.Kind != symbol.KindRecord {
		t.Errorf("kind = %v", cls.Kind)
	}
	x := member(t, cls.Fields, "x")
	if x.Type != "int" || !x.Mods.IsPrivate() || x.Mods&symbol.ModFinal == 0 {
		t.Errorf("component field x = %+v", x)
	}
	accessor := member(t, cls.Methods, "y")
	if accessor.Type != "int" || !accessor.Mods.IsPublic() {
		t.Errorf("accessor y = %+v", accessor)
	}
	member(t, cls.Methods, "length")
}

func TestExtractInterface(t *testing.T) {
	classes := extract(t, `package com.acme;

public interface Sink extends AutoCloseable, Runnable {
    int LIMIT = 16;

    void accept(String item);
}
`)
	cls, ok := classes["com.acme.Sink"]
	if !ok {
		t.Fatalf("Sink missing: %v", classes)
	}
	if cls.Kind != symbol.KindInterface {
		t.Errorf("kind = %v", cls.Kind)
	}
	if len(cls.Interfaces) != 2 {
		t.Errorf("extended interfaces = %v", cls.Interfaces)
	}
	limit := member(t, cls.Fields, "LIMIT")
	if limit.Type != "int" {
		t.Errorf("constant = %+v", limit)
	}
	member(t, cls.Methods, "accept")
}

func TestQualify(t *testing.T) {
	source := `package com.acme;

import java.util.List;
import com.acme.base.Base;

public class Widget extends Base {
    private List<String> names;
    Gadget sibling;

    public Base parent() { return null; }
}
`
	tree, err := parser.Parse([]byte(source), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	raw := Extract("Widget.java", tree.RootNode(), []byte(source))
	if len(raw) != 1 {
		t.Fatalf("extracted %d classes", len(raw))
	}

	u := index.New()
	u.PutBatch(raw)
	u.Put(&symbol.Class{FQN: "com.acme.base.Base", Name: "Base", Kind: symbol.KindClass, Tier: symbol.TierProject})
	u.Put(&symbol.Class{FQN: "com.acme.Gadget", Name: "Gadget", Kind: symbol.KindClass, Tier: symbol.TierProject})
	u.Put(&symbol.Class{FQN: "java.util.List", Name: "List", Kind: symbol.KindInterface, Tier: symbol.TierRuntime})
	u.Put(&symbol.Class{FQN: "java.lang.String", Name: "String", Kind: symbol.KindClass, Tier: symbol.TierRuntime})

	out := Qualify(raw, tree.RootNode(), []byte(source), u)
	if len(out) != 1 {
		t.Fatalf("qualified %d classes", len(out))
	}
	q := out[0]
	if q.SuperClass != "com.acme.base.Base" {
		t.Errorf("superclass = %q", q.SuperClass)
	}
	names := member(t, q.Fields, "names")
	if names.Type != "java.util.List<java.lang.String>" {
		t.Errorf("names type = %q", names.Type)
	}
	sibling := member(t, q.Fields, "sibling")
	if sibling.Type != "com.acme.Gadget" {
		t.Errorf("same-package reference = %q", sibling.Type)
	}
	parent := member(t, q.Methods, "parent")
	if parent.Type != "com.acme.base.Base" {
		t.Errorf("return type = %q", parent.Type)
	}

	// Published originals stay untouched.
	if raw[0].SuperClass != "Base" {
		t.Errorf("original mutated: %q", raw[0].SuperClass)
	}
}

func TestQualifyKeepsTypeVarsAndPrimitives(t *testing.T) {
	source := `package com.acme;

public class Box<E> {
    E value;
    int size;
    E[] buffer;
}
`
	tree, err := parser.Parse([]byte(source), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	raw := Extract("Box.java", tree.RootNode(), []byte(source))
	u := index.New()
	u.PutBatch(raw)

	q := Qualify(raw, tree.RootNode(), []byte(source), u)[0]
	if got := member(t, q.Fields, "value").Type; got != "E" {
		t.Errorf("type variable rewritten to %q", got)
	}
	if got := member(t, q.Fields, "size").Type; got != "int" {
		t.Errorf("primitive rewritten to %q", got)
	}
	if got := member(t, q.Fields, "buffer").Type; got != "E[]" {
		t.Errorf("array of type variable rewritten to %q", got)
	}
}
