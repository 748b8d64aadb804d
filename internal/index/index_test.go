package index

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/emilycares/java-lsp/internal/symbol"
)

func cls(fqn string, tier symbol.Tier) *symbol.Class {
	return &symbol.Class{
		FQN:  fqn,
		Name: symbol.SimpleName(fqn),
		Kind: symbol.KindClass,
		Mods: symbol.ModPublic,
		Tier: tier,
	}
}

func TestTierShadowing(t *testing.T) {
	u := New()
	runtime := cls("com.acme.Widget", symbol.TierRuntime)
	dep := cls("com.acme.Widget", symbol.TierDependency)
	proj := cls("com.acme.Widget", symbol.TierProject)
	proj.SourcePath = "Widget.java"

	u.Put(runtime)
	u.Put(dep)
	u.Put(proj)

	got, ok := u.Lookup(context.Background(), "com.acme.Widget")
	if !ok {
		t.Fatal("expected lookup hit")
	}
	if got.Tier != symbol.TierProject {
		t.Errorf("project tier should shadow, got %v", got.Tier)
	}
}

func TestDuplicateProjectDeclaration(t *testing.T) {
	u := New()
	a := cls("com.acme.Widget", symbol.TierProject)
	a.SourcePath = "a/Widget.java"
	b := cls("com.acme.Widget", symbol.TierProject)
	b.SourcePath = "b/Widget.java"

	u.Put(a)
	u.Put(b)

	got, _ := u.Lookup(context.Background(), "com.acme.Widget")
	if got.SourcePath != "a/Widget.java" {
		t.Errorf("first declaration should win, got %s", got.SourcePath)
	}
	diags := u.Diagnostics()
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "duplicate") {
		t.Errorf("expected duplicate diagnostic, got %v", diags)
	}
}

func TestSameSourceReplaces(t *testing.T) {
	u := New()
	a := cls("com.acme.Widget", symbol.TierProject)
	a.SourcePath = "Widget.java"
	u.Put(a)

	b := cls("com.acme.Widget", symbol.TierProject)
	b.SourcePath = "Widget.java"
	b.Methods = []symbol.Member{{Owner: b.FQN, Name: "run", Kind: symbol.KindMethod, Type: "void"}}
	u.Put(b)

	got, _ := u.Lookup(context.Background(), "com.acme.Widget")
	if len(got.Methods) != 1 {
		t.Error("re-publish from the same file should replace")
	}
	if len(u.Diagnostics()) != 0 {
		t.Error("same-source replace is not a duplicate")
	}
}

func TestDependencyShadingFirstWins(t *testing.T) {
	u := New()
	first := cls("org.slf4j.Logger", symbol.TierDependency)
	first.Methods = []symbol.Member{{Name: "info", Kind: symbol.KindMethod, Type: "void"}}
	second := cls("org.slf4j.Logger", symbol.TierDependency)

	u.Put(first)
	u.Put(second)

	got, _ := u.Lookup(context.Background(), "org.slf4j.Logger")
	if len(got.Methods) != 1 {
		t.Error("first artifact should win on shaded classes")
	}
	if len(u.Diagnostics()) != 0 {
		t.Error("shading is not diagnosed")
	}
}

func TestRemoveSource(t *testing.T) {
	u := New()
	a := cls("com.acme.Widget", symbol.TierProject)
	a.SourcePath = "Widget.java"
	u.Put(a)

	u.RemoveSource("Widget.java")
	if _, ok := u.Lookup(context.Background(), "com.acme.Widget"); ok {
		t.Error("removed source should evict its classes")
	}
	if got := u.CandidatesFor("Widget"); len(got) != 0 {
		t.Errorf("simple-name index should be cleaned, got %v", got)
	}
}

func TestMissHandlerSingleLoad(t *testing.T) {
	u := New()
	loads := 0
	u.SetMissHandler(func(ctx context.Context, fqn string) ([]*symbol.Class, error) {
		loads++
		c := cls("lib.Helper", symbol.TierDependency)
		return []*symbol.Class{c}, nil
	})

	ctx := context.Background()
	if _, ok := u.Lookup(ctx, "lib.Helper"); !ok {
		t.Fatal("miss handler should supply the class")
	}
	if _, ok := u.Lookup(ctx, "lib.Helper"); !ok {
		t.Fatal("second lookup should hit the cache")
	}
	if loads != 1 {
		t.Errorf("expected one load, got %d", loads)
	}
}

func TestMembersOfInheritance(t *testing.T) {
	u := New()
	base := cls("com.acme.Base", symbol.TierProject)
	base.Methods = []symbol.Member{
		{Owner: base.FQN, Name: "run", Kind: symbol.KindMethod, Type: "void"},
		{Owner: base.FQN, Name: "describe", Kind: symbol.KindMethod, Type: "java.lang.String"},
	}
	sub := cls("com.acme.Sub", symbol.TierProject)
	sub.SuperClass = "com.acme.Base"
	sub.Methods = []symbol.Member{
		// Override: same descriptor, subtype wins.
		{Owner: sub.FQN, Name: "run", Kind: symbol.KindMethod, Type: "void"},
	}
	u.Put(base)
	u.Put(sub)

	members := u.MembersOf(context.Background(), "com.acme.Sub")
	var runOwner string
	names := make(map[string]int)
	for _, m := range members {
		names[m.Name]++
		if m.Name == "run" {
			runOwner = m.Owner
		}
	}
	if names["run"] != 1 {
		t.Errorf("override should dedupe, got %d run entries", names["run"])
	}
	if runOwner != "com.acme.Sub" {
		t.Errorf("subtype override should shadow, owner %s", runOwner)
	}
	if names["describe"] != 1 {
		t.Error("inherited member missing")
	}
}

func TestMembersOfDiamondNotCyclic(t *testing.T) {
	u := New()
	top := cls("com.acme.Top", symbol.TierProject)
	top.Kind = symbol.KindInterface
	left := cls("com.acme.Left", symbol.TierProject)
	left.Kind = symbol.KindInterface
	left.Interfaces = []string{"com.acme.Top"}
	right := cls("com.acme.Right", symbol.TierProject)
	right.Kind = symbol.KindInterface
	right.Interfaces = []string{"com.acme.Top"}
	bottom := cls("com.acme.Bottom", symbol.TierProject)
	bottom.Interfaces = []string{"com.acme.Left", "com.acme.Right"}
	for _, c := range []*symbol.Class{top, left, right, bottom} {
		u.Put(c)
	}

	u.MembersOf(context.Background(), "com.acme.Bottom")
	if diags := u.Diagnostics(); len(diags) != 0 {
		t.Errorf("diamond inheritance is not a cycle, got %v", diags)
	}
}

func TestMembersOfCycleReported(t *testing.T) {
	u := New()
	a := cls("com.acme.A", symbol.TierProject)
	a.SuperClass = "com.acme.B"
	b := cls("com.acme.B", symbol.TierProject)
	b.SuperClass = "com.acme.A"
	u.Put(a)
	u.Put(b)

	u.MembersOf(context.Background(), "com.acme.A")
	found := false
	for _, d := range u.Diagnostics() {
		if strings.Contains(d.Message, "cyclic") {
			found = true
		}
	}
	if !found {
		t.Error("cyclic hierarchy should be diagnosed")
	}
}

func TestMembersOfDepthCap(t *testing.T) {
	u := New()
	for i := 0; i < 40; i++ {
		c := cls(fmt.Sprintf("deep.C%d", i), symbol.TierProject)
		if i < 39 {
			c.SuperClass = fmt.Sprintf("deep.C%d", i+1)
		}
		u.Put(c)
	}

	u.MembersOf(context.Background(), "deep.C0")
	found := false
	for _, d := range u.Diagnostics() {
		if strings.Contains(d.Message, "overlong") || strings.Contains(d.Message, "cyclic") {
			found = true
		}
	}
	if !found {
		t.Error("overlong chain should be diagnosed")
	}
}

func TestMembersOfManyDirectInterfaces(t *testing.T) {
	u := New()
	w := cls("com.acme.Wide", symbol.TierProject)
	for i := 0; i < 20; i++ {
		iface := cls(fmt.Sprintf("com.acme.I%d", i), symbol.TierProject)
		iface.Kind = symbol.KindInterface
		iface.Methods = []symbol.Member{
			{Owner: iface.FQN, Name: fmt.Sprintf("m%d", i), Kind: symbol.KindMethod, Type: "void"},
		}
		u.Put(iface)
		w.Interfaces = append(w.Interfaces, iface.FQN)
	}
	u.Put(w)

	members := u.MembersOf(context.Background(), "com.acme.Wide")
	if len(members) != 20 {
		t.Errorf("want all 20 interface members, got %d", len(members))
	}
	if diags := u.Diagnostics(); len(diags) != 0 {
		t.Errorf("a wide flat hierarchy is not overlong, got %v", diags)
	}
}

func TestMembersOfSelfExtends(t *testing.T) {
	u := New()
	a := cls("com.acme.Loop", symbol.TierProject)
	a.SuperClass = "com.acme.Loop"
	u.Put(a)

	u.MembersOf(context.Background(), "com.acme.Loop")
	found := false
	for _, d := range u.Diagnostics() {
		if strings.Contains(d.Message, "cyclic") {
			found = true
		}
	}
	if !found {
		t.Error("self-referential extends should be diagnosed")
	}
}

func TestImplicitObjectSupertype(t *testing.T) {
	u := New()
	obj := cls("java.lang.Object", symbol.TierRuntime)
	obj.Methods = []symbol.Member{
		{Owner: obj.FQN, Name: "toString", Kind: symbol.KindMethod, Type: "java.lang.String"},
	}
	w := cls("com.acme.Widget", symbol.TierProject)
	u.Put(obj)
	u.Put(w)

	members := u.MembersOf(context.Background(), "com.acme.Widget")
	found := false
	for _, m := range members {
		if m.Name == "toString" {
			found = true
		}
	}
	if !found {
		t.Error("classes without an extends clause inherit from Object")
	}
}

func TestCandidatesFor(t *testing.T) {
	u := New()
	u.Put(cls("java.util.List", symbol.TierRuntime))
	u.Put(cls("java.awt.List", symbol.TierRuntime))

	got := u.CandidatesFor("List")
	if len(got) != 2 {
		t.Errorf("expected 2 candidates, got %v", got)
	}
}

func TestTypesInPackage(t *testing.T) {
	u := New()
	u.Put(cls("com.acme.Widget", symbol.TierProject))
	u.Put(cls("com.acme.Gadget", symbol.TierProject))
	u.Put(cls("com.other.Thing", symbol.TierProject))

	got := u.TypesInPackage("com.acme")
	if len(got) != 2 {
		t.Errorf("expected 2 types in com.acme, got %v", got)
	}
}
