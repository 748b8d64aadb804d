package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/zeebo/xxh3"

	"github.com/emilycares/java-lsp/internal/project"
	"github.com/emilycares/java-lsp/internal/store"
	"github.com/emilycares/java-lsp/internal/symbol"
)

// minClass builds the smallest decodable class file: a class with the given
// binary name extending java/lang/Object, no members.
func minClass(binaryName string, public bool) []byte {
	var buf bytes.Buffer
	u2 := func(v uint16) { binary.Write(&buf, binary.BigEndian, v) }
	u4 := func(v uint32) { binary.Write(&buf, binary.BigEndian, v) }
	utf8 := func(s string) {
		buf.WriteByte(1)
		u2(uint16(len(s)))
		buf.WriteString(s)
	}

	u4(0xCAFEBABE)
	u2(0) // minor
	u2(52)
	u2(5) // pool count: entries 1..4
	utf8(binaryName)
	buf.WriteByte(7) // Class -> entry 1
	u2(1)
	utf8("java/lang/Object")
	buf.WriteByte(7) // Class -> entry 3
	u2(3)

	flags := uint16(0)
	if public {
		flags = 0x0001
	}
	u2(flags)
	u2(2) // this_class
	u2(4) // super_class
	u2(0) // interfaces
	u2(0) // fields
	u2(0) // methods
	u2(0) // attributes
	return buf.Bytes()
}

func writeJar(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassEntryWanted(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"com/acme/Widget.class", true},
		{"com/acme/Widget$Inner.class", true},
		{"com/acme/Widget$1.class", false},
		{"com/acme/Widget$1Local.class", false},
		{"module-info.class", false},
		{"com/acme/package-info.class", false},
		{"META-INF/MANIFEST.MF", false},
		{"com/acme/resource.txt", false},
	}
	for _, c := range cases {
		if got := classEntryWanted(c.name); got != c.want {
			t.Errorf("classEntryWanted(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestScanPackages(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "lib.jar")
	writeJar(t, jar, map[string][]byte{
		"com/acme/Widget.class":    minClass("com/acme/Widget", true),
		"com/acme/Gadget.class":    minClass("com/acme/Gadget", true),
		"com/acme/util/Util.class": minClass("com/acme/util/Util", true),
		"Root.class":               minClass("Root", true),
		"META-INF/MANIFEST.MF":     []byte("Manifest-Version: 1.0\n"),
	})

	pkgs, err := ScanPackages(jar)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(pkgs)
	want := []string{"", "com.acme", "com.acme.util"}
	if len(pkgs) != len(want) {
		t.Fatalf("packages = %v, want %v", pkgs, want)
	}
	for i := range want {
		if pkgs[i] != want[i] {
			t.Fatalf("packages = %v, want %v", pkgs, want)
		}
	}
}

func TestScanPackagesMissingFile(t *testing.T) {
	if _, err := ScanPackages(filepath.Join(t.TempDir(), "absent.jar")); err == nil {
		t.Error("expected an error for a missing jar")
	}
}

func TestLoadJar(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "widget-1.0.jar")
	writeJar(t, jar, map[string][]byte{
		"com/acme/Widget.class":   minClass("com/acme/Widget", true),
		"com/acme/Internal.class": minClass("com/acme/Internal", false),
		"com/acme/Broken.class":   []byte("not a class file"),
	})

	l := New(nil)
	d := project.Descriptor{Group: "com.acme", Artifact: "widget", Version: "1.0", Path: jar}
	classes, err := l.LoadJar(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 1 {
		t.Fatalf("got %d classes, want 1 (package-private and corrupt dropped): %v", len(classes), classes)
	}
	cls := classes[0]
	if cls.FQN != "com.acme.Widget" {
		t.Errorf("FQN = %s", cls.FQN)
	}
	if cls.Tier != symbol.TierDependency {
		t.Errorf("tier = %v, want dependency", cls.Tier)
	}
	if cls.SuperClass != "" {
		t.Errorf("java.lang.Object supertype should normalize to empty, got %q", cls.SuperClass)
	}
}

func TestLoadJarUnresolved(t *testing.T) {
	l := New(nil)
	d := project.Descriptor{Group: "com.acme", Artifact: "widget", Version: "1.0"}
	if _, err := l.LoadJar(context.Background(), d); err == nil {
		t.Error("expected an error for a descriptor without a local binary")
	}
}

func TestLoadJarMemoized(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "widget-1.0.jar")
	writeJar(t, jar, map[string][]byte{
		"com/acme/Widget.class": minClass("com/acme/Widget", true),
	})

	l := New(nil)
	d := project.Descriptor{Group: "com.acme", Artifact: "widget", Version: "1.0", Path: jar}
	first, err := l.LoadJar(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}

	// The second load for the same identity must come from the memo, so
	// removing the file underneath cannot fail it.
	if err := os.Remove(jar); err != nil {
		t.Fatal(err)
	}
	second, err := l.LoadJar(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) || second[0] != first[0] {
		t.Error("second load did not return the memoized batch")
	}
}

func TestLoadJarStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "widget-1.0.jar")
	writeJar(t, jar, map[string][]byte{
		"com/acme/Widget.class": minClass("com/acme/Widget", true),
	})

	st, err := store.OpenPath(filepath.Join(dir, "symbols.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	d := project.Descriptor{Group: "com.acme", Artifact: "widget", Version: "1.0", Path: jar}
	if _, err := New(st).LoadJar(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(jar)
	if err != nil {
		t.Fatal(err)
	}
	key := fmt.Sprintf("%x", xxh3.Hash(data))
	cached, ok, err := st.LoadArtifact(d.Identity(), key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("decode was not written through to the store")
	}
	if len(cached) != 1 || cached[0].FQN != "com.acme.Widget" {
		t.Errorf("cached batch = %v", cached)
	}

	// A fresh loader on the same store serves the batch without re-decoding.
	classes, err := New(st).LoadJar(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 1 || classes[0].FQN != "com.acme.Widget" {
		t.Errorf("reloaded batch = %v", classes)
	}
}

func TestIndexRuntime(t *testing.T) {
	javaHome := t.TempDir()
	jmods := filepath.Join(javaHome, "jmods")
	if err := os.MkdirAll(jmods, 0o755); err != nil {
		t.Fatal(err)
	}

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for name, data := range map[string][]byte{
		"classes/java/lang/String.class": minClass("java/lang/String", true),
		"classes/module-info.class":      minClass("module-info", true),
		"legal/LICENSE":                  []byte("license text"),
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	jmod := append(append([]byte{}, jmodMagic...), zipBuf.Bytes()...)
	if err := os.WriteFile(filepath.Join(jmods, "java.base.jmod"), jmod, 0o644); err != nil {
		t.Fatal(err)
	}

	classes, err := New(nil).IndexRuntime(context.Background(), javaHome)
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 1 {
		t.Fatalf("got %d classes, want 1: %v", len(classes), classes)
	}
	if classes[0].FQN != "java.lang.String" || classes[0].Tier != symbol.TierRuntime {
		t.Errorf("decoded = %+v", classes[0])
	}
}

func TestIndexRuntimeMissingJmods(t *testing.T) {
	if _, err := New(nil).IndexRuntime(context.Background(), t.TempDir()); err == nil {
		t.Error("expected an error for an install without jmods")
	}
}

func TestLoadJarCancelled(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "widget-1.0.jar")
	writeJar(t, jar, map[string][]byte{
		"com/acme/Widget.class": minClass("com/acme/Widget", true),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := project.Descriptor{Group: "com.acme", Artifact: "widget", Version: "1.0", Path: jar}
	if _, err := New(nil).LoadJar(ctx, d); err == nil {
		t.Error("expected a cancellation error")
	}
}
