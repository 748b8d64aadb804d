// Package loader materializes symbol entries from compiled artifacts: the
// jars a build tool resolved and the runtime library of a JDK install.
//
// Decoding is memoized per artifact identity and backed by the on-disk store,
// so many source files referencing the same jar pay the decode cost once per
// artifact, and unchanged artifacts survive process restarts. No index lock
// is held while decoding; batches are handed back whole for atomic publish.
package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/emilycares/java-lsp/internal/classfile"
	"github.com/emilycares/java-lsp/internal/project"
	"github.com/emilycares/java-lsp/internal/store"
	"github.com/emilycares/java-lsp/internal/symbol"
)

// Loader decodes jars and jmods into symbol batches.
type Loader struct {
	store *store.Store // nil disables the persistent cache

	mu     sync.Mutex
	memo   map[string][]*symbol.Class // identity -> decoded batch
	flight singleflight.Group
}

// New creates a Loader. st may be nil for cache-less operation (tests).
func New(st *store.Store) *Loader {
	return &Loader{store: st, memo: make(map[string][]*symbol.Class)}
}

// LoadJar decodes the classes provided by one dependency artifact. Repeated
// and concurrent calls for the same identity share one decode. A corrupt
// entry inside the jar degrades that class only; the rest of the batch is
// preserved. An unresolved descriptor (no local jar) returns an error the
// caller reports as a diagnostic.
func (l *Loader) LoadJar(ctx context.Context, d project.Descriptor) ([]*symbol.Class, error) {
	if !d.Resolved() {
		return nil, fmt.Errorf("artifact %s has no local binary", d.Identity())
	}
	return l.loadOnce(ctx, d.Identity(), func() ([]*symbol.Class, string, error) {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", d.Path, err)
		}
		contentKey := fmt.Sprintf("%x", xxh3.Hash(data))

		if cached, ok := l.loadFromStore(d.Identity(), contentKey); ok {
			return cached, contentKey, nil
		}

		classes, skipped, err := decodeJarBytes(ctx, data, symbol.TierDependency)
		if err != nil {
			return nil, "", err
		}
		if skipped > 0 {
			slog.Warn("loader.partial_decode", "artifact", d.Identity(), "skipped", skipped)
		}
		return classes, contentKey, nil
	})
}

// loadOnce runs decode under singleflight and the memo map, write-through to
// the persistent store.
func (l *Loader) loadOnce(ctx context.Context, identity string, decode func() ([]*symbol.Class, string, error)) ([]*symbol.Class, error) {
	l.mu.Lock()
	if batch, ok := l.memo[identity]; ok {
		l.mu.Unlock()
		return batch, nil
	}
	l.mu.Unlock()

	v, err, _ := l.flight.Do(identity, func() (any, error) {
		l.mu.Lock()
		if batch, ok := l.memo[identity]; ok {
			l.mu.Unlock()
			return batch, nil
		}
		l.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		classes, contentKey, err := decode()
		if err != nil {
			return nil, err
		}
		if l.store != nil {
			if err := l.store.SaveArtifact(identity, contentKey, classes); err != nil {
				slog.Warn("loader.cache_write_failed", "artifact", identity, "err", err)
			}
		}
		l.mu.Lock()
		l.memo[identity] = classes
		l.mu.Unlock()
		return classes, nil
	})
	if err != nil {
		return nil, err
	}
	batch, _ := v.([]*symbol.Class)
	return batch, nil
}

func (l *Loader) loadFromStore(identity, contentKey string) ([]*symbol.Class, bool) {
	if l.store == nil {
		return nil, false
	}
	classes, ok, err := l.store.LoadArtifact(identity, contentKey)
	if err != nil {
		slog.Warn("loader.cache_read_failed", "artifact", identity, "err", err)
		return nil, false
	}
	return classes, ok
}

// decodeJarBytes walks a zip archive held in memory and decodes every class
// entry. Returns the batch and the number of entries skipped as corrupt.
func decodeJarBytes(ctx context.Context, data []byte, tier symbol.Tier) ([]*symbol.Class, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open archive: %w", err)
	}
	return decodeZipEntries(ctx, zr, "", tier)
}

func decodeZipEntries(ctx context.Context, zr *zip.Reader, prefix string, tier symbol.Tier) ([]*symbol.Class, int, error) {
	var classes []*symbol.Class
	skipped := 0
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return classes, skipped, err
		}
		name := entry.Name
		if prefix != "" {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			name = name[len(prefix):]
		}
		if !classEntryWanted(name) {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			skipped++
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			skipped++
			continue
		}
		cls, err := classfile.Decode(raw)
		if err != nil {
			skipped++
			continue
		}
		if !cls.Mods.IsPublic() {
			continue // package-private classes are invisible across artifacts
		}
		cls.Tier = tier
		classes = append(classes, cls)
	}
	return classes, skipped, nil
}

// ScanPackages lists the Java packages an artifact provides by reading entry
// names only, without decoding any class. Cheap enough to run for every
// resolved dependency up front so full decodes can wait for the first
// reference into the package.
func ScanPackages(jarPath string) ([]string, error) {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", jarPath, err)
	}
	defer zr.Close()

	seen := make(map[string]bool)
	for _, entry := range zr.File {
		if !strings.HasSuffix(entry.Name, ".class") {
			continue
		}
		dir := ""
		if idx := strings.LastIndexByte(entry.Name, '/'); idx >= 0 {
			dir = entry.Name[:idx]
		}
		pkg := strings.ReplaceAll(dir, "/", ".")
		seen[pkg] = true
	}
	out := make([]string, 0, len(seen))
	for pkg := range seen {
		out = append(out, pkg)
	}
	return out, nil
}

// classEntryWanted filters archive entries down to decodable top-level and
// named-nested classes.
func classEntryWanted(name string) bool {
	if !strings.HasSuffix(name, ".class") {
		return false
	}
	if strings.HasSuffix(name, "module-info.class") || strings.HasSuffix(name, "package-info.class") {
		return false
	}
	// Anonymous and local classes: Outer$1.class, Outer$1Local.class
	if idx := strings.LastIndexByte(name, '$'); idx >= 0 && idx+1 < len(name) {
		c := name[idx+1]
		if c >= '0' && c <= '9' {
			return false
		}
	}
	return true
}
