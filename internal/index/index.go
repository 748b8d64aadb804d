// Package index holds the symbol universe: one queryable view over project
// sources, dependency jars and the runtime library.
//
// Types live in three tier maps consulted in priority order, so a project
// declaration always shadows a dependency or runtime class of the same
// qualified name. Supertype edges are stored as name references and resolved
// back through the index, never as pointers, which keeps malformed or cyclic
// hierarchies from producing unbounded traversals.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/emilycares/java-lsp/internal/symbol"
)

// maxSupertypeDepth bounds hierarchy walks. Real Java hierarchies are shallow;
// anything deeper is treated as malformed input.
const maxSupertypeDepth = 16

// MissFunc loads the classes backing a qualified name that is not yet in the
// dependency or runtime tiers. It runs outside the index lock and may decode
// a whole artifact; everything returned is published.
type MissFunc func(ctx context.Context, fqn string) ([]*symbol.Class, error)

// Diag is an index-level finding with no source anchor: duplicate same-tier
// declarations and cyclic hierarchies.
type Diag struct {
	FQN     string
	Message string
}

// Universe is the shared, read-mostly symbol index. Safe for concurrent use;
// population is append-only per key and published atomically under the lock.
type Universe struct {
	mu     sync.RWMutex
	tiers  [3]map[string]*symbol.Class
	byName map[string][]string // simple name -> qualified names, all tiers
	diags  []Diag

	missFn MissFunc
	flight singleflight.Group
}

// New creates an empty universe. The caller owns the handle and passes it
// explicitly into every resolver; there is no package-level instance.
func New() *Universe {
	u := &Universe{byName: make(map[string][]string)}
	for i := range u.tiers {
		u.tiers[i] = make(map[string]*symbol.Class)
	}
	return u
}

// SetMissHandler installs the lazy loader consulted when Lookup misses the
// dependency and runtime tiers.
func (u *Universe) SetMissHandler(fn MissFunc) {
	u.mu.Lock()
	u.missFn = fn
	u.mu.Unlock()
}

// Put publishes a class into its tier. A second concrete type under the same
// name in the same tier is recorded as a diagnostic and the first entry kept,
// never silently replaced. Re-publishing from the same source file replaces
// the earlier entry (incremental re-index).
func (u *Universe) Put(cls *symbol.Class) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.putLocked(cls)
}

// PutBatch publishes a decoded artifact's classes in one critical section so
// readers observe either none or all of them.
func (u *Universe) PutBatch(classes []*symbol.Class) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, cls := range classes {
		u.putLocked(cls)
	}
}

func (u *Universe) putLocked(cls *symbol.Class) {
	tier := u.tiers[cls.Tier]
	if prev, ok := tier[cls.FQN]; ok {
		sameOrigin := cls.Tier == symbol.TierProject && prev.SourcePath == cls.SourcePath
		if !sameOrigin && cls.Tier == symbol.TierProject {
			u.diags = append(u.diags, Diag{
				FQN:     cls.FQN,
				Message: fmt.Sprintf("duplicate %s declaration of %s (already declared in %s)", cls.Tier, cls.FQN, prev.SourcePath),
			})
			return
		}
		if !sameOrigin && cls.Tier != symbol.TierProject {
			// Jars shading the same class are common; first artifact wins.
			return
		}
	} else {
		u.byName[cls.Name] = appendUnique(u.byName[cls.Name], cls.FQN)
	}
	tier[cls.FQN] = cls
}

// RemoveSource evicts every project-tier class declared in the given source
// file, ahead of re-indexing its new contents.
func (u *Universe) RemoveSource(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for fqn, cls := range u.tiers[symbol.TierProject] {
		if cls.SourcePath == path {
			delete(u.tiers[symbol.TierProject], fqn)
			u.byName[cls.Name] = removeString(u.byName[cls.Name], fqn)
		}
	}
}

// Lookup resolves a fully-qualified name with tier shadowing. A miss on every
// tier consults the miss handler once per key: concurrent lookups for the
// same unloaded class share a single decode via singleflight.
func (u *Universe) Lookup(ctx context.Context, fqn string) (*symbol.Class, bool) {
	if cls, ok := u.lookupCached(fqn); ok {
		return cls, true
	}

	u.mu.RLock()
	missFn := u.missFn
	u.mu.RUnlock()
	if missFn == nil {
		return nil, false
	}

	_, err, _ := u.flight.Do(fqn, func() (any, error) {
		// Re-check under flight: an earlier caller may have published.
		if _, ok := u.lookupCached(fqn); ok {
			return nil, nil
		}
		classes, err := missFn(ctx, fqn)
		if err != nil {
			return nil, err
		}
		u.PutBatch(classes)
		return nil, nil
	})
	if err != nil {
		slog.Debug("index.miss_load_failed", "fqn", fqn, "err", err)
		return nil, false
	}
	return u.lookupCached(fqn)
}

func (u *Universe) lookupCached(fqn string) (*symbol.Class, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, tier := range u.tiers {
		if cls, ok := tier[fqn]; ok {
			return cls, true
		}
	}
	return nil, false
}

// Contains reports whether a qualified name is already published in any
// tier, without triggering a lazy load. Wildcard-import probing uses this so
// speculative candidates do not fan out into artifact decodes.
func (u *Universe) Contains(fqn string) bool {
	_, ok := u.lookupCached(fqn)
	return ok
}

// LookupCachedOnly is Lookup without the lazy miss handler.
func (u *Universe) LookupCachedOnly(fqn string) (*symbol.Class, bool) {
	return u.lookupCached(fqn)
}

// MembersOf returns the members of a type including inherited ones, walking
// the supertype chain through the index. Subtype overrides shadow supertype
// members with the same descriptor. Traversal is depth-capped and cycles are
// reported as diagnostics instead of looping.
func (u *Universe) MembersOf(ctx context.Context, fqn string) []symbol.Member {
	var out []symbol.Member
	seen := make(map[string]bool)    // member descriptors already emitted
	visited := make(map[string]bool) // type FQNs already walked (diamond dedupe)

	// Each queued type carries its distance from the root and the set of
	// types on its own superclass path. A supertype reappearing on that path
	// is a cycle; a revisit through a different path is just a diamond.
	type item struct {
		fqn       string
		depth     int
		ancestors map[string]bool
	}
	queue := []item{{fqn: fqn, ancestors: map[string]bool{fqn: true}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.fqn == "" || visited[cur.fqn] {
			continue
		}
		if cur.depth > maxSupertypeDepth {
			u.reportCycle(fqn, cur.fqn)
			continue
		}
		visited[cur.fqn] = true

		cls, ok := u.Lookup(ctx, cur.fqn)
		if !ok {
			continue
		}
		for _, m := range cls.Methods {
			if key := m.Descriptor(); !seen[key] {
				seen[key] = true
				out = append(out, m)
			}
		}
		for _, f := range cls.Fields {
			if key := "field:" + f.Name; !seen[key] {
				seen[key] = true
				out = append(out, f)
			}
		}

		supers := make([]string, 0, len(cls.Interfaces)+1)
		if cls.SuperClass != "" {
			supers = append(supers, cls.SuperClass)
		} else if cur.fqn != "java.lang.Object" && cls.Kind == symbol.KindClass {
			supers = append(supers, "java.lang.Object")
		}
		supers = append(supers, cls.Interfaces...)

		for _, s := range supers {
			if cur.ancestors[s] {
				u.reportCycle(fqn, s)
				continue
			}
			anc := make(map[string]bool, len(cur.ancestors)+1)
			for k := range cur.ancestors {
				anc[k] = true
			}
			anc[s] = true
			queue = append(queue, item{fqn: s, depth: cur.depth + 1, ancestors: anc})
		}
	}
	return out
}

func (u *Universe) reportCycle(root, at string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	msg := fmt.Sprintf("cyclic or overlong supertype chain for %s (at %s)", root, at)
	for _, d := range u.diags {
		if d.FQN == root && d.Message == msg {
			return
		}
	}
	u.diags = append(u.diags, Diag{FQN: root, Message: msg})
}

// CandidatesFor returns every known qualified name with the given simple
// name, across all tiers. Used by wildcard-import resolution and quick-fix
// import suggestions.
func (u *Universe) CandidatesFor(simpleName string) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.byName[simpleName]))
	copy(out, u.byName[simpleName])
	return out
}

// TypesInPackage lists the qualified names declared directly in a package.
func (u *Universe) TypesInPackage(pkg string) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var out []string
	for _, tier := range u.tiers {
		for fqn := range tier {
			if symbol.PackageOf(fqn) == pkg {
				out = append(out, fqn)
			}
		}
	}
	return out
}

// Diagnostics returns a snapshot of accumulated index-level findings.
func (u *Universe) Diagnostics() []Diag {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Diag, len(u.diags))
	copy(out, u.diags)
	return out
}

// Size returns the number of indexed types per tier.
func (u *Universe) Size() (project, dependency, runtime int) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.tiers[symbol.TierProject]),
		len(u.tiers[symbol.TierDependency]),
		len(u.tiers[symbol.TierRuntime])
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	for i, existing := range list {
		if existing == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
