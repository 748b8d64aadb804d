// Package server owns the long-lived state of a language session: the symbol
// universe, the open document set and the artifact loader. Features like
// hover and completion are methods on the server so every request resolves
// against one shared, consistently-updated view of the project.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emilycares/java-lsp/internal/config"
	"github.com/emilycares/java-lsp/internal/discover"
	"github.com/emilycares/java-lsp/internal/document"
	"github.com/emilycares/java-lsp/internal/index"
	"github.com/emilycares/java-lsp/internal/loader"
	"github.com/emilycares/java-lsp/internal/parser"
	"github.com/emilycares/java-lsp/internal/project"
	"github.com/emilycares/java-lsp/internal/srcindex"
	"github.com/emilycares/java-lsp/internal/store"
	"github.com/emilycares/java-lsp/internal/symbol"
)

// Server holds everything a session needs to answer queries about one
// project root.
type Server struct {
	Root     string
	Config   *config.Config
	Universe *index.Universe

	loader *loader.Loader
	store  *store.Store

	mu       sync.RWMutex
	docs     map[string]*document.Document
	pkgIndex map[string]project.Descriptor // package -> artifact providing it
	depDiags []string                      // dependency resolution problems
}

// New creates a server for the project rooted at root. The artifact cache is
// opened under the configured cache directory; cache failures degrade to
// uncached operation.
func New(root string, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var st *store.Store
	if dir := cfg.EffectiveCacheDir(); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if opened, err := store.OpenPath(filepath.Join(dir, "symbols.db")); err == nil {
				st = opened
			} else {
				slog.Warn("server.cache_open_failed", "dir", dir, "err", err)
			}
		}
	}
	s := &Server{
		Root:     root,
		Config:   cfg,
		Universe: index.New(),
		loader:   loader.New(st),
		store:    st,
		docs:     make(map[string]*document.Document),
		pkgIndex: make(map[string]project.Descriptor),
	}
	s.Universe.SetMissHandler(s.loadMissing)
	return s
}

// Close releases the artifact cache.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// IndexProject builds the three symbol tiers: project sources eagerly,
// the runtime library eagerly, and dependency jars on demand through the
// miss handler (only their package lists are scanned up front).
func (s *Server) IndexProject(ctx context.Context) error {
	start := time.Now()
	slog.Info("index.start", "path", s.Root)

	files, err := discover.Discover(ctx, s.Root, nil)
	if err != nil {
		return fmt.Errorf("discover sources: %w", err)
	}
	slog.Info("index.discovered", "files", len(files))

	if err := s.indexSources(ctx, files); err != nil {
		return err
	}
	if err := s.ResolveDependencies(ctx); err != nil {
		slog.Warn("index.dependencies", "err", err)
	}
	if err := s.indexRuntime(ctx); err != nil {
		slog.Warn("index.runtime", "err", err)
	}

	p, d, r := s.Universe.Size()
	slog.Info("index.done", "project", p, "dependency", d, "runtime", r, "elapsed", time.Since(start))
	return nil
}

type parsedUnit struct {
	path    string
	source  []byte
	classes []*symbol.Class
}

// indexSources parses and extracts every source file in parallel, publishes
// the raw declarations, then runs the qualify pass once the whole project is
// visible so cross-file type references resolve to qualified names.
func (s *Server) indexSources(ctx context.Context, files []discover.FileInfo) error {
	units := make([]parsedUnit, len(files))

	numWorkers := runtime.NumCPU()
	if numWorkers > len(files) {
		numWorkers = len(files)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source, err := os.ReadFile(f.Path)
			if err != nil {
				slog.Warn("index.read_failed", "path", f.Path, "err", err)
				return nil
			}
			tree, err := parser.Parse(source, nil)
			if err != nil {
				slog.Warn("index.parse_failed", "path", f.Path, "err", err)
				return nil
			}
			classes := srcindex.Extract(f.Path, tree.RootNode(), source)
			tree.Close()
			units[i] = parsedUnit{path: f.Path, source: source, classes: classes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, u := range units {
		if len(u.classes) > 0 {
			s.Universe.PutBatch(u.classes)
		}
	}

	// Second pass: with every project type published, qualify supertype and
	// member type references per unit.
	for _, u := range units {
		if len(u.classes) == 0 {
			continue
		}
		tree, err := parser.Parse(u.source, nil)
		if err != nil {
			continue
		}
		qualified := srcindex.Qualify(u.classes, tree.RootNode(), u.source, s.Universe)
		tree.Close()
		s.Universe.PutBatch(qualified)
	}
	return nil
}

// ReindexFile re-extracts one source file, replacing its earlier
// declarations. removed evicts without re-adding.
func (s *Server) ReindexFile(ctx context.Context, path string, removed bool) error {
	s.Universe.RemoveSource(path)
	if removed {
		return nil
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	tree, err := parser.Parse(source, nil)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	classes := srcindex.Extract(path, tree.RootNode(), source)
	s.Universe.PutBatch(classes)
	qualified := srcindex.Qualify(classes, tree.RootNode(), source, s.Universe)
	s.Universe.PutBatch(qualified)
	return nil
}

// ResolveDependencies runs the build tool integration and scans each
// resolved jar's package list. Full decodes wait for the first qualified
// name referenced out of a jar.
func (s *Server) ResolveDependencies(ctx context.Context) error {
	deps, err := project.Resolve(s.Root, project.Options{
		MavenRepository:  s.Config.MavenRepository,
		GradleExecutable: s.Config.GradleExecutable,
	})
	if err != nil {
		return err
	}

	pkgIndex := make(map[string]project.Descriptor)
	var diags []string
	for _, d := range deps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Resolved() {
			diags = append(diags, fmt.Sprintf("dependency %s is not present in the local repository", d.Identity()))
			continue
		}
		pkgs, err := loader.ScanPackages(d.Path)
		if err != nil {
			diags = append(diags, fmt.Sprintf("dependency %s: %v", d.Identity(), err))
			continue
		}
		for _, pkg := range pkgs {
			if _, taken := pkgIndex[pkg]; !taken {
				pkgIndex[pkg] = d
			}
		}
	}

	s.mu.Lock()
	s.pkgIndex = pkgIndex
	s.depDiags = diags
	s.mu.Unlock()

	slog.Info("index.dependencies_scanned", "artifacts", len(deps), "packages", len(pkgIndex))
	return nil
}

// indexRuntime locates a JDK and publishes its class library.
func (s *Server) indexRuntime(ctx context.Context) error {
	javaHome := s.Config.JavaHome
	if javaHome == "" {
		home, err := loader.FindJavaHome()
		if err != nil {
			return err
		}
		javaHome = home
	}
	batch, err := s.loader.IndexRuntime(ctx, javaHome)
	if err != nil {
		return err
	}
	s.Universe.PutBatch(batch)
	return nil
}

// loadMissing is the universe miss handler: it maps a qualified name to the
// jar providing its package and decodes that artifact.
func (s *Server) loadMissing(ctx context.Context, fqn string) ([]*symbol.Class, error) {
	s.mu.RLock()
	d, ok := s.pkgIndex[symbol.PackageOf(fqn)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no artifact provides %s", fqn)
	}
	return s.loader.LoadJar(ctx, d)
}

// DependencyDiagnostics returns build-integration problems: artifacts the
// build tool names that have no local jar.
func (s *Server) DependencyDiagnostics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.depDiags))
	copy(out, s.depDiags)
	return out
}
