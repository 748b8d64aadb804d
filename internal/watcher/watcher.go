// Package watcher polls a project tree for source changes and triggers
// re-indexing of the files that moved.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emilycares/java-lsp/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// IndexFunc re-indexes the given source files. Removed files arrive with
// removed=true, one call per file.
type IndexFunc func(ctx context.Context, path string, removed bool) error

// BuildFunc is called when a build descriptor (pom.xml, build.gradle)
// changes, which invalidates the dependency set.
type BuildFunc func(ctx context.Context) error

// buildFiles are the descriptors whose changes force dependency re-resolution.
var buildFiles = []string{"pom.xml", "build.gradle", "build.gradle.kts", "settings.gradle", "settings.gradle.kts"}

// Watcher polls one project root for file changes.
type Watcher struct {
	root     string
	indexFn  IndexFunc
	buildFn  BuildFunc
	snapshot map[string]fileSnapshot
	builds   map[string]fileSnapshot
	interval time.Duration
}

// New creates a Watcher for the project rooted at root.
func New(root string, indexFn IndexFunc, buildFn BuildFunc) *Watcher {
	return &Watcher{
		root:     root,
		indexFn:  indexFn,
		buildFn:  buildFn,
		interval: baseInterval,
	}
}

// Run blocks until ctx is cancelled, polling at an adaptive interval scaled
// by project size.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.poll(ctx)
			timer.Reset(w.interval)
		}
	}
}

// poll captures a snapshot of the tree and diffs it against the previous one.
// The first poll establishes a baseline without triggering indexing.
func (w *Watcher) poll(ctx context.Context) {
	if _, err := os.Stat(w.root); err != nil {
		slog.Warn("watcher.root_gone", "path", w.root)
		w.interval = maxInterval
		return
	}

	snap, err := w.captureSnapshot(ctx)
	if err != nil {
		slog.Warn("watcher.snapshot", "err", err)
		return
	}
	builds := w.captureBuildFiles()
	w.interval = pollInterval(len(snap))

	if w.snapshot == nil {
		slog.Debug("watcher.baseline", "files", len(snap))
		w.snapshot = snap
		w.builds = builds
		return
	}

	if w.buildFn != nil && !snapshotsEqual(w.builds, builds) {
		slog.Info("watcher.build_changed")
		if err := w.buildFn(ctx); err != nil {
			slog.Warn("watcher.build_reindex", "err", err)
			return
		}
		w.builds = builds
	}

	for path, cur := range snap {
		prev, seen := w.snapshot[path]
		if seen && prev.modTime.Equal(cur.modTime) && prev.size == cur.size {
			continue
		}
		if err := w.indexFn(ctx, path, false); err != nil {
			slog.Warn("watcher.index", "path", path, "err", err)
			continue
		}
		w.snapshot[path] = cur
	}
	for path := range w.snapshot {
		if _, still := snap[path]; still {
			continue
		}
		if err := w.indexFn(ctx, path, true); err != nil {
			slog.Warn("watcher.remove", "path", path, "err", err)
			continue
		}
		delete(w.snapshot, path)
	}
}

func (w *Watcher) captureSnapshot(ctx context.Context) (map[string]fileSnapshot, error) {
	files, err := discover.Discover(ctx, w.root, nil)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.Path] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
		}
	}
	return snap, nil
}

func (w *Watcher) captureBuildFiles() map[string]fileSnapshot {
	snap := make(map[string]fileSnapshot)
	for _, name := range buildFiles {
		path := filepath.Join(w.root, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		snap[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return snap
}

// snapshotsEqual returns true if two snapshots have identical files with same mtime+size.
func snapshotsEqual(a, b map[string]fileSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok {
			return false
		}
		if !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			return false
		}
	}
	return true
}

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
