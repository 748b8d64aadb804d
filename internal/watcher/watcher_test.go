package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestSnapshotsEqual(t *testing.T) {
	now := time.Now()

	a := map[string]fileSnapshot{
		"App.java":  {modTime: now, size: 100},
		"Util.java": {modTime: now, size: 200},
	}
	b := map[string]fileSnapshot{
		"App.java":  {modTime: now, size: 100},
		"Util.java": {modTime: now, size: 200},
	}
	if !snapshotsEqual(a, b) {
		t.Error("identical snapshots should be equal")
	}

	// Different size
	c := map[string]fileSnapshot{
		"App.java":  {modTime: now, size: 101},
		"Util.java": {modTime: now, size: 200},
	}
	if snapshotsEqual(a, c) {
		t.Error("different size should not be equal")
	}

	// Different mtime
	d := map[string]fileSnapshot{
		"App.java":  {modTime: now.Add(time.Second), size: 100},
		"Util.java": {modTime: now, size: 200},
	}
	if snapshotsEqual(a, d) {
		t.Error("different mtime should not be equal")
	}

	// Missing file
	e := map[string]fileSnapshot{
		"App.java": {modTime: now, size: 100},
	}
	if snapshotsEqual(a, e) {
		t.Error("different file count should not be equal")
	}

	// Both empty
	if !snapshotsEqual(map[string]fileSnapshot{}, map[string]fileSnapshot{}) {
		t.Error("both empty should be equal")
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		files    int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{70, 1 * time.Second},
		{499, 1 * time.Second},
		{500, 2 * time.Second},
		{2000, 5 * time.Second},
		{5000, 11 * time.Second},
		{50000, 60 * time.Second},
		{100000, 60 * time.Second},
	}
	for _, tt := range tests {
		got := pollInterval(tt.files)
		if got != tt.expected {
			t.Errorf("pollInterval(%d) = %v, want %v", tt.files, got, tt.expected)
		}
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	javaFile := filepath.Join(tmpDir, "App.java")
	if err := os.WriteFile(javaFile, []byte("class App {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var indexCount atomic.Int32
	w := New(tmpDir, func(_ context.Context, _ string, _ bool) error {
		indexCount.Add(1)
		return nil
	}, nil)

	ctx := context.Background()

	// First poll establishes the baseline.
	w.poll(ctx)
	if indexCount.Load() != 0 {
		t.Errorf("first poll should not trigger index, got %d", indexCount.Load())
	}

	// No changes, no trigger.
	w.poll(ctx)
	if indexCount.Load() != 0 {
		t.Errorf("no-change poll should not trigger index, got %d", indexCount.Load())
	}

	now := time.Now().Add(time.Second)
	if err := os.Chtimes(javaFile, now, now); err != nil {
		t.Fatal(err)
	}

	w.poll(ctx)
	if indexCount.Load() != 1 {
		t.Errorf("changed file should trigger index, got %d", indexCount.Load())
	}
}

func TestWatcherNewAndRemovedFiles(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "App.java"), []byte("class App {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var indexed, removed atomic.Int32
	w := New(tmpDir, func(_ context.Context, _ string, rm bool) error {
		if rm {
			removed.Add(1)
		} else {
			indexed.Add(1)
		}
		return nil
	}, nil)

	ctx := context.Background()
	w.poll(ctx) // baseline

	extra := filepath.Join(tmpDir, "Util.java")
	if err := os.WriteFile(extra, []byte("class Util {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w.poll(ctx)
	if indexed.Load() != 1 {
		t.Errorf("new file should trigger index, got %d", indexed.Load())
	}

	if err := os.Remove(extra); err != nil {
		t.Fatal(err)
	}
	w.poll(ctx)
	if removed.Load() != 1 {
		t.Errorf("deleted file should trigger removal, got %d", removed.Load())
	}
}

func TestWatcherBuildFileChange(t *testing.T) {
	tmpDir := t.TempDir()
	pom := filepath.Join(tmpDir, "pom.xml")
	if err := os.WriteFile(pom, []byte("<project/>"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buildCount atomic.Int32
	w := New(tmpDir,
		func(_ context.Context, _ string, _ bool) error { return nil },
		func(_ context.Context) error {
			buildCount.Add(1)
			return nil
		})

	ctx := context.Background()
	w.poll(ctx) // baseline
	if buildCount.Load() != 0 {
		t.Errorf("baseline poll should not trigger build, got %d", buildCount.Load())
	}

	now := time.Now().Add(time.Second)
	if err := os.Chtimes(pom, now, now); err != nil {
		t.Fatal(err)
	}
	w.poll(ctx)
	if buildCount.Load() != 1 {
		t.Errorf("pom change should trigger build re-resolution, got %d", buildCount.Load())
	}
}

func TestWatcherCancellation(t *testing.T) {
	w := New(t.TempDir(), func(_ context.Context, _ string, _ bool) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
		// goroutine exited cleanly
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	var indexCount atomic.Int32
	w := New("/nonexistent/path", func(_ context.Context, _ string, _ bool) error {
		indexCount.Add(1)
		return nil
	}, nil)

	w.poll(context.Background())
	if indexCount.Load() != 0 {
		t.Errorf("should not index missing root, got %d", indexCount.Load())
	}
}
