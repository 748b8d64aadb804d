// Package store persists decoded symbol batches in SQLite so unchanged
// artifacts are not re-decoded across process restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/emilycares/java-lsp/internal/symbol"
)

// Store wraps a SQLite connection holding the on-disk artifact cache.
type Store struct {
	db     *sql.DB
	dbPath string
}

// cacheDir returns the default cache directory.
func cacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".cache", "java-lsp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir cache: %w", err)
	}
	return dir, nil
}

// Open opens or creates the default on-disk cache database.
func Open() (*Store, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(dir, "symbols.db"))
}

// OpenPath opens a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS artifacts (
	identity   TEXT PRIMARY KEY,
	content_key TEXT NOT NULL,
	classes    TEXT NOT NULL,
	decoded_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// SaveArtifact stores a decoded batch under an artifact identity. contentKey
// is the artifact's content hash; a later load with a different key is a
// cache miss, which is how identity-change invalidation works.
func (s *Store) SaveArtifact(identity, contentKey string, classes []*symbol.Class) error {
	blob, err := json.Marshal(classes)
	if err != nil {
		return fmt.Errorf("marshal classes: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO artifacts (identity, content_key, classes) VALUES (?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET content_key = excluded.content_key, classes = excluded.classes,
	decoded_at = strftime('%s','now')`, identity, contentKey, string(blob))
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", identity, err)
	}
	return nil
}

// LoadArtifact returns the cached batch for an identity when the stored
// content key still matches, and ok=false otherwise.
func (s *Store) LoadArtifact(identity, contentKey string) ([]*symbol.Class, bool, error) {
	var storedKey, blob string
	err := s.db.QueryRow(
		`SELECT content_key, classes FROM artifacts WHERE identity = ?`, identity,
	).Scan(&storedKey, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load artifact %s: %w", identity, err)
	}
	if storedKey != contentKey {
		return nil, false, nil
	}
	var classes []*symbol.Class
	if err := json.Unmarshal([]byte(blob), &classes); err != nil {
		// A corrupt row is treated as a miss; the caller re-decodes.
		return nil, false, nil
	}
	return classes, true, nil
}

// DeleteArtifact drops a cached batch.
func (s *Store) DeleteArtifact(identity string) error {
	_, err := s.db.Exec(`DELETE FROM artifacts WHERE identity = ?`, identity)
	return err
}

// CountArtifacts returns the number of cached artifact batches.
func (s *Store) CountArtifacts() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&n)
	return n, err
}
