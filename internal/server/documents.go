package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emilycares/java-lsp/internal/document"
	"github.com/emilycares/java-lsp/internal/srcindex"
)

// OpenDocument tracks a document; its text now shadows the on-disk file.
func (s *Server) OpenDocument(uri, text string) error {
	doc, err := document.Open(uri, text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if prev, ok := s.docs[uri]; ok {
		prev.Close()
	}
	s.docs[uri] = doc
	s.mu.Unlock()

	s.refreshDeclarations(doc)
	slog.Debug("document.open", "uri", uri)
	return nil
}

// ChangeDocument applies an edit batch at the given version and refreshes
// the file's project-tier declarations from the new revision.
func (s *Server) ChangeDocument(uri string, version int32, changes []document.Change) error {
	doc, ok := s.document(uri)
	if !ok {
		return fmt.Errorf("document %s is not open", uri)
	}
	if err := doc.ApplyChanges(version, changes); err != nil {
		return err
	}
	s.refreshDeclarations(doc)
	return nil
}

// CloseDocument stops tracking a document. The on-disk file becomes
// authoritative again; the watcher or an explicit reindex picks it up.
func (s *Server) CloseDocument(ctx context.Context, uri string) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if ok {
		delete(s.docs, uri)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	doc.Close()

	if path := uriPath(uri); path != "" {
		if err := s.ReindexFile(ctx, path, false); err != nil {
			slog.Debug("document.close_reindex", "uri", uri, "err", err)
		}
	}
}

// DocumentVersion returns the current version of an open document, or -1.
func (s *Server) DocumentVersion(uri string) int32 {
	doc, ok := s.document(uri)
	if !ok {
		return -1
	}
	return doc.Version()
}

func (s *Server) document(uri string) (*document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// refreshDeclarations republishes the declarations of an open document from
// its in-memory revision.
func (s *Server) refreshDeclarations(doc *document.Document) {
	path := uriPath(doc.URI())
	if path == "" {
		return
	}
	source, tree, _ := doc.Snapshot()
	if tree == nil {
		return
	}
	defer tree.Close()
	s.Universe.RemoveSource(path)
	classes := srcindex.Extract(path, tree.RootNode(), source)
	s.Universe.PutBatch(classes)
	qualified := srcindex.Qualify(classes, tree.RootNode(), source, s.Universe)
	s.Universe.PutBatch(qualified)
}

// uriPath strips a file:// scheme; plain paths pass through.
func uriPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
