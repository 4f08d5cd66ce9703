// Copyright © 2024 The ELPS authors

package lsp

import (
	"strings"
	"sync"

	"github.com/luthersystems/natvis/natvis"
)

// Document represents an open text document tracked by the LSP server.
type Document struct {
	mu       sync.Mutex
	URI      string
	Version  int32
	Content  string
	problems []natvis.Problem
	symbols  []natvis.Symbol
}

// check validates the document content and caches the results.
func (d *Document) check() {
	path := uriToPath(d.URI)
	d.problems = natvis.Check(path, strings.NewReader(d.Content))
	d.symbols = natvis.Symbols(path, strings.NewReader(d.Content))
}

// Problems returns the problems found by the last check.
func (d *Document) Problems() []natvis.Problem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.problems
}

// Symbols returns the Type entries found by the last check.
func (d *Document) Symbols() []natvis.Symbol {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.symbols
}

// DocumentStore manages open documents with thread-safe access.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewDocumentStore creates an empty document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*Document)}
}

// Open adds a document to the store and checks it.
func (s *DocumentStore) Open(uri string, version int32, content string) *Document {
	doc := &Document{
		URI:     uri,
		Version: version,
		Content: content,
	}
	doc.check()
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return doc
}

// Change updates a document's content (full sync). The document is
// checked again by the caller once edits settle.
func (s *DocumentStore) Change(uri string, version int32, content string) *Document {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		doc = &Document{URI: uri}
		s.docs[uri] = doc
	}
	s.mu.Unlock()

	doc.mu.Lock()
	doc.Version = version
	doc.Content = content
	doc.mu.Unlock()
	return doc
}

// Close removes a document from the store.
func (s *DocumentStore) Close(uri string) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
}

// Get retrieves a document by URI. Returns nil if not found.
func (s *DocumentStore) Get(uri string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}
