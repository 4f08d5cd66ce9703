// Copyright © 2024 The ELPS authors

package lsp

import (
	"time"

	"github.com/luthersystems/natvis/natvis"
	"github.com/tliron/glsp"
	"go.uber.org/zap"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentDidOpen handles the textDocument/didOpen notification.
func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.captureNotify(ctx)
	doc := s.docs.Open(
		params.TextDocument.URI,
		int32(params.TextDocument.Version), // #nosec G115 -- document versions are small
		params.TextDocument.Text,
	)
	s.publish(doc)
	return nil
}

// textDocumentDidChange handles the textDocument/didChange notification.
func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.captureNotify(ctx)
	// With full sync, the last content change is the complete document.
	var content string
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = c.Text
		case protocol.TextDocumentContentChangeEvent:
			content = c.Text
		}
	}

	doc := s.docs.Change(
		params.TextDocument.URI,
		int32(params.TextDocument.Version), // #nosec G115 -- document versions are small
		content,
	)

	// Debounce: delay checking to avoid thrashing during rapid edits.
	s.debounceMu.Lock()
	if t, ok := s.debounce[doc.URI]; ok {
		t.Stop()
	}
	s.debounce[doc.URI] = time.AfterFunc(s.debounceDelay, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("document check panicked", zap.String("uri", doc.URI), zap.Any("panic", r))
			}
		}()
		if d := s.docs.Get(doc.URI); d != nil {
			s.checkAndPublish(d)
		}
	})
	s.debounceMu.Unlock()
	return nil
}

// textDocumentDidSave handles the textDocument/didSave notification.
func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.captureNotify(ctx)
	// Cancel any pending debounce and publish immediately.
	s.cancelDebounce(params.TextDocument.URI)

	if doc := s.docs.Get(params.TextDocument.URI); doc != nil {
		s.checkAndPublish(doc)
	}
	return nil
}

// textDocumentDidClose handles the textDocument/didClose notification.
func (s *Server) textDocumentDidClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.cancelDebounce(params.TextDocument.URI)

	// Clear diagnostics for the closed file.
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})

	s.docs.Close(params.TextDocument.URI)
	return nil
}

func (s *Server) cancelDebounce(uri string) {
	s.debounceMu.Lock()
	if t, ok := s.debounce[uri]; ok {
		t.Stop()
		delete(s.debounce, uri)
	}
	s.debounceMu.Unlock()
}

// checkAndPublish checks the document's current content and publishes the
// resulting diagnostics.
func (s *Server) checkAndPublish(doc *Document) {
	doc.mu.Lock()
	doc.check()
	doc.mu.Unlock()
	s.publish(doc)
}

// publish sends the problems of the last check to the client.
func (s *Server) publish(doc *Document) {
	doc.mu.Lock()
	problems := doc.problems
	uri := doc.URI
	version := protocol.UInteger(doc.Version) // #nosec G115 -- document versions are small
	doc.mu.Unlock()

	diags := make([]protocol.Diagnostic, len(problems))
	for i, p := range problems {
		diags[i] = convertProblem(p)
	}
	s.logger.Debug("publishing diagnostics", zap.String("uri", uri), zap.Int("count", len(diags)))
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     &version,
		Diagnostics: diags,
	})
}

// convertProblem converts a natvis.Problem to an LSP Diagnostic.
func convertProblem(p natvis.Problem) protocol.Diagnostic {
	start := toLSPPosition(p.Pos)
	end := start
	if p.Len > 0 {
		end.Character += safeUint(p.Len)
	}
	d := protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: severity(mapSeverity(p.Severity)),
		Source:   strPtr("natvis"),
		Message:  p.Msg,
	}
	if p.Type != "" {
		d.Code = &protocol.IntegerOrString{Value: p.Type}
	}
	return d
}

// mapSeverity converts a natvis.Severity to a protocol.DiagnosticSeverity.
func mapSeverity(sev natvis.Severity) protocol.DiagnosticSeverity {
	switch sev {
	case natvis.SeverityError:
		return protocol.DiagnosticSeverityError
	case natvis.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityInformation
	}
}

func severity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func strPtr(s string) *string {
	return &s
}
