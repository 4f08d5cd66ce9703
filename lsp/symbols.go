// Copyright © 2024 The ELPS authors

package lsp

import (
	"github.com/luthersystems/natvis/natvis"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentDocumentSymbol handles the textDocument/documentSymbol request.
func (s *Server) textDocumentDocumentSymbol(_ *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}

	var symbols []protocol.DocumentSymbol
	for _, sym := range doc.Symbols() {
		r := toLSPRange(sym.Pos, sym.End)
		name := sym.Name
		if name == "" {
			name = "<unnamed>"
		}
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           name,
			Detail:         symbolDetail(sym),
			Kind:           protocol.SymbolKindClass,
			Range:          r,
			SelectionRange: r,
		})
	}

	// Return as []DocumentSymbol (the preferred hierarchical form).
	return symbols, nil
}

// symbolDetail is the normalized pattern of a Type entry, or a note that
// its name is invalid.
func symbolDetail(sym natvis.Symbol) *string {
	if sym.Pattern == nil {
		return strPtr("invalid type name")
	}
	return strPtr(sym.Pattern.Normalized)
}
