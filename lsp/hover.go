// Copyright © 2024 The ELPS authors

package lsp

import (
	"fmt"
	"strings"

	"github.com/luthersystems/natvis/natvis"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentHover handles the textDocument/hover request.
func (s *Server) textDocumentHover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}

	for _, sym := range doc.Symbols() {
		r := toLSPRange(sym.Pos, sym.End)
		if !contains(r, params.Position) {
			continue
		}
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: buildHoverContent(sym),
			},
			Range: &r,
		}, nil
	}
	return nil, nil
}

// buildHoverContent builds Markdown hover text for a Type entry.
func buildHoverContent(sym natvis.Symbol) string {
	var sb strings.Builder
	if sym.Pattern == nil {
		fmt.Fprintf(&sb, "**Type** `%s`\n\nThe name is not a valid type name; this entry is ignored.", sym.Name)
		return sb.String()
	}
	fmt.Fprintf(&sb, "**Type** `%s`", sym.Pattern.Normalized)
	switch {
	case sym.Pattern.Wildcard:
		sb.WriteString("\n\nMatches every type.")
	case sym.Pattern.Generic:
		sb.WriteString("\n\nMatches instantiations whose arguments match the pattern; `*` matches any arguments.")
	}
	if sym.Name != sym.Pattern.Normalized {
		fmt.Fprintf(&sb, "\n\n*Written as* `%s`", sym.Name)
	}
	return sb.String()
}
