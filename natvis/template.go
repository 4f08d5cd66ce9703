// Copyright © 2024 The ELPS authors

package natvis

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// segment is a piece of a template: literal text or an expression between
// braces.
type segment struct {
	text string
	expr bool
}

// parseTemplate splits a display template into literal text and {expr}
// placeholders. Doubled braces stand for literal braces.
func parseTemplate(tmpl string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] != '}' {
				return nil, errors.Newf("unclosed { at offset %d", i)
			}
			expr := tmpl[i+1 : i+1+end]
			if strings.TrimSpace(expr) == "" {
				return nil, errors.Newf("empty expression at offset %d", i)
			}
			flush()
			segs = append(segs, segment{text: expr, expr: true})
			i += end + 1
		case c == '}':
			return nil, errors.Newf("unmatched } at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

// unquoteTemplate strips one level of quotes from a template that is a
// quoted literal in its entirety.
func unquoteTemplate(tmpl string) string {
	if len(tmpl) < 2 {
		return tmpl
	}
	first, last := tmpl[0], tmpl[len(tmpl)-1]
	if (first == '"' || first == '\'') && first == last {
		return tmpl[1 : len(tmpl)-1]
	}
	return tmpl
}

// formatCodes is the vocabulary of format specifiers.
var formatCodes = map[string]bool{
	"d": true, "o": true, "x": true, "h": true, "hr": true, "wc": true, "wm": true,
	"X": true, "H": true, "c": true, "s": true, "sa": true, "sb": true, "s8": true,
	"s8b": true, "su": true, "sub": true, "bstr": true, "s32": true, "s32b": true,
	"en": true, "hv": true, "na": true, "nd": true,
}

// splitFormat separates a trailing ",code" format specifier from expr. A
// specifier outside the vocabulary is removed too; it formats as identity.
func splitFormat(expr string) (string, string) {
	i := strings.LastIndexByte(expr, ',')
	if i < 0 {
		return expr, ""
	}
	code := strings.TrimSpace(expr[i+1:])
	if !formatCodes[code] && unknownFormat(expr) == "" {
		return expr, ""
	}
	return expr[:i], code
}

// unknownFormat returns the suffix of an expression that looks like a
// format specifier outside the vocabulary.
func unknownFormat(expr string) string {
	i := strings.LastIndexByte(expr, ',')
	if i < 0 {
		return ""
	}
	code := strings.TrimSpace(expr[i+1:])
	if formatCodes[code] || code == "" {
		return ""
	}
	for _, r := range code {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return ""
		}
	}
	// A plain number is an argument rather than a specifier.
	if code[0] >= '0' && code[0] <= '9' {
		return ""
	}
	return code
}
