// Copyright © 2024 The ELPS authors

package natvis

import (
	"io"
	"sort"
)

// Check validates a visualizer document without registering it. Problems
// are sorted by position.
func Check(name string, src io.Reader) []Problem {
	doc, err := readDocument(name, src)
	if err != nil {
		pos := Position{File: name, Line: 1, Col: 1}
		if doc != nil {
			pos = doc.syntaxPosition(err)
		}
		return []Problem{{Severity: SeverityError, Pos: pos, Msg: err.Error()}}
	}
	_, problems, _ := compile(doc)
	sort.SliceStable(problems, func(i, j int) bool {
		a, b := problems[i].Pos, problems[j].Pos
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Col < b.Col
	})
	return problems
}

// Symbol is a Type entry of a visualizer document.
type Symbol struct {
	// Name is the Name attribute as written.
	Name string
	// Pattern is the parsed pattern, nil when Name does not parse.
	Pattern *Pattern
	Pos     Position
	// End is the position just past the element's start tag.
	End Position
}

// Pattern describes a parsed type pattern for display.
type Pattern struct {
	Normalized string
	Wildcard   bool
	Generic    bool
}

// Symbols lists the Type entries of a document in document order. It
// returns nothing for documents that do not parse.
func Symbols(name string, src io.Reader) []Symbol {
	doc, err := readDocument(name, src)
	if err != nil || doc.root.name != "AutoVisualizer" {
		return nil
	}
	var syms []Symbol
	for _, el := range doc.root.children {
		if el.name != "Type" {
			continue
		}
		n, _ := el.attr("Name")
		sym := Symbol{Name: n, Pos: doc.position(el.offset), End: doc.position(el.tagEnd)}
		if rule, _ := compileType(doc, el); rule != nil {
			sym.Pattern = &Pattern{
				Normalized: rule.Pattern.String(),
				Wildcard:   rule.Pattern.IsWildcard(),
				Generic:    rule.Pattern.IsGeneric(),
			}
		}
		syms = append(syms, sym)
	}
	return syms
}
