// Copyright © 2024 The ELPS authors

// Package diagnostic renders problems found in visualizer documents as
// annotated source snippets for terminal output.
package diagnostic

import (
	"fmt"

	"github.com/luthersystems/natvis/natvis"
)

// Severity indicates the severity level of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// Span identifies a region of a document to highlight.
type Span struct {
	File   string // path for reading source; display name if unreadable
	Line   int    // 1-based line number
	Col    int    // 1-based start column
	EndCol int    // 1-based end column (0 = auto-detect from source)
	Label  string // text shown under the underline
}

func (s Span) location() string {
	switch {
	case s.Line <= 0:
		return s.File
	case s.Col <= 0:
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// Diagnostic is a single error, warning or note with optional source
// annotations and trailing notes.
type Diagnostic struct {
	Severity Severity
	Message  string
	Spans    []Span
	Notes    []string
}

// FromProblem converts a visualizer document problem.
func FromProblem(p natvis.Problem) Diagnostic {
	d := Diagnostic{
		Severity: SeverityError,
		Message:  p.Msg,
	}
	if p.Severity == natvis.SeverityWarning {
		d.Severity = SeverityWarning
	}
	if p.Pos.File != "" || p.Pos.Line > 0 {
		span := Span{File: p.Pos.File, Line: p.Pos.Line, Col: p.Pos.Col}
		if p.Len > 0 && p.Pos.Col > 0 {
			span.EndCol = p.Pos.Col + p.Len - 1
		}
		d.Spans = []Span{span}
	}
	if p.Type != "" {
		d.Notes = []string{"in Type " + p.Type}
	}
	return d
}

// FromProblems converts problems in order.
func FromProblems(problems []natvis.Problem) []Diagnostic {
	diags := make([]Diagnostic, len(problems))
	for i, p := range problems {
		diags[i] = FromProblem(p)
	}
	return diags
}

// Count returns the number of errors and warnings in diags.
func Count(diags []Diagnostic) (errs, warnings int) {
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}
