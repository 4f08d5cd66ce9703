// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Renderer formats diagnostics as annotated source snippets:
//
//	error: invalid type name: found type with template list but no parameters
//	  --> doc.natvis:2:22
//	   |
//	 2 |    <Type Name="Foo&lt;&gt;"/>
//	   |                ^^^^^^^^^^
//	   = note: in Type Foo<>
type Renderer struct {
	// Color controls ANSI color output. Default is ColorAuto.
	Color ColorMode

	// SourceReader reads document contents. If nil, os.ReadFile is used.
	SourceReader func(string) ([]byte, error)

	lines map[string][]string
}

// Render writes a single diagnostic to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) error {
	return r.RenderAll(w, []Diagnostic{d})
}

// RenderAll writes all diagnostics to w separated by blank lines. The
// output is assembled first and written in one call.
func (r *Renderer) RenderAll(w io.Writer, diags []Diagnostic) error {
	p := choosePalette(r.Color, fileFromWriter(w))
	var b bytes.Buffer
	for i, d := range diags {
		if i > 0 {
			b.WriteByte('\n')
		}
		r.format(&b, d, p)
	}
	_, err := w.Write(b.Bytes())
	return err
}

func (r *Renderer) format(b *bytes.Buffer, d Diagnostic, p palette) {
	fmt.Fprintf(b, "%s%s%s%s: %s%s%s\n",
		p.severity(d.Severity), p.bold, d.Severity, p.reset,
		p.bold, d.Message, p.reset)
	for _, s := range d.Spans {
		r.formatSpan(b, s, p)
	}
	for _, note := range d.Notes {
		fmt.Fprintf(b, "   %s=%s note: %s\n", p.boldCyan, p.reset, note)
	}
}

func (r *Renderer) formatSpan(b *bytes.Buffer, s Span, p palette) {
	fmt.Fprintf(b, "  %s-->%s %s\n", p.boldBlue, p.reset, s.location())

	src, ok := r.sourceLine(s.File, s.Line)
	if !ok {
		fmt.Fprintf(b, "   %s|%s\n", p.boldBlue, p.reset)
		return
	}

	num := strconv.Itoa(s.Line)
	gutter := func(label string) {
		fmt.Fprintf(b, " %s%*s |%s", p.boldBlue, len(num), label, p.reset)
	}

	gutter("")
	b.WriteByte('\n')
	gutter(num)
	fmt.Fprintf(b, "  %s\n", strings.ReplaceAll(src, "\t", "    "))

	indent, width := underline(src, s.Col, s.EndCol)
	gutter("")
	fmt.Fprintf(b, "  %s%s%s%s", strings.Repeat(" ", indent), p.boldRed, strings.Repeat("^", width), p.reset)
	if s.Label != "" {
		fmt.Fprintf(b, " %s%s%s", p.boldRed, s.Label, p.reset)
	}
	b.WriteByte('\n')
	gutter("")
	b.WriteByte('\n')
}

// sourceLine returns line of file, reading each file at most once.
func (r *Renderer) sourceLine(file string, line int) (string, bool) {
	if line <= 0 || file == "" {
		return "", false
	}
	lines, ok := r.lines[file]
	if !ok {
		lines = r.readLines(file)
		if r.lines == nil {
			r.lines = make(map[string][]string)
		}
		r.lines[file] = lines
	}
	if line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

func (r *Renderer) readLines(file string) []string {
	read := r.SourceReader
	if read == nil {
		read = func(name string) ([]byte, error) {
			return os.ReadFile(name) //nolint:gosec // reads user-specified documents for display
		}
	}
	data, err := read(file)
	if err != nil || len(data) == 0 {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// underline returns the display offset and width of the carets marking
// columns col through endCol of src. An unset endCol extends the mark to
// the end of the XML token at col.
func underline(src string, col, endCol int) (indent, width int) {
	col = max(col, 1)
	if endCol <= 0 {
		endCol = tokenEnd(src, col)
	}
	endCol = max(endCol, col)
	if col-1 <= len(src) {
		indent = displayWidth(src[:col-1])
	}
	return indent, endCol - col + 1
}

// tokenEnd returns the last column of the element name, attribute value or
// text run that starts at col.
func tokenEnd(src string, col int) int {
	if col > len(src) {
		return col
	}
	n := strings.IndexAny(src[col-1:], " \t\"'<>=/")
	switch {
	case n < 0:
		return len(src)
	case n == 0:
		return col
	}
	return col - 1 + n
}

// displayWidth counts runes, with tabs four wide.
func displayWidth(s string) int {
	return utf8.RuneCountInString(s) + 3*strings.Count(s, "\t")
}

func fileFromWriter(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
