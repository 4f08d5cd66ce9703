// Copyright © 2024 The ELPS authors

package natvis

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// Namespace is the XML namespace of visualizer documents.
const Namespace = "http://schemas.microsoft.com/vstudio/debugger/natvis/2010"

// Position is a location in a visualizer document. Line and Col are 1-based;
// Col counts bytes.
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// element is a node of the document tree. Tag names are local names; the
// namespace is kept separately in space.
type element struct {
	name     string
	space    string
	attrs    []xml.Attr
	text     string
	children []*element
	// offset of the '<' opening the element and of the byte following its
	// start tag.
	offset    int64
	tagEnd    int64
	textStart int64
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// document is a parsed visualizer document that remembers the source so
// problems can point at byte positions.
type document struct {
	name  string
	src   []byte
	lines []int64
	root  *element
}

func readDocument(name string, r io.Reader) (*document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	doc := &document{name: name, src: src}
	doc.lines = append(doc.lines, 0)
	for i, b := range src {
		if b == '\n' {
			doc.lines = append(doc.lines, int64(i+1))
		}
	}
	dec := xml.NewDecoder(bytes.NewReader(src))
	var stack []*element
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return doc, err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			e := &element{
				name:   tok.Name.Local,
				space:  tok.Name.Space,
				attrs:  tok.Attr,
				offset: start,
				tagEnd: dec.InputOffset(),
			}
			e.textStart = e.tagEnd
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, e)
			} else if doc.root == nil {
				doc.root = e
			}
			stack = append(stack, e)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.text == "" {
					top.textStart = start
				}
				top.text += string(tok)
			}
		}
	}
	if doc.root == nil {
		return doc, errors.New("document has no root element")
	}
	return doc, nil
}

// position converts a byte offset into a Position.
func (d *document) position(offset int64) Position {
	lo, hi := 0, len(d.lines)
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if d.lines[mid] <= offset {
			lo = mid
		} else {
			hi = mid
		}
	}
	return Position{File: d.name, Line: lo + 1, Col: int(offset-d.lines[lo]) + 1}
}

// attrValueOffset returns the offset of the first byte of attribute name's
// value in e's start tag, or e's offset when it cannot be located.
func (d *document) attrValueOffset(e *element, name string) int64 {
	if e.tagEnd > int64(len(d.src)) || e.offset >= e.tagEnd {
		return e.offset
	}
	tag := d.src[e.offset:e.tagEnd]
	re := regexp.MustCompile(`(?:^|\s)(?:\w+:)?` + regexp.QuoteMeta(name) + `\s*=\s*["']`)
	loc := re.FindIndex(tag)
	if loc == nil {
		return e.offset
	}
	return e.offset + int64(loc[1])
}

// advance returns the offset reached by moving n decoded characters
// forward from off, treating each entity reference as one character.
func (d *document) advance(off int64, n int) int64 {
	for ; n > 0 && off < int64(len(d.src)); n-- {
		if d.src[off] == '&' {
			if end := bytes.IndexByte(d.src[off:], ';'); end > 0 {
				off += int64(end) + 1
				continue
			}
		}
		off++
	}
	return off
}

// textOffset returns the offset of the first non-space byte of e's text.
func (d *document) textOffset(e *element) int64 {
	lead := len(e.text) - len(strings.TrimLeft(e.text, " \t\r\n"))
	return e.textStart + int64(lead)
}

// syntaxPosition extracts a position from an XML decoding error.
func (d *document) syntaxPosition(err error) Position {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return Position{File: d.name, Line: se.Line, Col: 1}
	}
	return Position{File: d.name, Line: 1, Col: 1}
}
