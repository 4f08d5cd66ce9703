// Copyright © 2024 The ELPS authors

package typeexpr

import (
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError is returned by Parse for malformed type names.
type SyntaxError struct {
	// Input is the complete text being parsed.
	Input string
	// Pos is the 1-based byte offset of the offending character.
	Pos int
	Msg string
}

func (err *SyntaxError) Error() string {
	return fmt.Sprintf("%q:%d: %s", err.Input, err.Pos, err.Msg)
}

// Parse parses text as a possibly generic type name.
func Parse(text string) (*TypeName, error) {
	p := &parser{input: text}
	t, end, err := p.parseType(0)
	if err != nil {
		return nil, err
	}
	end = p.skipSpace(end)
	if end < len(text) {
		return nil, p.errorf(end, "input remained after reading entire type: %q", text[end:])
	}
	t.Source = text
	return t, nil
}

// MustParse is like Parse but panics on error. It simplifies the
// initialization of package-level patterns.
func MustParse(text string) *TypeName {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	input string
}

func (p *parser) errorf(offset int, format string, v ...interface{}) error {
	return &SyntaxError{
		Input: p.input,
		Pos:   offset + 1,
		Msg:   fmt.Sprintf(format, v...),
	}
}

func (p *parser) skipSpace(i int) int {
	for i < len(p.input) && unicode.IsSpace(rune(p.input[i])) {
		i++
	}
	return i
}

func (p *parser) describe(i int) string {
	if i >= len(p.input) {
		return "<EOF>"
	}
	return p.input[i : i+1]
}

// parseType reads one type name starting at offset start. It returns the
// parsed node and the offset of the first byte it did not consume.
func (p *parser) parseType(start int) (*TypeName, int, error) {
	rel := strings.IndexAny(p.input[start:], "<>,")
	if rel < 0 {
		name := strings.TrimSpace(p.input[start:])
		if name == "" {
			return nil, 0, p.errorf(len(p.input), "expected a type name, got %q instead", p.describe(len(p.input)))
		}
		return &TypeName{Name: name}, len(p.input), nil
	}
	nameEnd := start + rel
	name := strings.TrimSpace(p.input[start:nameEnd])
	if name == "" {
		return nil, 0, p.errorf(nameEnd, "expected a type name, got %q instead", p.describe(nameEnd))
	}
	if p.input[nameEnd] != '<' {
		// The next delimiter ends this name; the caller consumes it.
		return &TypeName{Name: name}, nameEnd, nil
	}

	var args []*TypeName
	i := p.skipSpace(nameEnd + 1)
	for i < len(p.input) && p.input[i] != '>' {
		arg, end, err := p.parseType(i)
		if err != nil {
			return nil, 0, err
		}
		args = append(args, arg)
		i = p.skipSpace(end)
		if i >= len(p.input) || p.input[i] == '>' {
			break
		}
		if p.input[i] != ',' {
			return nil, 0, p.errorf(i, "expected \">\" but found %q instead", p.describe(i))
		}
		i = p.skipSpace(i + 1)
		if i >= len(p.input) || strings.IndexByte("<>,", p.input[i]) >= 0 {
			return nil, 0, p.errorf(i, "expected a type name, got %q instead", p.describe(i))
		}
	}
	if len(args) == 0 {
		return nil, 0, p.errorf(i, "found type with template list but no parameters")
	}
	if i >= len(p.input) {
		return nil, 0, p.errorf(i, "expected \">\" but found %q instead", p.describe(i))
	}
	return &TypeName{Name: name, Args: args}, i + 1, nil
}
