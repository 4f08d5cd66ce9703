// Copyright © 2024 The ELPS authors

/*
Package typeexpr parses and matches generic type names such as

	Foo<Bar<int>, Baz>

The grammar is deliberately small:

	type := name ( '<' type ( ',' type )* '>' )?
	name := any text up to the next '<', '>' or ','

Whitespace around names and commas is insignificant. A pattern type name of
"*" matches any type, and a pattern with the single argument list "<*>"
matches any instantiation of the named template.
*/
package typeexpr

import (
	"fmt"
	"strings"
)

// Wildcard is the type name that matches any type.
const Wildcard = "*"

// TypeName is a parsed type name. A TypeName is immutable once returned by
// Parse.
type TypeName struct {
	// Name is the template name, or the whole name of a non-generic type.
	Name string
	// Args holds the template arguments in declaration order. It is empty
	// for non-generic types.
	Args []*TypeName
	// Source is the text the root node was parsed from. It is empty for
	// argument nodes.
	Source string
}

// IsWildcard reports whether t is the "*" type.
func (t *TypeName) IsWildcard() bool {
	return t.Name == Wildcard
}

// IsGeneric reports whether t has a template argument list.
func (t *TypeName) IsGeneric() bool {
	return len(t.Args) > 0
}

// Base returns the top-level name of t without its arguments.
func (t *TypeName) Base() string {
	return t.Name
}

// Arg returns the n-th template argument, counting from 1 as "$T1" does in
// visualizer templates.
func (t *TypeName) Arg(n int) (*TypeName, bool) {
	if n < 1 || n > len(t.Args) {
		return nil, false
	}
	return t.Args[n-1], true
}

// String returns the normalized text of t. Arguments are separated by a
// comma and a single space.
func (t *TypeName) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *TypeName) write(b *strings.Builder) {
	b.WriteString(t.Name)
	if len(t.Args) == 0 {
		return
	}
	b.WriteByte('<')
	for i, arg := range t.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		arg.write(b)
	}
	b.WriteByte('>')
}

// GoString implements fmt.GoStringer and prints the tree structure, which is
// easier to read in test failures than the normalized text.
func (t *TypeName) GoString() string {
	args := make([]string, len(t.Args))
	for i, arg := range t.Args {
		args[i] = arg.GoString()
	}
	return fmt.Sprintf("<TypeName: %q [%s]>", t.Name, strings.Join(args, ","))
}

// Match reports whether candidate is an instance of pattern.
//
// A wildcard pattern matches anything. A pattern whose only argument is a
// wildcard ignores the argument lists and compares names. Otherwise the
// argument counts must agree, every argument must match positionally and
// the names must be equal.
func Match(pattern, candidate *TypeName) bool {
	if pattern == nil || candidate == nil {
		return false
	}
	if pattern.IsWildcard() {
		return true
	}
	if !(len(pattern.Args) == 1 && pattern.Args[0].IsWildcard()) {
		if len(pattern.Args) != len(candidate.Args) {
			return false
		}
		for i := range pattern.Args {
			if !Match(pattern.Args[i], candidate.Args[i]) {
				return false
			}
		}
	}
	return pattern.Name == candidate.Name
}
