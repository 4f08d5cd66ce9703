// Copyright © 2024 The ELPS authors

package printer

import (
	"context"
	"strings"

	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/natvis"
)

// Formatter renders values on one line the way the debugger prints them,
// using printers where a lookup provides one:
//
//	size=3 {[size] = 3, [0] = 10, [1] = 20, [2] = 30}
//	{x = 1, y = {a = 2, b = 3}}
type Formatter struct {
	lookup      Lookuper
	maxDepth    int
	maxChildren int
}

// NewFormatter returns a Formatter consulting l.
func NewFormatter(l Lookuper, opts ...Option) *Formatter {
	c := newConfig(opts)
	return &Formatter{lookup: l, maxDepth: c.maxDepth, maxChildren: c.maxChildren}
}

// Format renders v.
func (f *Formatter) Format(ctx context.Context, v host.Value) string {
	return f.format(ctx, v, 0)
}

// FormatPrinter renders the output of p. ok is false when p failed and the
// value should be printed without it.
func (f *Formatter) FormatPrinter(ctx context.Context, p Printer) (s string, ok bool) {
	return f.printed(ctx, p, 0)
}

func (f *Formatter) format(ctx context.Context, v host.Value, depth int) string {
	if p := f.lookup.Lookup(ctx, v); p != nil {
		if s, ok := f.printed(ctx, p, depth); ok {
			return s
		}
	}
	return f.plain(ctx, v, depth)
}

func (f *Formatter) printed(ctx context.Context, p Printer, depth int) (string, bool) {
	s, err := p.ToString()
	if err != nil {
		return "", false
	}
	var list elementList
	it := p.Children()
	for it.Next() {
		c := it.Child()
		if c.Value == nil && c.Name == natvis.DisplayStringLabel {
			continue
		}
		if depth >= f.maxDepth {
			return withSummary(s, "{...}"), true
		}
		if !list.add(f.maxChildren) {
			break
		}
		text := c.Text
		if c.Value != nil && text == "" {
			text = f.format(ctx, c.Value, depth+1)
		}
		list.parts = append(list.parts, c.Name+" = "+text)
	}
	if err := it.Err(); err != nil {
		list.parts = append(list.parts, "<error: "+err.Error()+">")
	}
	if len(list.parts) == 0 {
		return s, true
	}
	return withSummary(s, list.String()), true
}

func (f *Formatter) plain(ctx context.Context, v host.Value, depth int) string {
	t := host.StripTypedefs(v.Type())
	if t == nil {
		return v.String()
	}
	var list elementList
	switch t.Kind() {
	case host.KindStruct, host.KindUnion:
		if depth >= f.maxDepth {
			return "{...}"
		}
		for _, field := range t.Fields() {
			if !list.add(f.maxChildren) {
				break
			}
			fv, err := v.Field(field.Name)
			if err != nil {
				list.parts = append(list.parts, field.Name+" = <error: "+err.Error()+">")
				continue
			}
			list.parts = append(list.parts, field.Name+" = "+f.format(ctx, fv, depth+1))
		}
	case host.KindArray:
		if host.StripTypedefs(t.Target()).Kind() == host.KindChar {
			return v.String()
		}
		if depth >= f.maxDepth {
			return "{...}"
		}
		for i := 0; i < t.Len(); i++ {
			if !list.add(f.maxChildren) {
				break
			}
			ev, err := v.Index(i)
			if err != nil {
				list.parts = append(list.parts, "<error: "+err.Error()+">")
				break
			}
			list.parts = append(list.parts, f.format(ctx, ev, depth+1))
		}
	default:
		return v.String()
	}
	return list.String()
}

type elementList struct {
	parts     []string
	truncated bool
}

// add reports whether another element fits within limit.
func (l *elementList) add(limit int) bool {
	if len(l.parts) >= limit {
		l.truncated = true
		return false
	}
	return true
}

func (l *elementList) String() string {
	s := "{" + strings.Join(l.parts, ", ")
	if l.truncated {
		s += "..."
	}
	return s + "}"
}

func withSummary(summary, body string) string {
	if summary == "" {
		return body
	}
	return summary + " " + body
}
