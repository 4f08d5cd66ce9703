// Copyright © 2024 The ELPS authors

package natvis

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/typeexpr"
)

// Rule is a visualizer for the types matching Pattern.
type Rule struct {
	Pattern        *typeexpr.TypeName
	DisplayStrings []DisplayString
	Items          []Item
	Source         Position
}

// DisplayString is a summary template, used when Condition is empty or
// holds.
type DisplayString struct {
	Condition string
	Template  string
	Source    Position
}

// ItemKind distinguishes the kinds of Item.
type ItemKind int

const (
	// NamedItem is a single child computed by an expression.
	NamedItem ItemKind = iota
	// ArrayLoop is a run of children read through a pointer.
	ArrayLoop
)

func (k ItemKind) String() string {
	if k == ArrayLoop {
		return "ArrayItems"
	}
	return "Item"
}

// Item describes children of a visualized value. Name and Expression are
// used by NamedItem; Size and ValuePointer by ArrayLoop.
type Item struct {
	Kind         ItemKind
	Condition    string
	Name         string
	Expression   string
	Size         string
	ValuePointer string
	Source       Position
}

// DefaultItemName labels a NamedItem that has no name.
const DefaultItemName = "Unnamed"

// Severity ranks a Problem.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Problem is an issue found in a visualizer document.
type Problem struct {
	Severity Severity
	Pos      Position
	// Len is the number of bytes the problem spans, zero when unknown.
	Len int
	Msg string
	// Type is the Name of the enclosing Type element, if any.
	Type string
}

func (p Problem) String() string {
	return p.Pos.String() + ": " + p.Severity.String() + ": " + p.Msg
}

// unsupportedExpand lists Expand children that are recognized but not
// rendered.
var unsupportedExpand = map[string]bool{
	"IndexListItems":  true,
	"LinkedListItems": true,
	"TreeItems":       true,
	"ExpandedItem":    true,
	"Synthetic":       true,
	"CustomListItems": true,
}

// compile converts a document into rules. Types that cannot be used are
// reported as errors and left out; recoverable oddities are warnings. ok
// is false when the document is not a visualizer document at all.
func compile(doc *document) (rules []*Rule, problems []Problem, ok bool) {
	root := doc.root
	if root.name != "AutoVisualizer" {
		problems = append(problems, Problem{
			Severity: SeverityError,
			Pos:      doc.position(root.offset),
			Len:      len(root.name) + 1,
			Msg:      "root element is " + root.name + ", expected AutoVisualizer",
		})
		return nil, problems, false
	}
	if root.space != "" && root.space != Namespace {
		problems = append(problems, Problem{
			Severity: SeverityError,
			Pos:      doc.position(root.offset),
			Len:      len(root.name) + 1,
			Msg:      "root element is in namespace " + root.space + ", expected " + Namespace,
		})
		return nil, problems, false
	}
	for _, el := range root.children {
		if el.name != "Type" {
			continue
		}
		rule, ps := compileType(doc, el)
		problems = append(problems, ps...)
		if rule != nil {
			rules = append(rules, rule)
		}
	}
	return rules, problems, true
}

func compileType(doc *document, el *element) (*Rule, []Problem) {
	var problems []Problem
	name, ok := el.attr("Name")
	if !ok {
		return nil, []Problem{{
			Severity: SeverityError,
			Pos:      doc.position(el.offset),
			Len:      len("<Type"),
			Msg:      "Type has no Name attribute",
		}}
	}
	pattern, err := typeexpr.Parse(name)
	if err != nil {
		off := doc.attrValueOffset(el, "Name")
		length := len(name)
		var se *typeexpr.SyntaxError
		if errors.As(err, &se) {
			off = doc.advance(off, se.Pos-1)
			length = 1
		}
		return nil, []Problem{{
			Severity: SeverityError,
			Pos:      doc.position(off),
			Len:      length,
			Msg:      "invalid type name: " + syntaxMessage(err),
			Type:     name,
		}}
	}
	rule := &Rule{Pattern: pattern, Source: doc.position(el.offset)}
	warn := func(e *element, msg string) {
		problems = append(problems, Problem{
			Severity: SeverityWarning,
			Pos:      doc.position(e.offset),
			Len:      len(e.name) + 1,
			Msg:      msg,
			Type:     name,
		})
	}
	fail := func(e *element, msg string) {
		problems = append(problems, Problem{
			Severity: SeverityError,
			Pos:      doc.position(doc.textOffset(e)),
			Len:      len(strings.TrimSpace(e.text)),
			Msg:      msg,
			Type:     name,
		})
	}
	for _, c := range el.children {
		switch c.name {
		case "DisplayString":
			cond, _ := c.attr("Condition")
			rule.DisplayStrings = append(rule.DisplayStrings, DisplayString{
				Condition: strings.TrimSpace(cond),
				Template:  c.text,
				Source:    doc.position(c.offset),
			})
			segs, err := parseTemplate(unquoteTemplate(c.text))
			if err != nil {
				fail(c, err.Error())
				continue
			}
			for _, seg := range segs {
				if seg.expr && unknownFormat(seg.text) != "" {
					warn(c, "unknown format specifier "+unknownFormat(seg.text))
				}
			}
		case "Expand":
			for _, x := range c.children {
				item, ok := compileItem(doc, x, warn)
				if ok {
					rule.Items = append(rule.Items, item)
				}
			}
		}
	}
	return rule, problems
}

func compileItem(doc *document, x *element, warn func(*element, string)) (Item, bool) {
	cond, _ := x.attr("Condition")
	item := Item{Condition: strings.TrimSpace(cond), Source: doc.position(x.offset)}
	switch x.name {
	case "Item":
		item.Kind = NamedItem
		item.Expression = strings.TrimSpace(x.text)
		name, ok := x.attr("Name")
		if !ok {
			warn(x, "Item has no Name, it is shown as "+DefaultItemName)
			name = DefaultItemName
		}
		item.Name = name
		if f := unknownFormat(item.Expression); f != "" {
			warn(x, "unknown format specifier "+f)
		}
		return item, true
	case "ArrayItems":
		item.Kind = ArrayLoop
		if size := x.child("Size"); size != nil {
			item.Size = strings.TrimSpace(size.text)
		}
		if vp := x.child("ValuePointer"); vp != nil {
			item.ValuePointer = strings.TrimSpace(vp.text)
		}
		if item.Size == "" || item.ValuePointer == "" {
			warn(x, "ArrayItems needs both Size and ValuePointer, it is skipped")
		}
		return item, true
	}
	if unsupportedExpand[x.name] {
		warn(x, x.name+" is not supported, it is ignored")
	} else {
		warn(x, "unknown element "+x.name+" in Expand")
	}
	return Item{}, false
}

func syntaxMessage(err error) string {
	var se *typeexpr.SyntaxError
	if errors.As(err, &se) {
		return se.Msg
	}
	return err.Error()
}
