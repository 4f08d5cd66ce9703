// Copyright © 2024 The ELPS authors

package natvis

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/typeexpr"
	"go.uber.org/zap"
)

// DisplayStringLabel labels the pseudo-child holding the display string.
const DisplayStringLabel = "[Display String]"

// Binding applies a Rule to one value. A Binding is not safe for
// concurrent use.
type Binding struct {
	host    host.Host
	value   host.Value
	rule    *Rule
	rw      *Rewriter
	str     func(host.Value) string
	logger  *zap.Logger
	display *string
	iter    *ChildIter
}

// BindOption configures a Binding.
type BindOption func(*Binding)

// WithValueFormatter sets the function that renders evaluated values
// substituted into display strings. The default is host.Value.String.
func WithValueFormatter(fn func(host.Value) string) BindOption {
	return func(b *Binding) {
		b.str = fn
	}
}

// WithBindingLogger sets the logger for evaluation problems that do not
// surface as errors, such as skipped array loops.
func WithBindingLogger(logger *zap.Logger) BindOption {
	return func(b *Binding) {
		b.logger = logger
	}
}

// Bind binds rule to v, whose concrete type is runtime. v must have an
// address.
func Bind(h host.Host, v host.Value, runtime *typeexpr.TypeName, rule *Rule, opts ...BindOption) (*Binding, error) {
	addr, ok := v.Address()
	if !ok {
		return nil, errors.New("value has no address")
	}
	b := &Binding{
		host:   h,
		value:  v,
		rule:   rule,
		rw:     NewRewriter(runtime, addr, host.FieldNames(v.Type())),
		str:    host.Value.String,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Rule returns the bound rule.
func (b *Binding) Rule() *Rule {
	return b.rule
}

// Value returns the bound value.
func (b *Binding) Value() host.Value {
	return b.value
}

// Runtime returns the concrete type of the bound value.
func (b *Binding) Runtime() *typeexpr.TypeName {
	return b.rw.Runtime
}

// result is an evaluated expression. Text holds the formatted rendering
// when a format specifier applied.
type result struct {
	Value     host.Value
	Text      string
	Formatted bool
}

// Evaluate evaluates a visualizer expression, with an optional trailing
// format specifier, against the bound value.
func (b *Binding) Evaluate(expr string) (host.Value, string, error) {
	r, err := b.evaluate(expr)
	if err != nil {
		return nil, "", err
	}
	if r.Formatted {
		return r.Value, r.Text, nil
	}
	return r.Value, b.str(r.Value), nil
}

func (b *Binding) evaluate(expr string) (result, error) {
	body, code := splitFormat(expr)
	rewritten, err := b.rw.Rewrite(body)
	if err != nil {
		return result{}, err
	}
	v, err := b.host.Evaluate(rewritten)
	if err != nil {
		return result{}, errors.Wrapf(err, "evaluate %q", strings.TrimSpace(expr))
	}
	if code == "" {
		return result{Value: v}, nil
	}
	text, ok, err := applyFormat(b.host, v, rewritten, code)
	if err != nil {
		return result{}, err
	}
	return result{Value: v, Text: text, Formatted: ok}, nil
}

func (b *Binding) condition(cond string) (bool, error) {
	if cond == "" {
		return true, nil
	}
	r, err := b.evaluate(cond)
	if err != nil {
		return false, errors.Wrap(err, "condition")
	}
	return r.Value.Bool()
}

// Expand expands a display template against the bound value.
func (b *Binding) Expand(tmpl string) (string, error) {
	segs, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, seg := range segs {
		if !seg.expr {
			sb.WriteString(seg.text)
			continue
		}
		r, err := b.evaluate(seg.text)
		if err != nil {
			return "", err
		}
		if r.Formatted {
			sb.WriteString(r.Text)
		} else {
			sb.WriteString(b.str(r.Value))
		}
	}
	return sb.String(), nil
}

// DisplayString renders the summary of the bound value: the first
// DisplayString whose condition holds, expanded. When none holds the
// summary is empty. The result is computed once.
func (b *Binding) DisplayString() (string, error) {
	if b.display != nil {
		return *b.display, nil
	}
	s := ""
	for _, ds := range b.rule.DisplayStrings {
		ok, err := b.condition(ds.Condition)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		s, err = b.Expand(unquoteTemplate(ds.Template))
		if err != nil {
			return "", err
		}
		break
	}
	b.display = &s
	return s, nil
}

// Child is a labeled child of a visualized value. Value is nil for the
// display string pseudo-child; Text is set when the child has a fixed
// rendering.
type Child struct {
	Name  string
	Value host.Value
	Text  string
}

// Children returns the Binding's child iterator. Every call returns the
// same iterator; the sequence cannot be restarted.
func (b *Binding) Children() *ChildIter {
	if b.iter == nil {
		b.iter = &ChildIter{b: b, item: -1}
	}
	return b.iter
}

// ChildIter lazily produces the children of a Binding: the display string
// first, then the rule's items in document order.
type ChildIter struct {
	b     *Binding
	item  int
	index int64
	count int64
	cur   Child
	err   error
	done  bool
}

// Next advances to the next child. It returns false at the end of the
// sequence or after an error.
func (it *ChildIter) Next() bool {
	if it.done {
		return false
	}
	if it.item < 0 {
		it.item = 0
		s, err := it.b.DisplayString()
		if err != nil {
			return it.fail(err)
		}
		it.cur = Child{Name: DisplayStringLabel, Text: s}
		return true
	}
	items := it.b.rule.Items
	for it.item < len(items) {
		item := &items[it.item]
		switch item.Kind {
		case NamedItem:
			it.item++
			ok, err := it.b.condition(item.Condition)
			if err != nil {
				return it.fail(errors.Wrapf(err, "item %s", item.Name))
			}
			if !ok {
				continue
			}
			r, err := it.b.evaluate(item.Expression)
			if err != nil {
				return it.fail(errors.Wrapf(err, "item %s", item.Name))
			}
			it.cur = Child{Name: item.Name, Value: r.Value}
			if r.Formatted {
				it.cur.Text = r.Text
			}
			return true
		case ArrayLoop:
			if it.index == 0 && it.count == 0 && !it.startLoop(item) {
				it.item++
				continue
			}
			if it.index >= it.count {
				it.item++
				it.index, it.count = 0, 0
				continue
			}
			i := it.index
			it.index++
			expr := "(" + item.ValuePointer + ") + " + strconv.FormatInt(i, 10)
			r, err := it.b.evaluate(expr)
			if err != nil {
				return it.fail(errors.Wrapf(err, "element %d", i))
			}
			elem, err := r.Value.Deref()
			if err != nil {
				return it.fail(errors.Wrapf(err, "element %d", i))
			}
			it.cur = Child{Name: "[" + strconv.FormatInt(i, 10) + "]", Value: elem}
			return true
		default:
			it.item++
		}
	}
	it.done = true
	return false
}

// startLoop evaluates the bounds of an array loop. It returns false when
// the loop produces nothing.
func (it *ChildIter) startLoop(item *Item) bool {
	if item.Size == "" || item.ValuePointer == "" {
		return false
	}
	ok, err := it.b.condition(item.Condition)
	if err != nil || !ok {
		if err != nil {
			it.b.logger.Warn("skipping array items", zap.Error(err))
		}
		return false
	}
	r, err := it.b.evaluate(item.Size)
	if err != nil {
		it.b.logger.Warn("skipping array items", zap.String("size", item.Size), zap.Error(err))
		return false
	}
	n, err := r.Value.Int()
	if err != nil {
		it.b.logger.Warn("skipping array items", zap.String("size", item.Size), zap.Error(err))
		return false
	}
	if n <= 0 {
		return false
	}
	it.index, it.count = 0, n
	return true
}

func (it *ChildIter) fail(err error) bool {
	it.err = err
	it.done = true
	return false
}

// Child returns the current child.
func (it *ChildIter) Child() Child {
	return it.cur
}

// Err returns the error that stopped the iteration, if any.
func (it *ChildIter) Err() error {
	return it.err
}
