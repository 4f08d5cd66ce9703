// Copyright © 2024 The ELPS authors

package printer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/typeexpr"
	"go.uber.org/zap"
)

// BuildFunc constructs a printer for a value selected by a RegexpLookup.
type BuildFunc func(v host.Value) (Printer, error)

type regexpEntry struct {
	name  string
	re    *regexp.Regexp
	build BuildFunc
}

// RegexpLookup selects printers by matching the name of a value's type,
// with typedefs removed, against regular expressions. Entries are tried in
// the order they were added.
type RegexpLookup struct {
	name    string
	entries []regexpEntry
	logger  *zap.Logger
}

var _ Lookuper = (*RegexpLookup)(nil)

// NewRegexpLookup returns an empty lookup.
func NewRegexpLookup(name string, opts ...Option) *RegexpLookup {
	c := newConfig(opts)
	return &RegexpLookup{name: name, logger: c.logger}
}

// Add registers build for the types whose name matches pattern.
func (l *RegexpLookup) Add(name, pattern string, build BuildFunc) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.Wrapf(err, "printer %s", name)
	}
	l.entries = append(l.entries, regexpEntry{name: name, re: re, build: build})
	return nil
}

// Lookup implements Lookuper.
func (l *RegexpLookup) Lookup(ctx context.Context, v host.Value) (p Printer) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("printer panicked", zap.String("collection", l.name), zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
			p = nil
		}
	}()
	t := host.StripTypedefs(v.Type())
	if t != nil && t.Kind() == host.KindRef {
		next, err := v.Deref()
		if err != nil {
			return nil
		}
		v, t = next, host.StripTypedefs(next.Type())
	}
	if t == nil || t.Name() == "" {
		return nil
	}
	for _, e := range l.entries {
		if !e.re.MatchString(t.Name()) {
			continue
		}
		p, err := e.build(v)
		if err != nil {
			l.logger.Warn("printer failed",
				zap.String("collection", l.name),
				zap.String("printer", e.name),
				zap.String("type", t.Name()),
				zap.Error(err))
			return nil
		}
		return p
	}
	return nil
}

const (
	glmVecPattern = `^glm::vec<\d+, \w+, \(glm::qualifier\)0>$`
	glmMatPattern = `^glm::mat<\d+, \d+, \w+, \(glm::qualifier\)0>$`
)

// GLM returns the printers for glm vectors and matrices.
func GLM(h host.Host, opts ...Option) *RegexpLookup {
	l := NewRegexpLookup("glm", opts...)
	_ = l.Add("vec", glmVecPattern, func(v host.Value) (Printer, error) {
		return NewGLMVec(h, v)
	})
	_ = l.Add("mat", glmMatPattern, func(v host.Value) (Printer, error) {
		return NewGLMMat(h, v)
	})
	return l
}

// GLMVec prints a glm vector as, for example, "dvec3(1, 2, 3)".
type GLMVec struct {
	Letter     string
	Components []host.Value
}

var _ Printer = (*GLMVec)(nil)

// NewGLMVec reads the components of the glm vector v.
func NewGLMVec(h host.Host, v host.Value) (*GLMVec, error) {
	letter, items, err := vecInfo(h, v)
	if err != nil {
		return nil, err
	}
	return &GLMVec{Letter: letter, Components: items}, nil
}

func (p *GLMVec) ToString() (string, error) {
	return fmt.Sprintf("%svec%d(%s)", p.Letter, len(p.Components), joinValues(p.Components)), nil
}

func (p *GLMVec) DisplayHint() string     { return HintNone }
func (p *GLMVec) Children() ChildIterator { return noChildren{} }

// GLMMat prints a glm matrix column by column, as in
// "dmat2x3((1, 2, 3), (4, 5, 6))".
type GLMMat struct {
	Letter  string
	Columns [][]host.Value
}

var _ Printer = (*GLMMat)(nil)

// NewGLMMat reads the columns of the glm matrix v from its value array.
func NewGLMMat(h host.Host, v host.Value) (*GLMMat, error) {
	cols, err := v.Field("value")
	if err != nil {
		return nil, errors.Wrap(err, "matrix columns")
	}
	ct := host.StripTypedefs(cols.Type())
	if ct == nil || ct.Kind() != host.KindArray {
		return nil, errors.Newf("matrix columns have type %s, want an array", host.TypeString(cols.Type()))
	}
	m := &GLMMat{}
	for i := 0; i < ct.Len(); i++ {
		col, err := cols.Index(i)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", i)
		}
		letter, items, err := vecInfo(h, col)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", i)
		}
		m.Letter = letter
		m.Columns = append(m.Columns, items)
	}
	return m, nil
}

func (p *GLMMat) ToString() (string, error) {
	rows := 0
	if len(p.Columns) > 0 {
		rows = len(p.Columns[len(p.Columns)-1])
	}
	cols := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		cols[i] = "(" + joinValues(c) + ")"
	}
	return fmt.Sprintf("%smat%dx%d(%s)", p.Letter, len(p.Columns), rows, strings.Join(cols, ", ")), nil
}

func (p *GLMMat) DisplayHint() string     { return HintNone }
func (p *GLMMat) Children() ChildIterator { return noChildren{} }

func joinValues(vs []host.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// componentLetter is the prefix glm uses for vectors of kind k.
func componentLetter(k host.Kind) string {
	switch k {
	case host.KindFloat:
		return "d"
	case host.KindInt, host.KindUint, host.KindChar:
		return "i"
	case host.KindBool:
		return "b"
	}
	return "t"
}

// vecInfo returns the letter and the components of a glm vector. The
// component type is the second template argument; the components are every
// member of that type, found through nested structs and unions, in address
// order.
func vecInfo(h host.Host, v host.Value) (string, []host.Value, error) {
	vt := host.StripTypedefs(v.Type())
	name, err := typeexpr.Parse(vt.Name())
	if err != nil {
		return "", nil, err
	}
	arg, ok := name.Arg(2)
	if !ok {
		return "", nil, errors.Newf("%s has no component type", name)
	}
	comp, err := h.LookupType(arg.String())
	if err != nil {
		return "", nil, errors.Wrap(err, "component type")
	}
	comp = host.StripTypedefs(comp)
	if comp.Size() <= 0 {
		return "", nil, errors.Newf("component type %s has no size", arg)
	}
	length := vt.Size() / comp.Size()
	addr, ok := v.Address()
	if !ok {
		return "", nil, errors.New("vector has no address")
	}

	offsets := make(map[int]bool)
	findComponents(vt, comp, 0, offsets)
	sorted := make([]int, 0, len(offsets))
	for off := range offsets {
		sorted = append(sorted, off)
	}
	sort.Ints(sorted)
	if len(sorted) != length {
		return "", nil, errors.Newf("%s: found %d components, want %d", name, len(sorted), length)
	}
	items := make([]host.Value, len(sorted))
	for i, off := range sorted {
		items[i], err = h.ValueAt(comp, addr+uint64(off))
		if err != nil {
			return "", nil, errors.Wrapf(err, "component %d", i)
		}
	}
	return componentLetter(comp.Kind()), items, nil
}

func findComponents(t, comp host.Type, base int, offsets map[int]bool) {
	for _, f := range host.StripTypedefs(t).Fields() {
		ft := host.StripTypedefs(f.Type)
		switch {
		case sameType(ft, comp):
			offsets[base+f.Offset] = true
		case host.IsRecord(ft):
			findComponents(ft, comp, base+f.Offset, offsets)
		}
	}
}

func sameType(a, b host.Type) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Kind() == b.Kind() && a.Name() == b.Name() && a.Size() == b.Size()
}
