// Copyright © 2024 The ELPS authors

package snapshot

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
)

type exprNode interface {
	eval(s *Snapshot) (*Value, error)
}

type literalNode struct {
	kind string
	text string
	pos  int
}

type identNode struct {
	name string
	pos  int
}

type qualifiedNode struct {
	ref string
	pos int
}

type unaryNode struct {
	op  string
	x   exprNode
	pos int
}

type castNode struct {
	typeName string
	x        exprNode
	pos      int
}

type binaryNode struct {
	op   string
	x, y exprNode
	pos  int
}

type memberNode struct {
	x     exprNode
	name  string
	arrow bool
	pos   int
}

type indexNode struct {
	x, index exprNode
	pos      int
}

func (n *literalNode) eval(s *Snapshot) (*Value, error) {
	switch n.kind {
	case "INT", "HEX":
		text := strings.TrimRight(n.text, "uUlL")
		unsigned := len(text) != len(n.text) && strings.ContainsAny(n.text[len(text):], "uU")
		u, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %s", n.text)
		}
		switch {
		case unsigned && u <= math.MaxUint32:
			return s.uintValue(s.builtin("unsigned int"), u), nil
		case unsigned:
			return s.uintValue(s.builtin("unsigned long"), u), nil
		case u <= math.MaxInt32:
			return s.intValue(s.builtin("int"), int64(u)), nil
		case u <= math.MaxInt64:
			return s.intValue(s.builtin("long"), int64(u)), nil
		default:
			return s.uintValue(s.builtin("unsigned long"), u), nil
		}
	case "FLOAT":
		text := strings.TrimRight(n.text, "fF")
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %s", n.text)
		}
		if len(text) != len(n.text) {
			return s.floatValue(s.builtin("float"), float64(float32(f))), nil
		}
		return s.floatValue(s.builtin("double"), f), nil
	case "CHAR":
		r, _, tail, err := strconv.UnquoteChar(n.text[1:len(n.text)-1], '\'')
		if err != nil || tail != "" {
			return nil, errors.Newf("invalid character constant %s", n.text)
		}
		return s.intValue(s.builtin("char"), int64(r)), nil
	case "STRING":
		str, err := strconv.Unquote(n.text)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid string constant %s", n.text)
		}
		return s.stringValue(str), nil
	case "KEYWORD":
		switch n.text {
		case "true":
			return s.boolValue(true), nil
		case "false":
			return s.boolValue(false), nil
		default:
			return s.uintValue(s.builtin("void*"), 0), nil
		}
	}
	return nil, errors.Newf("unexpected literal %s", n.text)
}

func (n *identNode) eval(s *Snapshot) (*Value, error) {
	if v, ok := s.varIndex[n.name]; ok {
		return s.lvalue(v.typ, v.addr), nil
	}
	if v, ok := s.enumerator(n.name); ok {
		return v, nil
	}
	return nil, errors.Wrapf(host.ErrNotFound, "no symbol %q in current context", n.name)
}

func (n *qualifiedNode) eval(s *Snapshot) (*Value, error) {
	return s.constant(n.ref)
}

func (n *unaryNode) eval(s *Snapshot) (*Value, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "*":
		return x.deref()
	case "&":
		if !x.lval {
			return nil, errors.New("attempt to take address of value not located in memory")
		}
		s.mu.Lock()
		pt, err := s.lookupType(x.typ.name + "*")
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return s.uintValue(pt, x.addr), nil
	case "!":
		b, err := x.Bool()
		if err != nil {
			return nil, err
		}
		return s.boolValue(!b), nil
	case "-":
		if x.typ.stripped().kind == host.KindFloat {
			f, err := x.Float()
			if err != nil {
				return nil, err
			}
			return s.floatValue(x.typ, -f), nil
		}
		i, err := x.Int()
		if err != nil {
			return nil, err
		}
		return s.intValue(promote(s, x.typ), -i), nil
	}
	return nil, errors.Newf("unknown operator %s", n.op)
}

// promote returns the type arithmetic on t produces.
func promote(s *Snapshot, t *Type) *Type {
	t = t.stripped()
	switch t.kind {
	case host.KindFloat:
		return t
	case host.KindUint:
		if t.size >= 8 {
			return t
		}
		if t.size == 4 {
			return s.builtin("unsigned int")
		}
	case host.KindInt:
		if t.size >= 8 {
			return t
		}
	}
	return s.builtin("int")
}

func (n *castNode) eval(s *Snapshot) (*Value, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	t, err := s.lookupType(n.typeName)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	st := t.stripped()
	switch st.kind {
	case host.KindPointer, host.KindRef:
		var addr uint64
		switch x.typ.stripped().kind {
		case host.KindPointer, host.KindRef, host.KindArray:
			addr, err = x.pointer()
		default:
			var i int64
			i, err = x.Int()
			addr = uint64(i)
		}
		if err != nil {
			return nil, err
		}
		if st.kind == host.KindRef {
			return s.lvalue(st.target, addr), nil
		}
		return s.uintValue(t, addr), nil
	case host.KindFloat:
		f, err := x.Float()
		if err != nil {
			return nil, err
		}
		return s.floatValue(t, f), nil
	case host.KindBool:
		b, err := x.Bool()
		if err != nil {
			return nil, err
		}
		v := s.boolValue(b)
		v.typ = t
		return v, nil
	case host.KindInt, host.KindUint, host.KindChar, host.KindEnum:
		i, err := x.Int()
		if err != nil {
			return nil, err
		}
		return s.intValue(t, truncate(i, st)), nil
	}
	return nil, errors.Newf("invalid cast to %s", t.name)
}

// truncate reduces n to the width of t so rvalues behave like the values
// they would be if stored.
func truncate(n int64, t *Type) int64 {
	if t.size >= 8 {
		return n
	}
	mask := uint64(1)<<(8*uint(t.size)) - 1
	bits := uint64(n) & mask
	if t.signed() {
		return signExtend(bits, t.size)
	}
	return int64(bits)
}

func isPointerLike(t *Type) bool {
	k := t.stripped().kind
	return k == host.KindPointer || k == host.KindArray
}

func (n *binaryNode) eval(s *Snapshot) (*Value, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "&&", "||":
		bx, err := x.Bool()
		if err != nil {
			return nil, err
		}
		if (n.op == "&&" && !bx) || (n.op == "||" && bx) {
			return s.boolValue(bx), nil
		}
		y, err := n.y.eval(s)
		if err != nil {
			return nil, err
		}
		by, err := y.Bool()
		if err != nil {
			return nil, err
		}
		return s.boolValue(by), nil
	}
	y, err := n.y.eval(s)
	if err != nil {
		return nil, err
	}
	if isPointerLike(x.typ) || isPointerLike(y.typ) {
		return pointerArith(s, n.op, x, y)
	}
	xf, yf := x.typ.stripped().kind == host.KindFloat, y.typ.stripped().kind == host.KindFloat
	if xf || yf {
		a, err := x.Float()
		if err != nil {
			return nil, err
		}
		b, err := y.Float()
		if err != nil {
			return nil, err
		}
		return floatArith(s, n.op, a, b)
	}
	a, err := x.Int()
	if err != nil {
		return nil, err
	}
	b, err := y.Int()
	if err != nil {
		return nil, err
	}
	rt := promote(s, x.typ)
	if yt := promote(s, y.typ); yt.size > rt.size || (yt.size == rt.size && yt.kind == host.KindUint) {
		rt = yt
	}
	return intArith(s, n.op, rt, a, b)
}

func compare(s *Snapshot, op string, c int) (*Value, error) {
	switch op {
	case "==":
		return s.boolValue(c == 0), nil
	case "!=":
		return s.boolValue(c != 0), nil
	case "<":
		return s.boolValue(c < 0), nil
	case "<=":
		return s.boolValue(c <= 0), nil
	case ">":
		return s.boolValue(c > 0), nil
	case ">=":
		return s.boolValue(c >= 0), nil
	}
	return nil, errors.Newf("invalid operator %s", op)
}

func floatArith(s *Snapshot, op string, a, b float64) (*Value, error) {
	double := s.builtin("double")
	switch op {
	case "+":
		return s.floatValue(double, a+b), nil
	case "-":
		return s.floatValue(double, a-b), nil
	case "*":
		return s.floatValue(double, a*b), nil
	case "/":
		return s.floatValue(double, a/b), nil
	case "%":
		return nil, errors.New("integer operation on floating point operands")
	}
	c := 0
	switch {
	case a < b:
		c = -1
	case a > b:
		c = 1
	}
	return compare(s, op, c)
}

func intArith(s *Snapshot, op string, t *Type, a, b int64) (*Value, error) {
	unsigned := t.kind == host.KindUint
	switch op {
	case "+":
		return s.intValue(t, truncate(a+b, t)), nil
	case "-":
		return s.intValue(t, truncate(a-b, t)), nil
	case "*":
		return s.intValue(t, truncate(a*b, t)), nil
	case "/", "%":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		var r int64
		switch {
		case unsigned && op == "/":
			r = int64(uint64(a) / uint64(b))
		case unsigned:
			r = int64(uint64(a) % uint64(b))
		case op == "/":
			r = a / b
		default:
			r = a % b
		}
		return s.intValue(t, truncate(r, t)), nil
	}
	c := 0
	switch {
	case unsigned && uint64(a) < uint64(b), !unsigned && a < b:
		c = -1
	case unsigned && uint64(a) > uint64(b), !unsigned && a > b:
		c = 1
	}
	return compare(s, op, c)
}

func pointerArith(s *Snapshot, op string, x, y *Value) (*Value, error) {
	xp, yp := isPointerLike(x.typ), isPointerLike(y.typ)
	switch {
	case xp && yp:
		a, err := x.pointer()
		if err != nil {
			return nil, err
		}
		b, err := y.pointer()
		if err != nil {
			return nil, err
		}
		if op == "-" {
			size := elemSize(x.typ)
			return s.intValue(s.builtin("long"), (int64(a)-int64(b))/int64(size)), nil
		}
		c := 0
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
		return compare(s, op, c)
	case xp:
		return offsetPointer(s, op, x, y)
	default:
		if op == "+" {
			return offsetPointer(s, op, y, x)
		}
		// Comparing a pointer with an integer such as 0.
		a, err := x.Int()
		if err != nil {
			return nil, err
		}
		b, err := y.pointer()
		if err != nil {
			return nil, err
		}
		c := 0
		switch {
		case uint64(a) < b:
			c = -1
		case uint64(a) > b:
			c = 1
		}
		return compare(s, op, c)
	}
}

func elemSize(t *Type) int {
	elem := t.stripped().target.stripped()
	if elem.kind == host.KindVoid || elem.size == 0 {
		return 1
	}
	return elem.size
}

// offsetPointer evaluates p+n, p-n and comparisons between a pointer and an
// integer. Arrays decay to a pointer to their first element.
func offsetPointer(s *Snapshot, op string, p, n *Value) (*Value, error) {
	addr, err := p.pointer()
	if err != nil {
		return nil, err
	}
	i, err := n.Int()
	if err != nil {
		return nil, err
	}
	pt := p.typ.stripped()
	if pt.kind == host.KindArray {
		s.mu.Lock()
		pt, err = s.lookupType(pt.target.name + "*")
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	size := int64(elemSize(p.typ))
	switch op {
	case "+":
		return s.uintValue(pt, addr+uint64(i*size)), nil
	case "-":
		return s.uintValue(pt, addr-uint64(i*size)), nil
	}
	c := 0
	switch {
	case addr < uint64(i):
		c = -1
	case addr > uint64(i):
		c = 1
	}
	return compare(s, op, c)
}

func (n *memberNode) eval(s *Snapshot) (*Value, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	if n.arrow {
		x, err = x.deref()
		if err != nil {
			return nil, err
		}
	}
	return x.field(n.name)
}

func (n *indexNode) eval(s *Snapshot) (*Value, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	i, err := n.index.eval(s)
	if err != nil {
		return nil, err
	}
	idx, err := i.Int()
	if err != nil {
		return nil, err
	}
	return x.index(idx)
}
