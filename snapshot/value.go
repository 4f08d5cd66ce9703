// Copyright © 2024 The ELPS authors

package snapshot

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
)

// Value implements host.Value. An lvalue lives at an address in snapshot
// memory; an rvalue is the result of a computation and carries its bits
// directly.
type Value struct {
	snap *Snapshot
	typ  *Type
	addr uint64
	lval bool
	bits uint64
	f    float64
	str  *string
}

var _ host.Value = (*Value)(nil)

func (s *Snapshot) lvalue(t *Type, addr uint64) *Value {
	return &Value{snap: s, typ: t, addr: addr, lval: true}
}

func (s *Snapshot) intValue(t *Type, n int64) *Value {
	return &Value{snap: s, typ: t, bits: uint64(n)}
}

func (s *Snapshot) uintValue(t *Type, n uint64) *Value {
	return &Value{snap: s, typ: t, bits: n}
}

func (s *Snapshot) floatValue(t *Type, f float64) *Value {
	return &Value{snap: s, typ: t, f: f}
}

func (s *Snapshot) boolValue(b bool) *Value {
	var n uint64
	if b {
		n = 1
	}
	return &Value{snap: s, typ: s.builtin("bool"), bits: n}
}

func (s *Snapshot) stringValue(str string) *Value {
	s.mu.Lock()
	t, err := s.lookupType("char[" + strconv.Itoa(len(str)+1) + "]")
	s.mu.Unlock()
	if err != nil {
		panic(err)
	}
	return &Value{snap: s, typ: t, str: &str}
}

func (v *Value) Type() host.Type { return v.typ }

func (v *Value) Address() (uint64, bool) {
	return v.addr, v.lval
}

// raw returns the bits of a scalar or reference value, zero-extended.
func (v *Value) raw() (uint64, error) {
	t := v.typ.stripped()
	if !t.kind.IsScalar() && t.kind != host.KindRef {
		return 0, errors.Newf("value of type %s is not a scalar", v.typ.name)
	}
	if !v.lval {
		return v.bits, nil
	}
	b, err := v.snap.read(v.addr, t.size)
	if err != nil {
		return 0, err
	}
	switch t.size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(v.snap.order.Uint16(b)), nil
	case 4:
		return uint64(v.snap.order.Uint32(b)), nil
	case 8:
		return v.snap.order.Uint64(b), nil
	}
	return 0, errors.Newf("unsupported scalar size %d", t.size)
}

func signExtend(bits uint64, size int) int64 {
	if size >= 8 {
		return int64(bits)
	}
	shift := uint(64 - 8*size)
	return int64(bits<<shift) >> shift
}

func (v *Value) Int() (int64, error) {
	t := v.typ.stripped()
	if t.kind == host.KindFloat {
		f, err := v.Float()
		return int64(f), err
	}
	bits, err := v.raw()
	if err != nil {
		return 0, err
	}
	if t.signed() {
		return signExtend(bits, t.size), nil
	}
	return int64(bits), nil
}

func (v *Value) Float() (float64, error) {
	t := v.typ.stripped()
	if t.kind != host.KindFloat {
		n, err := v.Int()
		if err != nil {
			return 0, err
		}
		if t.kind == host.KindUint || t.kind == host.KindPointer {
			return float64(uint64(n)), nil
		}
		return float64(n), nil
	}
	if !v.lval {
		return v.f, nil
	}
	bits, err := v.raw()
	if err != nil {
		return 0, err
	}
	if t.size == 4 {
		return float64(math.Float32frombits(uint32(bits))), nil
	}
	return math.Float64frombits(bits), nil
}

func (v *Value) Bool() (bool, error) {
	t := v.typ.stripped()
	if t.kind == host.KindFloat {
		f, err := v.Float()
		return f != 0, err
	}
	if t.kind == host.KindArray {
		return true, nil
	}
	bits, err := v.raw()
	return bits != 0, err
}

// pointer returns the address held by a pointer or reference, or the
// address of an array's first element.
func (v *Value) pointer() (uint64, error) {
	t := v.typ.stripped()
	switch t.kind {
	case host.KindPointer, host.KindRef:
		return v.raw()
	case host.KindArray:
		if !v.lval {
			return 0, errors.New("array has no address")
		}
		return v.addr, nil
	}
	return 0, errors.Newf("value of type %s is not a pointer", v.typ.name)
}

func (v *Value) Deref() (host.Value, error) {
	d, err := v.deref()
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (v *Value) deref() (*Value, error) {
	t := v.typ.stripped()
	if t.kind != host.KindPointer && t.kind != host.KindRef {
		return nil, errors.Newf("attempt to take contents of a non-pointer value of type %s", v.typ.name)
	}
	if t.target.stripped().kind == host.KindVoid {
		return nil, errors.New("attempt to take contents of a void pointer")
	}
	addr, err := v.raw()
	if err != nil {
		return nil, err
	}
	return v.snap.lvalue(t.target, addr), nil
}

func (v *Value) Field(name string) (host.Value, error) {
	f, err := v.field(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (v *Value) field(name string) (*Value, error) {
	t := v.typ.stripped()
	if !host.IsRecord(t) {
		return nil, errors.Newf("attempt to extract a component of a value that is not a structure (%s)", v.typ.name)
	}
	for _, f := range t.fields {
		if f.Name != name {
			continue
		}
		if !v.lval {
			return nil, errors.Newf("field %s of a computed value", name)
		}
		return v.snap.lvalue(f.Type.(*Type), v.addr+uint64(f.Offset)), nil
	}
	return nil, errors.Wrapf(host.ErrNotFound, "there is no member named %s", name)
}

func (v *Value) Index(i int) (host.Value, error) {
	e, err := v.index(int64(i))
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (v *Value) index(i int64) (*Value, error) {
	t := v.typ.stripped()
	if t.kind != host.KindArray && t.kind != host.KindPointer {
		return nil, errors.Newf("cannot subscript something of type %s", v.typ.name)
	}
	base, err := v.pointer()
	if err != nil {
		return nil, err
	}
	elem := t.target
	if elem.stripped().kind == host.KindVoid {
		return nil, errors.New("cannot subscript a void pointer")
	}
	return v.snap.lvalue(elem, base+uint64(i*int64(elem.size))), nil
}

func (v *Value) CString(max int) (string, error) {
	if v.str != nil {
		s := *v.str
		if max >= 0 && len(s) > max {
			s = s[:max]
		}
		return s, nil
	}
	t := v.typ.stripped()
	var elem *Type
	limit := max
	switch t.kind {
	case host.KindPointer, host.KindArray:
		elem = t.target.stripped()
		if t.kind == host.KindArray && (limit < 0 || t.length < limit) {
			limit = t.length
		}
	default:
		return "", errors.Newf("value of type %s is not a string", v.typ.name)
	}
	if elem.kind != host.KindChar && !(elem.kind == host.KindInt || elem.kind == host.KindUint) {
		return "", errors.Newf("value of type %s is not a string", v.typ.name)
	}
	addr, err := v.pointer()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 0; limit < 0 || i < limit; i++ {
		b, err := v.snap.read(addr+uint64(i*elem.size), elem.size)
		if err != nil {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		var c uint64
		switch elem.size {
		case 1:
			c = uint64(b[0])
		case 2:
			c = uint64(v.snap.order.Uint16(b))
		case 4:
			c = uint64(v.snap.order.Uint32(b))
		default:
			return "", errors.Newf("unsupported character size %d", elem.size)
		}
		if c == 0 {
			break
		}
		if elem.size == 1 {
			sb.WriteByte(byte(c))
		} else {
			sb.WriteRune(rune(c))
		}
	}
	return sb.String(), nil
}

// maxStringLength bounds the characters String reads through a char
// pointer.
const maxStringLength = 200

// String renders the value the way the debugger prints values that have no
// visualizer.
func (v *Value) String() string {
	s, err := v.format(0)
	if err != nil {
		return "<error: " + err.Error() + ">"
	}
	return s
}

func (v *Value) format(depth int) (string, error) {
	if v.str != nil {
		return strconv.Quote(*v.str), nil
	}
	t := v.typ.stripped()
	switch t.kind {
	case host.KindBool:
		b, err := v.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case host.KindInt, host.KindUint:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		if t.kind == host.KindUint {
			return strconv.FormatUint(uint64(n), 10), nil
		}
		return strconv.FormatInt(n, 10), nil
	case host.KindChar:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		return formatChar(n, t.size), nil
	case host.KindFloat:
		f, err := v.Float()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'g', -1, 8*t.size), nil
	case host.KindEnum:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		if name, ok := t.enumNames[n]; ok {
			return name, nil
		}
		return strconv.FormatInt(n, 10), nil
	case host.KindPointer, host.KindRef:
		addr, err := v.raw()
		if err != nil {
			return "", err
		}
		s := "0x" + strconv.FormatUint(addr, 16)
		if t.kind == host.KindRef {
			s = "@" + s
		}
		if t.kind == host.KindPointer && t.target.stripped().kind == host.KindChar && addr != 0 {
			if str, err := v.CString(maxStringLength); err == nil {
				s += " " + strconv.Quote(str)
			}
		}
		return s, nil
	case host.KindArray:
		if t.target.stripped().kind == host.KindChar {
			str, err := v.CString(-1)
			if err != nil {
				return "", err
			}
			return strconv.Quote(str), nil
		}
		return v.formatElements(t, depth)
	case host.KindStruct, host.KindUnion:
		return v.formatFields(t, depth)
	case host.KindVoid:
		return "void", nil
	}
	return "", errors.Newf("cannot print value of type %s", v.typ.name)
}

func formatChar(n int64, size int) string {
	prefix := ""
	switch size {
	case 2:
		prefix = "u"
	case 4:
		prefix = "U"
	}
	r := rune(n)
	if size == 1 {
		r = rune(byte(n))
	}
	if !utf8.ValidRune(r) {
		return strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10) + " " + prefix + strconv.QuoteRune(r)
}

// maxDefaultDepth bounds nesting in the default rendering of aggregates.
const maxDefaultDepth = 8

func (v *Value) formatElements(t *Type, depth int) (string, error) {
	if depth >= maxDefaultDepth {
		return "{...}", nil
	}
	parts := make([]string, 0, t.length)
	for i := 0; i < t.length; i++ {
		e, err := v.index(int64(i))
		if err != nil {
			return "", err
		}
		s, err := e.format(depth + 1)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

func (v *Value) formatFields(t *Type, depth int) (string, error) {
	if depth >= maxDefaultDepth {
		return "{...}", nil
	}
	parts := make([]string, 0, len(t.fields))
	for _, f := range t.fields {
		fv, err := v.field(f.Name)
		if err != nil {
			return "", err
		}
		s, err := fv.format(depth + 1)
		if err != nil {
			s = "<error: " + err.Error() + ">"
		}
		parts = append(parts, f.Name+" = "+s)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}
