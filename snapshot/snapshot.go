// Copyright © 2024 The ELPS authors

// Package snapshot is a host.Host backed by a static description of program
// memory. A snapshot declares types, memory segments and named variables in
// a YAML or TOML file, and supports a small C expression language so that
// visualizer templates can be evaluated without a live debugger.
package snapshot

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/typeexpr"
)

// Snapshot implements host.Host. It is safe for concurrent use.
type Snapshot struct {
	mu          sync.Mutex
	pointerSize int
	order       binary.ByteOrder
	decls       map[string]*TypeDecl
	types       map[string]*Type
	constants   map[string]int64
	mem         memory
	vars        []*variable
	varIndex    map[string]*variable
}

type variable struct {
	name string
	typ  *Type
	addr uint64
}

// Variable is a named value of the snapshot.
type Variable struct {
	Name  string
	Value host.Value
}

var _ host.Host = (*Snapshot)(nil)

// New validates f and builds a snapshot from it.
func New(f *File) (*Snapshot, error) {
	s := &Snapshot{
		pointerSize: f.PointerSize,
		decls:       make(map[string]*TypeDecl, len(f.Types)),
		types:       make(map[string]*Type),
		constants:   make(map[string]int64, len(f.Constants)),
		varIndex:    make(map[string]*variable, len(f.Variables)),
	}
	switch s.pointerSize {
	case 0:
		s.pointerSize = 8
	case 4, 8:
	default:
		return nil, errors.Newf("unsupported pointer size %d", f.PointerSize)
	}
	switch strings.ToLower(f.ByteOrder) {
	case "", "little", "little-endian", "le":
		s.order = binary.LittleEndian
	case "big", "big-endian", "be":
		s.order = binary.BigEndian
	default:
		return nil, errors.Newf("unknown byte order %q", f.ByteOrder)
	}
	for i := range f.Types {
		decl := &f.Types[i]
		name := normalizeTypeName(decl.Name)
		if name == "" {
			return nil, errors.Newf("type declaration %d has no name", i)
		}
		if _, ok := builtins[name]; ok {
			return nil, errors.Newf("type %s redeclares a built-in type", name)
		}
		if _, dup := s.decls[name]; dup {
			return nil, errors.Newf("type %s declared twice", name)
		}
		s.decls[name] = decl
	}
	for k, v := range f.Constants {
		s.constants[normalizeQualified(k)] = v
	}
	for i, seg := range f.Segments {
		data, err := decodeHex(seg.Hex)
		if err != nil {
			return nil, errors.Wrapf(err, "segment %d", i)
		}
		if err := s.mem.add(seg.Address, data); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Resolve every declaration up front so that errors surface at load
	// time rather than during printing.
	names := make([]string, 0, len(s.decls))
	for name := range s.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.lookupType(name); err != nil {
			return nil, err
		}
	}
	for _, vd := range f.Variables {
		if vd.Name == "" {
			return nil, errors.New("variable with no name")
		}
		if _, dup := s.varIndex[vd.Name]; dup {
			return nil, errors.Newf("variable %s declared twice", vd.Name)
		}
		t, err := s.lookupType(vd.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "variable %s", vd.Name)
		}
		v := &variable{name: vd.Name, typ: t, addr: vd.Address}
		s.vars = append(s.vars, v)
		s.varIndex[v.name] = v
	}
	return s, nil
}

// normalizeQualified canonicalizes the scope of a "Type::Name" reference.
func normalizeQualified(ref string) string {
	i := strings.LastIndex(ref, "::")
	if i < 0 {
		return strings.TrimSpace(ref)
	}
	return normalizeTypeName(ref[:i]) + "::" + strings.TrimSpace(ref[i+2:])
}

// PointerSize returns the size of a pointer in bytes.
func (s *Snapshot) PointerSize() int {
	return s.pointerSize
}

// LookupType implements host.Host.
func (s *Snapshot) LookupType(name string) (host.Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupType(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ValueAt implements host.Host.
func (s *Snapshot) ValueAt(t host.Type, addr uint64) (host.Value, error) {
	st, ok := t.(*Type)
	if !ok {
		found, err := s.LookupType(t.Name())
		if err != nil {
			return nil, err
		}
		st = found.(*Type)
	}
	return s.lvalue(st, addr), nil
}

// Evaluate implements host.Host.
func (s *Snapshot) Evaluate(expr string) (host.Value, error) {
	root, err := parseExpr(expr)
	if err != nil {
		return nil, err
	}
	v, err := root.eval(s)
	if err != nil {
		return nil, &EvalError{Expr: expr, Err: err}
	}
	return v, nil
}

// Variable returns the named variable.
func (s *Snapshot) Variable(name string) (host.Value, error) {
	v, ok := s.varIndex[name]
	if !ok {
		return nil, errors.Wrapf(host.ErrNotFound, "no symbol %q in current context", name)
	}
	return s.lvalue(v.typ, v.addr), nil
}

// Variables returns the snapshot's variables in declaration order.
func (s *Snapshot) Variables() []Variable {
	vars := make([]Variable, len(s.vars))
	for i, v := range s.vars {
		vars[i] = Variable{Name: v.name, Value: s.lvalue(v.typ, v.addr)}
	}
	return vars
}

// TypeNames returns the names of the declared types in sorted order.
func (s *Snapshot) TypeNames() []string {
	names := make([]string, 0, len(s.decls))
	for name := range s.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// constant resolves a "Type::Name" reference against the declared constants
// and the enumerators of enum types.
func (s *Snapshot) constant(ref string) (*Value, error) {
	ref = normalizeQualified(ref)
	if n, ok := s.constants[ref]; ok {
		return s.intValue(s.builtin("long"), n), nil
	}
	i := strings.LastIndex(ref, "::")
	if i < 0 {
		return nil, errors.Wrapf(host.ErrNotFound, "no symbol %q in current context", ref)
	}
	scope, name := ref[:i], ref[i+2:]
	s.mu.Lock()
	t, err := s.lookupType(scope)
	s.mu.Unlock()
	if err == nil && t.stripped().kind == host.KindEnum {
		if n, ok := t.stripped().enumerators[name]; ok {
			return s.intValue(t, n), nil
		}
	}
	if _, perr := typeexpr.Parse(scope); perr != nil {
		return nil, errors.Wrapf(host.ErrNotFound, "no symbol %q in current context", ref)
	}
	return nil, errors.Wrapf(host.ErrNotFound, "there is no field named %s in %s", name, scope)
}

// enumerator resolves an unqualified enumerator name.
func (s *Snapshot) enumerator(name string) (*Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, declName := range s.TypeNames() {
		t, err := s.lookupType(declName)
		if err != nil || t.kind != host.KindEnum {
			continue
		}
		if n, ok := t.enumerators[name]; ok {
			return s.intValue(t, n), true
		}
	}
	return nil, false
}

func (s *Snapshot) builtin(name string) *Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupType(name)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Snapshot) read(addr uint64, n int) ([]byte, error) {
	return s.mem.read(addr, n)
}

// EvalError is returned by Evaluate when a syntactically valid expression
// cannot be evaluated.
type EvalError struct {
	Expr string
	Err  error
}

func (err *EvalError) Error() string {
	return err.Err.Error()
}

func (err *EvalError) Unwrap() error {
	return err.Err
}
