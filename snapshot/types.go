// Copyright © 2024 The ELPS authors

package snapshot

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/typeexpr"
)

// Type implements host.Type for snapshot declarations and the built-in C
// scalar types.
type Type struct {
	name        string
	kind        host.Kind
	size        int
	target      *Type
	length      int
	fields      []host.Field
	enumerators map[string]int64
	enumNames   map[int64]string
}

var _ host.Type = (*Type)(nil)

func (t *Type) Name() string    { return t.name }
func (t *Type) Kind() host.Kind { return t.kind }
func (t *Type) Size() int       { return t.size }
func (t *Type) Len() int        { return t.length }

func (t *Type) Target() host.Type {
	if t.target == nil {
		return nil
	}
	return t.target
}

func (t *Type) Fields() []host.Field {
	return t.fields
}

// Enumerator returns the value of the named enumerator of an enum type.
func (t *Type) Enumerator(name string) (int64, bool) {
	n, ok := t.enumerators[name]
	return n, ok
}

func (t *Type) String() string {
	return t.name
}

func (t *Type) stripped() *Type {
	for t != nil && t.kind == host.KindTypedef {
		t = t.target
	}
	return t
}

func (t *Type) signed() bool {
	switch t.kind {
	case host.KindInt, host.KindEnum:
		return true
	case host.KindChar:
		return t.size == 1 && t.name != "unsigned char"
	}
	return false
}

type builtin struct {
	kind host.Kind
	// size is the size in bytes; zero means pointer-sized.
	size int
}

var builtins = map[string]builtin{
	"void":               {host.KindVoid, 1},
	"bool":               {host.KindBool, 1},
	"_Bool":              {host.KindBool, 1},
	"char":               {host.KindChar, 1},
	"signed char":        {host.KindChar, 1},
	"unsigned char":      {host.KindChar, 1},
	"wchar_t":            {host.KindChar, 4},
	"char8_t":            {host.KindChar, 1},
	"char16_t":           {host.KindChar, 2},
	"char32_t":           {host.KindChar, 4},
	"short":              {host.KindInt, 2},
	"unsigned short":     {host.KindUint, 2},
	"int":                {host.KindInt, 4},
	"unsigned int":       {host.KindUint, 4},
	"long":               {host.KindInt, 0},
	"unsigned long":      {host.KindUint, 0},
	"long long":          {host.KindInt, 8},
	"unsigned long long": {host.KindUint, 8},
	"float":              {host.KindFloat, 4},
	"double":             {host.KindFloat, 8},
	"int8_t":             {host.KindInt, 1},
	"uint8_t":            {host.KindUint, 1},
	"int16_t":            {host.KindInt, 2},
	"uint16_t":           {host.KindUint, 2},
	"int32_t":            {host.KindInt, 4},
	"uint32_t":           {host.KindUint, 4},
	"int64_t":            {host.KindInt, 8},
	"uint64_t":           {host.KindUint, 8},
	"size_t":             {host.KindUint, 0},
	"ssize_t":            {host.KindInt, 0},
	"ptrdiff_t":          {host.KindInt, 0},
	"intptr_t":           {host.KindInt, 0},
	"uintptr_t":          {host.KindUint, 0},
}

var builtinAliases = map[string]string{
	"unsigned":               "unsigned int",
	"signed":                 "int",
	"signed int":             "int",
	"short int":              "short",
	"unsigned short int":     "unsigned short",
	"long int":               "long",
	"unsigned long int":      "unsigned long",
	"long long int":          "long long",
	"unsigned long long int": "unsigned long long",
}

var (
	qualifierRegexp = regexp.MustCompile(`\b(const|volatile)\b`)
	spaceRegexp     = regexp.MustCompile(`\s+`)
	arrayRegexp     = regexp.MustCompile(`^(.*)\[\s*(\d+)\s*\]$`)
)

// normalizeTypeName removes cv-qualifiers and canonicalizes whitespace so
// that "const Foo< int,int > *" and "Foo<int, int>*" name the same type.
func normalizeTypeName(name string) string {
	name = qualifierRegexp.ReplaceAllString(name, " ")
	name = strings.TrimSpace(spaceRegexp.ReplaceAllString(name, " "))
	if alias, ok := builtinAliases[name]; ok {
		return alias
	}
	for _, suffix := range []string{"*", "&"} {
		if strings.HasSuffix(name, suffix) {
			return normalizeTypeName(strings.TrimSuffix(name, suffix)) + suffix
		}
	}
	if m := arrayRegexp.FindStringSubmatch(name); m != nil {
		return normalizeTypeName(m[1]) + "[" + m[2] + "]"
	}
	if strings.ContainsAny(name, "<>,") {
		if t, err := typeexpr.Parse(name); err == nil {
			return t.String()
		}
	}
	return name
}

// lookupType resolves name, constructing derived pointer, reference and
// array types on demand. The caller must hold s.mu.
func (s *Snapshot) lookupType(name string) (*Type, error) {
	name = normalizeTypeName(name)
	if name == "" {
		return nil, errors.New("empty type name")
	}
	if t, ok := s.types[name]; ok {
		return t, nil
	}
	switch {
	case strings.HasSuffix(name, "*"), strings.HasSuffix(name, "&"):
		target, err := s.lookupType(name[:len(name)-1])
		if err != nil {
			return nil, err
		}
		kind := host.KindPointer
		if strings.HasSuffix(name, "&") {
			kind = host.KindRef
		}
		t := &Type{name: name, kind: kind, size: s.pointerSize, target: target}
		s.types[name] = t
		return t, nil
	case arrayRegexp.MatchString(name):
		m := arrayRegexp.FindStringSubmatch(name)
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, errors.Wrapf(err, "array length of %s", name)
		}
		elem, err := s.lookupType(m[1])
		if err != nil {
			return nil, err
		}
		t := &Type{name: name, kind: host.KindArray, size: n * elem.size, target: elem, length: n}
		s.types[name] = t
		return t, nil
	}
	if b, ok := builtins[name]; ok {
		size := b.size
		if size == 0 {
			size = s.pointerSize
		}
		t := &Type{name: name, kind: b.kind, size: size}
		s.types[name] = t
		return t, nil
	}
	if decl, ok := s.decls[name]; ok {
		return s.declare(name, decl)
	}
	return nil, errors.Wrapf(host.ErrNotFound, "no type named %q", name)
}

var declKinds = map[string]host.Kind{
	"struct":  host.KindStruct,
	"class":   host.KindStruct,
	"union":   host.KindUnion,
	"enum":    host.KindEnum,
	"typedef": host.KindTypedef,
}

// declare builds a declared type. The type is cached before its fields are
// resolved so self-referential structs terminate.
func (s *Snapshot) declare(name string, decl *TypeDecl) (*Type, error) {
	kind, ok := declKinds[strings.ToLower(decl.Kind)]
	if !ok {
		return nil, errors.Newf("type %s: unknown kind %q", name, decl.Kind)
	}
	t := &Type{name: name, kind: kind, size: decl.Size}
	s.types[name] = t
	fail := func(err error) (*Type, error) {
		delete(s.types, name)
		return nil, errors.Wrapf(err, "type %s", name)
	}
	switch kind {
	case host.KindTypedef:
		target, err := s.lookupType(decl.Target)
		if err != nil {
			return fail(err)
		}
		t.target = target
		t.size = target.size
	case host.KindEnum:
		if t.size == 0 {
			t.size = 4
		}
		t.enumerators = decl.Enumerators
		t.enumNames = make(map[int64]string, len(decl.Enumerators))
		for k, v := range decl.Enumerators {
			if prev, ok := t.enumNames[v]; !ok || k < prev {
				t.enumNames[v] = k
			}
		}
	default:
		for _, fd := range decl.Fields {
			ft, err := s.lookupType(fd.Type)
			if err != nil {
				return fail(errors.Wrapf(err, "field %s", fd.Name))
			}
			if fd.Offset < 0 || (t.size > 0 && fd.Offset+ft.size > t.size) {
				return fail(errors.Newf("field %s at offset %d does not fit in %d bytes", fd.Name, fd.Offset, t.size))
			}
			t.fields = append(t.fields, host.Field{Name: fd.Name, Type: ft, Offset: fd.Offset})
		}
	}
	return t, nil
}
