// Copyright © 2024 The ELPS authors

// Package host defines the capabilities the visualizer engine needs from a
// debugger. A debugger integration implements Host, Type and Value on top of
// its own introspection API; the rest of the module never looks at process
// memory or expression grammar directly.
package host

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned (possibly wrapped) when a type, field or symbol
// does not exist.
var ErrNotFound = errors.New("not found")

// Kind classifies a Type.
type Kind int

const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindInt
	KindUint
	KindChar
	KindFloat
	KindEnum
	KindPointer
	KindRef
	KindArray
	KindStruct
	KindUnion
	KindTypedef
)

var kindStrings = []string{
	KindInvalid: "invalid",
	KindVoid:    "void",
	KindBool:    "bool",
	KindInt:     "int",
	KindUint:    "uint",
	KindChar:    "char",
	KindFloat:   "float",
	KindEnum:    "enum",
	KindPointer: "pointer",
	KindRef:     "reference",
	KindArray:   "array",
	KindStruct:  "struct",
	KindUnion:   "union",
	KindTypedef: "typedef",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindStrings) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindStrings[k]
}

// IsScalar reports whether values of kind k hold a single number.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBool, KindInt, KindUint, KindChar, KindFloat, KindEnum, KindPointer:
		return true
	}
	return false
}

// Type describes a type in the debugged program.
type Type interface {
	// Name returns the type's name, or the empty string for unnamed types.
	Name() string
	Kind() Kind
	// Size returns the size of the type in bytes.
	Size() int
	// Target returns the pointed-to, referenced, element or aliased type
	// for pointers, references, arrays and typedefs. It returns nil for
	// every other kind.
	Target() Type
	// Len returns the element count of an array type.
	Len() int
	// Fields returns the data members of a struct or union type in
	// declaration order.
	Fields() []Field
}

// Field is a data member of a struct or union.
type Field struct {
	Name   string
	Type   Type
	Offset int
}

// Value is a value in the debugged program.
type Value interface {
	Type() Type
	// Address returns the location of the value in memory. Computed values
	// have no address.
	Address() (uint64, bool)
	// Deref follows a pointer or reference.
	Deref() (Value, error)
	// Field returns the named member of a struct or union value.
	Field(name string) (Value, error)
	// Index returns the i-th element of an array, or the i-th element
	// after the address held by a pointer.
	Index(i int) (Value, error)
	Int() (int64, error)
	Float() (float64, error)
	Bool() (bool, error)
	// CString reads a NUL-terminated string through a character pointer or
	// from a character array, stopping after max bytes.
	CString(max int) (string, error)
	// String returns the debugger's default rendering of the value.
	String() string
}

// Host is the debugger the visualizers run against.
type Host interface {
	// LookupType resolves a type name.
	LookupType(name string) (Type, error)
	// ValueAt reads a value of type t at addr.
	ValueAt(t Type, addr uint64) (Value, error)
	// Evaluate evaluates an expression in the debugger's own expression
	// language.
	Evaluate(expr string) (Value, error)
}
