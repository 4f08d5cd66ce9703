// Copyright © 2024 The ELPS authors

package host

import "github.com/cockroachdb/errors"

// StripTypedefs follows typedef aliases until it reaches a concrete type.
func StripTypedefs(t Type) Type {
	for t != nil && t.Kind() == KindTypedef {
		t = t.Target()
	}
	return t
}

// StripReferenceTypes strips typedefs and references from t.
func StripReferenceTypes(t Type) Type {
	for t != nil && (t.Kind() == KindTypedef || t.Kind() == KindRef) {
		t = t.Target()
	}
	return t
}

// BasicType strips typedefs, references and pointers from t.
func BasicType(t Type) Type {
	for t != nil {
		switch t.Kind() {
		case KindTypedef, KindRef, KindPointer:
			t = t.Target()
		default:
			return t
		}
	}
	return nil
}

// IsPointer reports whether t is a pointer type once typedefs are removed.
func IsPointer(t Type) bool {
	t = StripTypedefs(t)
	return t != nil && t.Kind() == KindPointer
}

// IsPointerToPointer reports whether t is a pointer whose target is itself
// a pointer, ignoring typedefs at both levels.
func IsPointerToPointer(t Type) bool {
	t = StripTypedefs(t)
	if t == nil || t.Kind() != KindPointer {
		return false
	}
	return IsPointer(t.Target())
}

// IsVoidPointer reports whether t is a pointer to void.
func IsVoidPointer(t Type) bool {
	t = StripTypedefs(t)
	if t == nil || t.Kind() != KindPointer {
		return false
	}
	target := StripTypedefs(t.Target())
	return target == nil || target.Kind() == KindVoid
}

// IsRecord reports whether t is a struct or a union.
func IsRecord(t Type) bool {
	if t == nil {
		return false
	}
	k := t.Kind()
	return k == KindStruct || k == KindUnion
}

// StripReferences dereferences v until it is neither a pointer nor a
// reference. It returns nil without error when v points to void.
func StripReferences(v Value) (Value, error) {
	for {
		t := StripTypedefs(v.Type())
		if t == nil {
			return nil, errors.New("value has no type")
		}
		if t.Kind() != KindPointer && t.Kind() != KindRef {
			return v, nil
		}
		if IsVoidPointer(t) {
			return nil, nil
		}
		next, err := v.Deref()
		if err != nil {
			return nil, errors.Wrapf(err, "dereference %s", TypeString(v.Type()))
		}
		v = next
	}
}

// FieldNames returns the member names of a struct or union type, looking
// through typedefs.
func FieldNames(t Type) []string {
	t = StripTypedefs(t)
	if !IsRecord(t) {
		return nil
	}
	fields := t.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// TypeString returns a printable name for t, describing unnamed types by
// their kind.
func TypeString(t Type) string {
	if t == nil {
		return "<no type>"
	}
	if name := t.Name(); name != "" {
		return name
	}
	switch t.Kind() {
	case KindPointer:
		return TypeString(t.Target()) + " *"
	case KindRef:
		return TypeString(t.Target()) + " &"
	case KindArray:
		return TypeString(t.Target()) + " []"
	}
	return "<unnamed " + t.Kind().String() + ">"
}
