// Copyright © 2024 The ELPS authors

package natvis

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/typeexpr"
)

// Rewriter turns a visualizer expression, which refers to members of the
// visualized object by bare name, into an expression the host can evaluate
// on its own.
//
// A bare identifier that names a field becomes ((T*)addr)->field, where T
// is the runtime type and addr the object's address. Any other bare
// identifier becomes T::ident so it can name a static member or nested
// type. $Tn is replaced by the n-th generic argument of the runtime type.
type Rewriter struct {
	// Runtime is the concrete type of the visualized object.
	Runtime *typeexpr.TypeName
	Address uint64
	// Fields holds the member names of the runtime type.
	Fields map[string]bool
}

// NewRewriter returns a Rewriter for an object of type runtime at addr.
func NewRewriter(runtime *typeexpr.TypeName, addr uint64, fields []string) *Rewriter {
	rw := &Rewriter{
		Runtime: runtime,
		Address: addr,
		Fields:  make(map[string]bool, len(fields)),
	}
	for _, f := range fields {
		rw.Fields[f] = true
	}
	return rw
}

// reserved identifiers are never qualified.
var reserved = map[string]bool{
	"true": true, "false": true, "nullptr": true, "NULL": true, "sizeof": true,
	"void": true, "bool": true, "char": true, "short": true, "int": true, "long": true,
	"signed": true, "unsigned": true, "float": true, "double": true, "wchar_t": true,
	"char8_t": true, "char16_t": true, "char32_t": true, "const": true, "volatile": true,
	"struct": true, "class": true, "union": true, "enum": true,
	"static_cast": true, "reinterpret_cast": true, "const_cast": true, "dynamic_cast": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
	"size_t": true, "ssize_t": true, "ptrdiff_t": true, "intptr_t": true, "uintptr_t": true,
}

func (rw *Rewriter) typeText() string {
	if rw.Runtime.Source != "" {
		return rw.Runtime.Source
	}
	return rw.Runtime.String()
}

func (rw *Rewriter) self() string {
	return "((" + rw.typeText() + "*)" + strconv.FormatUint(rw.Address, 10) + ")"
}

// Rewrite rewrites expr. Text inside string and character literals is left
// untouched.
func (rw *Rewriter) Rewrite(expr string) (string, error) {
	var out strings.Builder
	// prev is the last significant token written, used to detect member
	// and scope access.
	prev := ""
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			end := literalEnd(expr, i)
			out.WriteString(expr[i:end])
			prev = "lit"
			i = end
		case c == '$':
			j := i + 1
			for j < len(expr) && isIdentByte(expr[j]) {
				j++
			}
			name := expr[i+1 : j]
			arg, err := rw.templateArg(name)
			if err != nil {
				return "", err
			}
			out.WriteString(arg)
			prev = "ident"
			i = j
		case isIdentStart(c):
			j := i
			for j < len(expr) && isIdentByte(expr[j]) {
				j++
			}
			ident := expr[i:j]
			out.WriteString(rw.identifier(ident, prev, followedByScope(expr, j)))
			prev = "ident"
			i = j
		case isDigit(c):
			j := i
			for j < len(expr) && (isIdentByte(expr[j]) || expr[j] == '.') {
				j++
			}
			out.WriteString(expr[i:j])
			prev = "num"
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			out.WriteByte(c)
			i++
		default:
			op := string(c)
			if i+1 < len(expr) {
				two := expr[i : i+2]
				if two == "->" || two == "::" {
					op = two
				}
			}
			out.WriteString(op)
			prev = op
			i += len(op)
		}
	}
	return out.String(), nil
}

func (rw *Rewriter) identifier(ident, prev string, scope bool) string {
	if prev == "." || prev == "->" || prev == "::" || scope || reserved[ident] {
		return ident
	}
	if ident == "this" {
		return rw.self()
	}
	if rw.Fields[ident] {
		return rw.self() + "->" + ident
	}
	return rw.typeText() + "::" + ident
}

// templateArg resolves a $Tn placeholder.
func (rw *Rewriter) templateArg(name string) (string, error) {
	if len(name) < 2 || name[0] != 'T' {
		return "", errors.Newf("unknown placeholder $%s", name)
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return "", errors.Newf("unknown placeholder $%s", name)
	}
	arg, ok := rw.Runtime.Arg(n)
	if !ok {
		return "", errors.Newf("placeholder $%s: type %s has %d template arguments", name, rw.Runtime, len(rw.Runtime.Args))
	}
	return arg.String(), nil
}

func literalEnd(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(s)
}

func followedByScope(s string, i int) bool {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return strings.HasPrefix(s[i:], "::")
}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
