// Copyright © 2024 The ELPS authors

package natvis

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
)

// MaxStringLength bounds the characters read for the string format
// specifiers.
const MaxStringLength = 1024

// stringCasts maps the string specifiers to the character pointer type the
// value is read through.
var stringCasts = map[string]string{
	"s":    "char*",
	"sa":   "char*",
	"sb":   "char*",
	"s8":   "char*",
	"s8b":  "char*",
	"bstr": "wchar_t*",
	"su":   "char16_t*",
	"sub":  "char16_t*",
	"s32":  "char32_t*",
	"s32b": "char32_t*",
}

// quotedStrings are the string specifiers that render with quotes.
var quotedStrings = map[string]bool{
	"s": true, "sa": true, "s8": true, "su": true, "s32": true,
}

// applyFormat renders v according to a format specifier. ok is false for
// specifiers that leave the value as it is. expr is the rewritten
// expression v came from, used to reread it through a character pointer.
func applyFormat(h host.Host, v host.Value, expr, code string) (text string, ok bool, err error) {
	if cast, isString := stringCasts[code]; isString {
		sv, err := h.Evaluate("(" + cast + ")(" + expr + ")")
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		s, err := sv.CString(MaxStringLength)
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		if quotedStrings[code] {
			return strconv.Quote(s), true, nil
		}
		return s, true, nil
	}
	switch code {
	case "d":
		n, err := v.Int()
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		return strconv.FormatInt(n, 10), true, nil
	case "o":
		n, err := v.Int()
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		return "0" + strconv.FormatUint(uint64(n), 8), true, nil
	case "x", "h":
		n, err := v.Int()
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		return fmt.Sprintf("0x%x", maskToSize(n, v)), true, nil
	case "X", "H":
		n, err := v.Int()
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		return fmt.Sprintf("0x%X", maskToSize(n, v)), true, nil
	case "c":
		n, err := v.Int()
		if err != nil {
			return "", false, errors.Wrapf(err, "format %s", code)
		}
		return fmt.Sprintf("%d %s", n, strconv.QuoteRune(rune(n))), true, nil
	}
	return "", false, nil
}

// maskToSize reinterprets n as an unsigned number as wide as v's type so
// negative numbers print in two's complement.
func maskToSize(n int64, v host.Value) uint64 {
	size := 8
	if t := host.StripTypedefs(v.Type()); t != nil && t.Size() > 0 && t.Size() < 8 {
		size = t.Size()
	}
	if size >= 8 {
		return uint64(n)
	}
	return uint64(n) & (1<<(8*uint(size)) - 1)
}
