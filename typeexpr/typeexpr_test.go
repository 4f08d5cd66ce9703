// Copyright © 2024 The ELPS authors

package typeexpr

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		args  int
	}{
		{"plain", "int", "int", 0},
		{"qualified", "glm::vec3", "glm::vec3", 0},
		{"wildcard", "*", "*", 0},
		{"generic", "Foo<Bar>", "Foo<Bar>", 1},
		{"nested", "Foo<Bar<int>, Baz>", "Foo<Bar<int>, Baz>", 2},
		{"whitespace", "  Foo < Bar<int>,Baz  >  ", "Foo<Bar<int>, Baz>", 2},
		{"deep nesting", "A<B<C<D<E>>>>", "A<B<C<D<E>>>>", 1},
		{"multiword arg", "Map<unsigned int, long long>", "Map<unsigned int, long long>", 2},
		{"glm", "glm::vec<3, float, (glm::qualifier)0>", "glm::vec<3, float, (glm::qualifier)0>", 3},
		{"wildcard arg", "Foo<*>", "Foo<*>", 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			typ, err := Parse(test.input)
			require.NoError(t, err)
			assert.Equal(t, test.want, typ.String())
			assert.Len(t, typ.Args, test.args)
			assert.Equal(t, test.input, typ.Source)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, s := range []string{
		"Foo",
		"Foo<Bar>",
		"Foo<Bar<int>, Baz>",
		"std::map<std::string, std::vector<int>>",
		"Outer<Inner<A, B>, Other<C<D>>>",
	} {
		typ, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, typ.String())

		again, err := Parse(typ.String())
		require.NoError(t, err, s)
		assert.True(t, Match(typ, again), "%#v should match %#v", typ, again)
	}
}

func TestParse_Tree(t *testing.T) {
	typ, err := Parse("Foo<Bar<int>, Baz>")
	require.NoError(t, err)
	assert.Equal(t, "Foo", typ.Name)
	require.Len(t, typ.Args, 2)
	assert.Equal(t, "Bar", typ.Args[0].Name)
	require.Len(t, typ.Args[0].Args, 1)
	assert.Equal(t, "int", typ.Args[0].Args[0].Name)
	assert.Empty(t, typ.Args[0].Args[0].Args)
	assert.Equal(t, "Baz", typ.Args[1].Name)
	assert.Empty(t, typ.Args[1].Source, "only the root keeps its source text")

	arg, ok := typ.Arg(2)
	require.True(t, ok)
	assert.Equal(t, "Baz", arg.String())
	_, ok = typ.Arg(3)
	assert.False(t, ok)
	_, ok = typ.Arg(0)
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
		msg   string
	}{
		{"empty argument list", "Foo<>", 5, "no parameters"},
		{"trailing comma", "Foo<Bar,>", 9, "expected a type name"},
		{"double comma", "Foo<Bar,,Baz>", 9, "expected a type name"},
		{"comma then open", "Foo<Bar,<int>>", 9, "expected a type name"},
		{"unterminated", "Foo<Bar", 8, `expected ">"`},
		{"unterminated after comma", "Foo<Bar, ", 10, "expected a type name"},
		{"missing comma", "Foo<Bar<int>Baz>", 13, `expected ">"`},
		{"trailing input", "Foo<Bar>x", 9, "input remained"},
		{"stray close", "Foo>", 4, "input remained"},
		{"empty", "", 1, "expected a type name"},
		{"blank", "   ", 4, "expected a type name"},
		{"missing name", "<int>", 1, "expected a type name"},
		{"empty argument name", "Foo< ,Bar>", 6, "expected a type name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			typ, err := Parse(test.input)
			require.Error(t, err)
			assert.Nil(t, typ)
			var serr *SyntaxError
			require.True(t, errors.As(err, &serr), "unexpected error type %T", err)
			assert.Equal(t, test.input, serr.Input)
			assert.Equal(t, test.pos, serr.Pos)
			assert.Contains(t, serr.Msg, test.msg)
			assert.Contains(t, err.Error(), test.msg)
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, "Foo<Bar>", MustParse("Foo<Bar>").String())
	assert.Panics(t, func() { MustParse("Foo<>") })
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern   string
		candidate string
		want      bool
	}{
		{"*", "Any<Thing>", true},
		{"*", "int", true},
		{"Foo<*>", "Foo<Bar,Baz>", true},
		{"Foo<*>", "Foo<Bar>", true},
		{"Foo<*>", "Foo", true},
		{"Foo<*>", "Qux<Bar>", false},
		{"Foo<Bar,Baz>", "Foo<Bar,Qux>", false},
		{"Foo<Bar,Baz>", "Foo<Bar, Baz>", true},
		{"Foo<Bar>", "Foo<Bar,Baz>", false},
		{"Foo", "Foo<Bar>", false},
		{"Foo<Bar<*>>", "Foo<Bar<int, long>>", true},
		{"Foo<*, int>", "Foo<char, int>", true},
		{"Foo<*, int>", "Foo<char, long>", false},
		{"Foo<int>", "*", false},
		{"Foo", "Foobar", false},
	}
	for _, test := range tests {
		t.Run(test.pattern+" ~ "+test.candidate, func(t *testing.T) {
			assert.Equal(t, test.want, Match(MustParse(test.pattern), MustParse(test.candidate)))
		})
	}
}

func TestMatch_Nil(t *testing.T) {
	assert.False(t, Match(MustParse("*"), nil))
	assert.False(t, Match(nil, MustParse("Foo")))
}
