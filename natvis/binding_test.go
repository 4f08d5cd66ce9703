// Copyright © 2024 The ELPS authors

package natvis

import (
	"strings"
	"testing"

	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/snapshot"
	"github.com/luthersystems/natvis/typeexpr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	snap *snapshot.Snapshot
	reg  *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	snap, err := snapshot.Open("../snapshot/testdata/program.yaml")
	require.NoError(t, err)
	reg := NewRegistry()
	require.True(t, reg.LoadFile("testdata/program.natvis"))
	return &fixture{snap: snap, reg: reg}
}

func (f *fixture) bind(t *testing.T, variable string) *Binding {
	t.Helper()
	v, err := f.snap.Variable(variable)
	require.NoError(t, err)
	return f.bindRule(t, v, nil)
}

func (f *fixture) bindRule(t *testing.T, v host.Value, rule *Rule) *Binding {
	t.Helper()
	runtime, err := typeexpr.Parse(v.Type().Name())
	require.NoError(t, err)
	if rule == nil {
		rule = f.reg.Classify(runtime)
		require.NotNil(t, rule, "no rule for %s", runtime)
	}
	b, err := Bind(f.snap, v, runtime, rule)
	require.NoError(t, err)
	return b
}

type childText struct {
	Name string
	Text string
}

func collectChildren(t *testing.T, b *Binding) []childText {
	t.Helper()
	var children []childText
	it := b.Children()
	for it.Next() {
		c := it.Child()
		text := c.Text
		if c.Value != nil && text == "" {
			text = c.Value.String()
		}
		children = append(children, childText{c.Name, text})
	}
	require.NoError(t, it.Err())
	return children
}

func TestBinding_Vector(t *testing.T) {
	f := newFixture(t)
	b := f.bind(t, "v")

	s, err := b.DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "size=3", s)

	assert.Equal(t, []childText{
		{DisplayStringLabel, "size=3"},
		{"[size]", "3"},
		{"[0]", "10"},
		{"[1]", "20"},
		{"[2]", "30"},
	}, collectChildren(t, b))

	// The sequence is not restartable.
	assert.Same(t, b.Children(), b.Children())
	assert.False(t, b.Children().Next())
}

func TestBinding_Point(t *testing.T) {
	f := newFixture(t)
	b := f.bind(t, "p")
	s, err := b.DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "(1, -2)", s)
	assert.Equal(t, []childText{
		{DisplayStringLabel, "(1, -2)"},
		{"x", "1"},
		{"Unnamed", "-1"},
		{"hex", "0xFFFFFFFE"},
	}, collectChildren(t, b))
}

func TestBinding_Formats(t *testing.T) {
	f := newFixture(t)

	s, err := f.bind(t, "name").DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	s, err = f.bind(t, "head").DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "node 0x1 {next}", s)

	b := f.bind(t, "v")
	tests := []struct {
		tmpl string
		want string
	}{
		{"{Count,d}", "3"},
		{"{Count,o}", "03"},
		{"{Count,x}", "0x3"},
		{"{Count + 252,X}", "0xFF"},
		{"{Count + 62,c}", "65 'A'"},
		{"{Count,en}", "3"},
		{"{Count,hr}", "3"},
		{"{Count,zz}", "3"},
		{"{Count + 1, q2}", "4"},
		{"{Data[1]}", "20"},
		{"{(($T1*)Data)[2]}", "30"},
		{"{kMax}", "64"},
		{"{{literal}}", "{literal}"},
	}
	for _, test := range tests {
		t.Run(test.tmpl, func(t *testing.T) {
			s, err := b.Expand(test.tmpl)
			require.NoError(t, err)
			assert.Equal(t, test.want, s)
		})
	}

	nb := f.bind(t, "name")
	s, err = nb.Expand("{text,s}")
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, s)
}

func TestBinding_Reference(t *testing.T) {
	f := newFixture(t)
	ref, err := f.snap.LookupType("Point&")
	require.NoError(t, err)
	rv, err := f.snap.ValueAt(ref, 0x3200)
	require.NoError(t, err)

	v, err := host.StripReferences(rv)
	require.NoError(t, err)
	require.NotNil(t, v)
	addr, ok := v.Address()
	require.True(t, ok)
	assert.Equal(t, uint64(0x3000), addr)

	s, err := f.bindRule(t, v, nil).DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "(1, -2)", s)
}

func TestBinding_Fallback(t *testing.T) {
	f := newFixture(t)
	v, err := f.snap.Variable("v")
	require.NoError(t, err)
	rule := &Rule{
		Pattern: typeexpr.MustParse("Vector<*>"),
		DisplayStrings: []DisplayString{
			{Condition: "Count > 10", Template: "big"},
		},
	}
	b := f.bindRule(t, v, rule)
	s, err := b.DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.Equal(t, []childText{{DisplayStringLabel, ""}}, collectChildren(t, b))
}

func TestBinding_SkippedLoops(t *testing.T) {
	f := newFixture(t)
	v, err := f.snap.Variable("v")
	require.NoError(t, err)
	rule := &Rule{
		Pattern:        typeexpr.MustParse("Vector<*>"),
		DisplayStrings: []DisplayString{{Template: "v"}},
		Items: []Item{
			{Kind: ArrayLoop, Size: "Missing", ValuePointer: "Data"},
			{Kind: ArrayLoop, ValuePointer: "Data"},
			{Kind: ArrayLoop, Size: "Count", ValuePointer: "Data", Condition: "Count == 0"},
			{Kind: ArrayLoop, Size: "Count - 1", ValuePointer: "Data + 1"},
			{Kind: NamedItem, Name: "last", Expression: "Count"},
		},
	}
	assert.Equal(t, []childText{
		{DisplayStringLabel, "v"},
		{"[0]", "20"},
		{"[1]", "30"},
		{"last", "3"},
	}, collectChildren(t, f.bindRule(t, v, rule)))
}

func TestBinding_ItemError(t *testing.T) {
	f := newFixture(t)
	v, err := f.snap.Variable("v")
	require.NoError(t, err)
	rule := &Rule{
		Pattern: typeexpr.MustParse("Vector<*>"),
		Items: []Item{
			{Kind: NamedItem, Name: "ok", Expression: "Count"},
			{Kind: NamedItem, Name: "bad", Expression: "NoSuchMember"},
			{Kind: NamedItem, Name: "never", Expression: "Count"},
		},
	}
	it := f.bindRule(t, v, rule).Children()
	require.True(t, it.Next())
	require.True(t, it.Next())
	assert.Equal(t, "ok", it.Child().Name)
	assert.False(t, it.Next())
	require.Error(t, it.Err())
	assert.Contains(t, it.Err().Error(), "item bad")
	assert.False(t, it.Next())
}

func TestBind_NoAddress(t *testing.T) {
	f := newFixture(t)
	v, err := f.snap.Evaluate("1 + 2")
	require.NoError(t, err)
	_, err = Bind(f.snap, v, typeexpr.MustParse("int"), &Rule{})
	assert.Error(t, err)
}

func TestBinding_ValueFormatter(t *testing.T) {
	f := newFixture(t)
	v, err := f.snap.Variable("v")
	require.NoError(t, err)
	rule := &Rule{
		Pattern:        typeexpr.MustParse("Vector<*>"),
		DisplayStrings: []DisplayString{{Template: "{Count}"}},
	}
	b, err := Bind(f.snap, v, typeexpr.MustParse("Vector<int>"), rule,
		WithValueFormatter(func(v host.Value) string {
			return "<" + strings.ToUpper(v.Type().Name()) + ">"
		}))
	require.NoError(t, err)
	s, err := b.DisplayString()
	require.NoError(t, err)
	assert.Equal(t, "<INT>", s)
}
