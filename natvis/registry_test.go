// Copyright © 2024 The ELPS authors

package natvis

import (
	"strings"
	"testing"

	"github.com/luthersystems/natvis/typeexpr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedRegistry(t *testing.T) (*Registry, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	return NewRegistry(WithLogger(zap.New(core))), logs
}

func TestRegistry_Load(t *testing.T) {
	r, logs := observedRegistry(t)
	require.True(t, r.LoadFile("testdata/program.natvis"))
	assert.Equal(t, 4, r.Len())
	// The nameless Item is the only oddity.
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "Item has no Name")

	rules := r.Rules()
	require.Len(t, rules, 4)
	assert.Equal(t, "Vector<*>", rules[0].Pattern.String())
	assert.Len(t, rules[0].DisplayStrings, 2)
	assert.Equal(t, "Count == 0", rules[0].DisplayStrings[0].Condition)
	require.Len(t, rules[0].Items, 2)
	assert.Equal(t, NamedItem, rules[0].Items[0].Kind)
	assert.Equal(t, "[size]", rules[0].Items[0].Name)
	assert.Equal(t, ArrayLoop, rules[0].Items[1].Kind)
	assert.Equal(t, "Count", rules[0].Items[1].Size)
	assert.Equal(t, "Data", rules[0].Items[1].ValuePointer)
	assert.Equal(t, 3, rules[0].Source.Line)

	assert.Equal(t, DefaultItemName, rules[1].Items[2].Name)
}

func TestRegistry_Classify(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.LoadFile("testdata/program.natvis"))

	tests := []struct {
		runtime string
		want    string
	}{
		{"Vector<int>", "Vector<*>"},
		{"Vector<Vector<char>, int>", "Vector<*>"},
		{"Point", "Point"},
		{"Pointer", ""},
		{"Vector", "Vector<*>"},
		{"Point<int>", ""},
	}
	for _, test := range tests {
		t.Run(test.runtime, func(t *testing.T) {
			rule := r.Classify(typeexpr.MustParse(test.runtime))
			if test.want == "" {
				assert.Nil(t, rule)
				return
			}
			require.NotNil(t, rule)
			assert.Equal(t, test.want, rule.Pattern.String())
		})
	}
	assert.Nil(t, r.Classify(nil))
}

func TestRegistry_LoadOrder(t *testing.T) {
	r := NewRegistry()
	results := r.LoadFiles("testdata/program.natvis", "testdata/missing.natvis", "testdata/override.natvis")
	assert.Equal(t, []LoadResult{
		{Path: "testdata/program.natvis", OK: true},
		{Path: "testdata/missing.natvis", OK: false},
		{Path: "testdata/override.natvis", OK: true},
	}, results)
	assert.Equal(t, 6, r.Len())

	// The earlier document wins over the more specific pattern.
	rule := r.Classify(typeexpr.MustParse("Vector<int>"))
	require.NotNil(t, rule)
	assert.Equal(t, "Vector<*>", rule.Pattern.String())

	rule = r.Classify(typeexpr.MustParse("Other"))
	require.NotNil(t, rule)
	assert.True(t, rule.Pattern.IsWildcard())

	r = NewRegistry()
	r.LoadFiles("testdata/override.natvis", "testdata/program.natvis")
	rule = r.Classify(typeexpr.MustParse("Vector<int>"))
	require.NotNil(t, rule)
	assert.Equal(t, "Vector<int>", rule.Pattern.String())
	// The wildcard precedes every rule of the second document.
	rule = r.Classify(typeexpr.MustParse("Point"))
	require.NotNil(t, rule)
	assert.True(t, rule.Pattern.IsWildcard())
}

func TestRegistry_WrongRoot(t *testing.T) {
	r, logs := observedRegistry(t)
	ok := r.Load("bad.natvis", strings.NewReader(`<Visualizers><Type Name="Foo"/></Visualizers>`))
	assert.False(t, ok)
	assert.Zero(t, r.Len())
	assert.Equal(t, 1, logs.FilterMessage("not a visualizer document").Len())
}

func TestRegistry_ForeignNamespace(t *testing.T) {
	r, logs := observedRegistry(t)
	ok := r.Load("other.natvis", strings.NewReader(`<AutoVisualizer xmlns="urn:other"><Type Name="Foo"/></AutoVisualizer>`))
	assert.False(t, ok)
	assert.Zero(t, r.Len())
	assert.Equal(t, 1, logs.FilterMessage("not a visualizer document").Len())
}

func TestRegistry_MalformedXML(t *testing.T) {
	r, logs := observedRegistry(t)
	ok := r.Load("broken.natvis", strings.NewReader("<AutoVisualizer>\n<Type Name=\"Foo\">\n</AutoVisualizer>"))
	assert.False(t, ok)
	assert.Zero(t, r.Len())
	entries := logs.FilterMessage("invalid visualizer document").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken.natvis", entries[0].ContextMap()["file"])
}

func TestRegistry_SkipsBadTypes(t *testing.T) {
	r, logs := observedRegistry(t)
	doc := `<AutoVisualizer xmlns="` + Namespace + `">
  <Type Name="Foo&lt;&gt;"><DisplayString>x</DisplayString></Type>
  <Type Name="Bar"><DisplayString>bar</DisplayString></Type>
  <Type><DisplayString>nameless</DisplayString></Type>
</AutoVisualizer>`
	require.True(t, r.Load("mixed.natvis", strings.NewReader(doc)))
	require.Equal(t, 1, r.Len())
	assert.Equal(t, "Bar", r.Rules()[0].Pattern.String())

	entries := logs.FilterField(zap.String("type", "Foo<>")).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "found type with template list but no parameters")
	assert.Equal(t, 1, logs.FilterMessage("Type has no Name attribute").Len())
}

func TestRegistry_NoNamespace(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Load("plain.natvis", strings.NewReader(`<AutoVisualizer><Type Name="A"/></AutoVisualizer>`)))
	assert.Equal(t, 1, r.Len())
}
