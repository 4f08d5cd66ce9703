// Copyright © 2024 The ELPS authors

package printer

import (
	"context"
	"strings"
	"testing"

	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const programNatvis = "../natvis/testdata/program.natvis"

func openProgram(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Open("../snapshot/testdata/program.yaml")
	require.NoError(t, err)
	return snap
}

func programRegistry(t *testing.T) *natvis.Registry {
	t.Helper()
	reg := natvis.NewRegistry()
	require.True(t, reg.LoadFile(programNatvis))
	return reg
}

func variable(t *testing.T, snap *snapshot.Snapshot, name string) host.Value {
	t.Helper()
	v, err := snap.Variable(name)
	require.NoError(t, err)
	return v
}

func valueAt(t *testing.T, snap *snapshot.Snapshot, typ string, addr uint64) host.Value {
	t.Helper()
	ht, err := snap.LookupType(typ)
	require.NoError(t, err)
	v, err := snap.ValueAt(ht, addr)
	require.NoError(t, err)
	return v
}

func TestDispatcher_Lookup(t *testing.T) {
	snap := openProgram(t)
	d := NewDispatcher(snap, programRegistry(t))
	ctx := context.Background()

	for _, name := range []string{"p", "pp", "handle"} {
		t.Run(name, func(t *testing.T) {
			p := d.Lookup(ctx, variable(t, snap, name))
			require.NotNil(t, p)
			s, err := p.ToString()
			require.NoError(t, err)
			assert.Equal(t, "(1, -2)", s)
			assert.Equal(t, HintArray, p.DisplayHint())
		})
	}

	p := d.Lookup(ctx, valueAt(t, snap, "Point&", 0x3200))
	require.NotNil(t, p)
	s, err := p.ToString()
	require.NoError(t, err)
	assert.Equal(t, "(1, -2)", s)

	np, ok := d.Lookup(ctx, variable(t, snap, "v")).(*NatvisPrinter)
	require.True(t, ok)
	assert.Equal(t, "Vector<*>", np.Binding().Rule().Pattern.String())
	var names []string
	it := np.Children()
	for it.Next() {
		names = append(names, it.Child().Name)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{natvis.DisplayStringLabel, "[size]", "[0]", "[1]", "[2]"}, names)
}

func TestDispatcher_Declines(t *testing.T) {
	snap := openProgram(t)
	d := NewDispatcher(snap, programRegistry(t))
	ctx := context.Background()

	computed, err := snap.Evaluate("p.x + 1")
	require.NoError(t, err)
	tests := []struct {
		name  string
		value host.Value
	}{
		{"computed", computed},
		{"enum", variable(t, snap, "color")},
		{"scalar field", valueAt(t, snap, "int", 0x3000)},
		{"pointer to pointer", valueAt(t, snap, "Point**", 0x3200)},
		{"reference to pointer to pointer", valueAt(t, snap, "Point**&", 0x3200)},
		{"void pointer", valueAt(t, snap, "void*", 0x3200)},
		{"null pointer", valueAt(t, snap, "Node*", 0x4018)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Nil(t, d.Lookup(ctx, test.value))
		})
	}

	// Without a matching rule there is no printer.
	empty := NewDispatcher(snap, natvis.NewRegistry())
	assert.Nil(t, empty.Lookup(ctx, variable(t, snap, "p")))
}

func TestDispatcher_SeesNewDocuments(t *testing.T) {
	snap := openProgram(t)
	reg := natvis.NewRegistry()
	d := NewDispatcher(snap, reg)
	p := variable(t, snap, "p")
	assert.Nil(t, d.Lookup(context.Background(), p))

	require.True(t, reg.LoadFile(programNatvis))
	assert.NotNil(t, d.Lookup(context.Background(), p))
}

type panicValue struct {
	host.Value
}

func (panicValue) Address() (uint64, bool) { return 0x1000, true }
func (panicValue) Type() host.Type         { panic("type information is corrupt") }

type panicHost struct {
	*snapshot.Snapshot
}

func (panicHost) Evaluate(string) (host.Value, error) {
	panic("evaluator crashed")
}

func TestDispatcher_Recovers(t *testing.T) {
	snap := openProgram(t)
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	d := NewDispatcher(snap, programRegistry(t), WithLogger(logger))
	assert.Nil(t, d.Lookup(context.Background(), panicValue{}))
	entries := logs.FilterMessage("visualizer lookup panicked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "type information is corrupt", entries[0].ContextMap()["panic"])
	assert.Contains(t, entries[0].ContextMap(), "stack")

	d = NewDispatcher(panicHost{snap}, programRegistry(t), WithLogger(logger))
	p := d.Lookup(context.Background(), variable(t, snap, "v"))
	require.NotNil(t, p)
	_, err := p.ToString()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluator crashed")

	it := p.Children()
	assert.False(t, it.Next())
	require.Error(t, it.Err())
	assert.False(t, it.Next())
	assert.Equal(t, 2, logs.FilterMessage("visualizer panicked").Len()+logs.FilterMessage("visualizer children panicked").Len())
}

func TestNatvisPrinter_Errors(t *testing.T) {
	snap := openProgram(t)
	core, logs := observer.New(zap.WarnLevel)
	reg := natvis.NewRegistry()
	doc := `<AutoVisualizer xmlns="` + natvis.Namespace + `">
  <Type Name="Point">
    <DisplayString>{missing}</DisplayString>
    <Expand>
      <Item Name="x">x</Item>
      <Item Name="bad">missing</Item>
    </Expand>
  </Type>
</AutoVisualizer>`
	require.True(t, reg.Load("broken.natvis", strings.NewReader(doc)))
	d := NewDispatcher(snap, reg, WithLogger(zap.New(core)))

	p := d.Lookup(context.Background(), variable(t, snap, "p"))
	require.NotNil(t, p)
	_, err := p.ToString()
	require.Error(t, err)
	entries := logs.FilterMessage("cannot render display string").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Point", entries[0].ContextMap()["pattern"])

	// A fresh printer has a fresh binding; its children fail on the
	// display string first.
	p = d.Lookup(context.Background(), variable(t, snap, "p"))
	it := p.Children()
	assert.False(t, it.Next())
	assert.Error(t, it.Err())
	assert.Equal(t, 1, logs.FilterMessage("cannot expand children").Len())
}

func attributeMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestDispatcher_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
		trace.WithSampler(trace.AlwaysSample()),
	)
	t.Cleanup(func() {
		err := tp.Shutdown(context.Background())
		assert.NoError(t, err, "TracerProvider shutdown")
	})
	otel.SetTracerProvider(tp)

	snap := openProgram(t)
	d := NewDispatcher(snap, programRegistry(t))
	ctx := context.WithValue(context.Background(), ContextTracerKey, "printer-test")
	p := d.Lookup(ctx, variable(t, snap, "v"))
	require.NotNil(t, p)
	s, err := p.ToString()
	require.NoError(t, err)
	assert.Equal(t, "size=3", s)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	lookup, render := spans[0], spans[1]
	assert.Equal(t, "printer.Lookup", lookup.Name)
	attrs := attributeMap(lookup.Attributes)
	assert.Equal(t, "Vector<int>", attrs["natvis.type"])
	assert.Equal(t, "Vector<*>", attrs["natvis.pattern"])
	assert.Equal(t, programNatvis, attrs["code.filepath"])
	assert.Equal(t, "3", attrs["code.lineno"])

	assert.Equal(t, "natvis.Render", render.Name)
	assert.Equal(t, lookup.SpanContext.SpanID(), render.Parent.SpanID())
	assert.Equal(t, "Vector<*>", attributeMap(render.Attributes)["natvis.pattern"])

	// Declined values still produce a lookup span, without a pattern.
	exporter.Reset()
	assert.Nil(t, d.Lookup(ctx, variable(t, snap, "color")))
	spans = exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.NotContains(t, attributeMap(spans[0].Attributes), "natvis.pattern")
}
