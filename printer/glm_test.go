// Copyright © 2024 The ELPS authors

package printer

import (
	"context"
	"testing"

	"github.com/luthersystems/natvis/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func openGLM(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Open("testdata/glm.yaml")
	require.NoError(t, err)
	return snap
}

func TestGLM(t *testing.T) {
	snap := openGLM(t)
	l := GLM(snap)
	tests := []struct {
		variable string
		want     string
	}{
		{"v3", "dvec3(1, 2, 3)"},
		{"alias", "dvec3(1, 2, 3)"},
		{"ref", "dvec3(1, 2, 3)"},
		{"iv2", "ivec2(7, -1)"},
		{"bv2", "bvec2(true, false)"},
		{"m", "dmat2x3((1, 2, 3), (4, 5, 6))"},
	}
	for _, test := range tests {
		t.Run(test.variable, func(t *testing.T) {
			p := l.Lookup(context.Background(), variable(t, snap, test.variable))
			require.NotNil(t, p)
			s, err := p.ToString()
			require.NoError(t, err)
			assert.Equal(t, test.want, s)
			assert.Equal(t, HintNone, p.DisplayHint())
			assert.False(t, p.Children().Next())
		})
	}
}

func TestGLM_Declines(t *testing.T) {
	snap := openGLM(t)
	core, logs := observer.New(zap.WarnLevel)
	l := GLM(snap, WithLogger(zap.New(core)))

	// Pointers are not glm types.
	assert.Nil(t, l.Lookup(context.Background(), variable(t, snap, "ptr")))
	assert.Zero(t, logs.Len())

	assert.Nil(t, l.Lookup(context.Background(), variable(t, snap, "bad")))
	entries := logs.FilterMessage("printer failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "vec", entries[0].ContextMap()["printer"])
	assert.Contains(t, entries[0].ContextMap()["error"], "found 3 components, want 4")
}

func TestGLMVec_Components(t *testing.T) {
	snap := openGLM(t)
	vec, err := NewGLMVec(snap, variable(t, snap, "v3"))
	require.NoError(t, err)
	assert.Equal(t, "d", vec.Letter)
	require.Len(t, vec.Components, 3)
	for i, c := range vec.Components {
		addr, ok := c.Address()
		require.True(t, ok)
		assert.Equal(t, uint64(0x1000+4*i), addr)
	}

	_, err = NewGLMMat(snap, variable(t, snap, "v3"))
	assert.Error(t, err)
}

func TestComponentLetter(t *testing.T) {
	snap := openGLM(t)
	for name, want := range map[string]string{
		"float":         "d",
		"double":        "d",
		"int":           "i",
		"unsigned char": "i",
		"bool":          "b",
		"void*":         "t",
	} {
		typ, err := snap.LookupType(name)
		require.NoError(t, err)
		assert.Equal(t, want, componentLetter(typ.Kind()), name)
	}
}

func TestRegexpLookup_Add(t *testing.T) {
	l := NewRegexpLookup("test")
	assert.Error(t, l.Add("broken", `(`, nil))
}
