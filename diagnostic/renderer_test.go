// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/natvis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRenderer returns a Renderer with colors disabled and a fake source
// reader.
func testRenderer(sources map[string]string) *Renderer {
	return &Renderer{
		Color: ColorNever,
		SourceReader: func(name string) ([]byte, error) {
			s, ok := sources[name]
			if !ok {
				return nil, errors.Newf("not found: %s", name)
			}
			return []byte(s), nil
		},
	}
}

const doc = `<AutoVisualizer xmlns="http://schemas.microsoft.com/vstudio/debugger/natvis/2010">
  <Type>
    <DisplayString>x</DisplayString>
  </Type>
  <Type Name="Bar">
    <DisplayString>{x,zz}</DisplayString>
  </Type>
</AutoVisualizer>
`

func TestRenderProblems(t *testing.T) {
	r := testRenderer(map[string]string{"doc.natvis": doc})
	diags := FromProblems(natvis.Check("doc.natvis", strings.NewReader(doc)))
	require.Len(t, diags, 2)

	var buf bytes.Buffer
	require.NoError(t, r.RenderAll(&buf, diags))
	got := buf.String()

	assert.Contains(t, got, "error: Type has no Name attribute\n  --> doc.natvis:2:3\n")
	assert.Contains(t, got, " 2 |    <Type>\n   |    ^^^^^\n")
	assert.Contains(t, got, "warning: unknown format specifier zz")
	assert.Contains(t, got, "= note: in Type Bar")
	assert.Len(t, strings.Split(got, "\n\n"), 2)

	errs, warnings := Count(diags)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, warnings)
}

func TestRenderNoSource(t *testing.T) {
	r := testRenderer(nil)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, Diagnostic{
		Severity: SeverityError,
		Message:  "some error",
		Spans:    []Span{{File: "<stdin>", Line: 5, Col: 3}},
	}))
	got := buf.String()
	assert.Contains(t, got, "error: some error")
	assert.Contains(t, got, "--> <stdin>:5:3")
	assert.Contains(t, got, "|")
	assert.NotContains(t, got, "^")
}

func TestRenderAutoDetectEndCol(t *testing.T) {
	r := testRenderer(map[string]string{"a.natvis": `<Type Name="Foo&lt;&gt;"/>`})
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, Diagnostic{
		Severity: SeverityWarning,
		Message:  "suspicious name",
		Spans:    []Span{{File: "a.natvis", Line: 1, Col: 13, Label: "here"}},
	}))
	assert.Contains(t, buf.String(), "  "+strings.Repeat(" ", 12)+strings.Repeat("^", 11)+" here\n")
}

func TestRenderWideGutter(t *testing.T) {
	src := strings.Repeat("\n", 11) + "\t<Item>x</Item>\r\n"
	r := testRenderer(map[string]string{"long.natvis": src})
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, Diagnostic{
		Severity: SeverityError,
		Message:  "bad item",
		Spans:    []Span{{File: "long.natvis", Line: 12, Col: 2}},
	}))
	assert.Equal(t, "error: bad item\n"+
		"  --> long.natvis:12:2\n"+
		"    |\n"+
		" 12 |      <Item>x</Item>\n"+
		"    |      ^\n"+
		"    |\n", buf.String())
}

func TestSpanLocation(t *testing.T) {
	assert.Equal(t, "a.natvis", Span{File: "a.natvis"}.location())
	assert.Equal(t, "a.natvis:3", Span{File: "a.natvis", Line: 3}.location())
	assert.Equal(t, "a.natvis:3:7", Span{File: "a.natvis", Line: 3, Col: 7}.location())
}

func TestRenderNoSpans(t *testing.T) {
	r := testRenderer(nil)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, FromProblem(natvis.Problem{Msg: "cannot read document"})))
	got := buf.String()
	assert.Equal(t, "error: cannot read document\n", got)
}

func TestRenderColor(t *testing.T) {
	r := testRenderer(nil)
	r.Color = ColorAlways
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, Diagnostic{Severity: SeverityWarning, Message: "m"}))
	assert.Contains(t, buf.String(), "\033[33m")

	for s, want := range map[string]ColorMode{"": ColorAuto, "always": ColorAlways, "never": ColorNever} {
		mode, ok := ParseColorMode(s)
		assert.True(t, ok)
		assert.Equal(t, want, mode)
	}
	_, ok := ParseColorMode("sometimes")
	assert.False(t, ok)
}
