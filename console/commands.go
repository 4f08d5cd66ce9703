// Copyright © 2024 The ELPS authors

package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/typeexpr"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pterm/pterm"
)

func (c *Console) doAddNatvis(args string) {
	files, err := shellquote.Split(args)
	if err != nil {
		c.printf("add-natvis: %v\n", err)
		return
	}
	if len(files) == 0 {
		c.printf("Usage: add-natvis FILE...\n")
		return
	}
	for _, r := range c.reg.LoadFiles(files...) {
		if r.OK {
			c.printf("%s", pterm.Success.Sprintfln("loaded %s", r.Path))
		} else {
			c.printf("%s", pterm.Error.Sprintfln("cannot load %s", r.Path))
		}
	}
}

func (c *Console) doPrint(ctx context.Context, expr string) {
	if expr == "" {
		c.printf("Usage: print EXPR\n")
		return
	}
	v, err := c.snap.Evaluate(expr)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	c.values++
	c.printf("$%d = %s\n", c.values, c.formatter.Format(ctx, v))
}

func (c *Console) doLocals(ctx context.Context) {
	vars := c.snap.Variables()
	if len(vars) == 0 {
		c.printf("No locals.\n")
		return
	}
	for _, v := range vars {
		c.printf("%s = %s\n", v.Name, c.formatter.Format(ctx, v.Value))
	}
}

func (c *Console) doInfo(args string) {
	switch args {
	case "natvis":
		rules := c.reg.Rules()
		if len(rules) == 0 {
			c.printf("No visualizers loaded.\n")
			return
		}
		data := pterm.TableData{{"Pattern", "Source", "Display strings", "Items"}}
		for _, r := range rules {
			data = append(data, []string{
				r.Pattern.String(),
				r.Source.String(),
				fmt.Sprint(len(r.DisplayStrings)),
				fmt.Sprint(len(r.Items)),
			})
		}
		c.table(data)
	case "types":
		names := c.snap.TypeNames()
		if len(names) == 0 {
			c.printf("No types.\n")
			return
		}
		data := pterm.TableData{{"Type", "Kind", "Size", "Visualizer"}}
		for _, name := range names {
			t, err := c.snap.LookupType(name)
			if err != nil {
				continue
			}
			vis := ""
			if tn, err := typeexpr.Parse(name); err == nil {
				if r := c.reg.Classify(tn); r != nil {
					vis = r.Pattern.String()
				}
			}
			data = append(data, []string{name, t.Kind().String(), fmt.Sprint(t.Size()), vis})
		}
		c.table(data)
	default:
		c.printf("Usage: info natvis|types\n")
	}
}

func (c *Console) table(data pterm.TableData) {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printf("%s\n", s)
}

func (c *Console) doPtype(name string) {
	if name == "" {
		c.printf("Usage: ptype NAME\n")
		return
	}
	tn, err := typeexpr.Parse(name)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printf("pattern = %s\n", tn)
	WriteTypeTree(c.out, tn, 1)
	if r := c.reg.Classify(tn); r != nil {
		c.printf("visualizer = %s (%s)\n", r.Pattern, r.Source)
	}
	if t, err := c.snap.LookupType(name); err == nil {
		c.printf("type = %s\n", layout(t))
	}
}

// WriteTypeTree prints the parse tree of a type name, one node per line,
// indented two spaces per level starting at depth.
func WriteTypeTree(w io.Writer, t *typeexpr.TypeName, depth int) {
	note := ""
	switch {
	case t.IsWildcard():
		note = " (wildcard)"
	case len(t.Args) == 1:
		note = " (1 argument)"
	case len(t.Args) > 1:
		note = fmt.Sprintf(" (%d arguments)", len(t.Args))
	}
	fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), t.Name, note) //nolint:errcheck // best-effort console output
	for _, arg := range t.Args {
		WriteTypeTree(w, arg, depth+1)
	}
}

// layout describes a type the way the debugger's ptype does.
func layout(t host.Type) string {
	base := host.StripTypedefs(t)
	if base == nil {
		return host.TypeString(t)
	}
	switch base.Kind() {
	case host.KindStruct, host.KindUnion:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s {\n", base.Kind(), base.Name())
		for _, f := range base.Fields() {
			fmt.Fprintf(&sb, "    %s %s; // offset %d\n", host.TypeString(f.Type), f.Name, f.Offset)
		}
		sb.WriteString("}")
		return sb.String()
	case host.KindEnum:
		return "enum " + base.Name()
	}
	if base != t {
		return host.TypeString(base)
	}
	return host.TypeString(t)
}

var commandHelp = []struct {
	usage string
	text  string
}{
	{"add-natvis FILE...", "Load visualizer documents. Every file is loaded even when an earlier one fails; types in earlier documents take precedence."},
	{"print (p) EXPR", "Evaluate an expression in the snapshot and print the result through the loaded visualizers."},
	{"locals", "Print every variable of the snapshot."},
	{"info natvis", "List the loaded visualizer rules in the order they are consulted."},
	{"info types", "List the types declared by the snapshot and the visualizer each one uses."},
	{"ptype NAME", "Show how a type name is parsed and which visualizer matches it."},
	{"help (h)", "Show this help."},
	{"quit (q)", "End the session."},
}

func (c *Console) showHelp() {
	c.printf("Commands:\n")
	for _, h := range commandHelp {
		c.printf("  %s\n", h.usage)
		c.printf("%s\n", indent.String(wordwrap.String(h.text, c.helpWidth), 6))
	}
	c.printf("\nEmpty input repeats the last command.\n")
}
