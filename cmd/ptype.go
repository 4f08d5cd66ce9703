// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/luthersystems/natvis/console"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/typeexpr"
	"github.com/spf13/cobra"
)

// PtypeCommand creates the "ptype" cobra command.
func PtypeCommand(opts ...Option) *cobra.Command {
	var cfg cmdConfig
	for _, o := range opts {
		o(&cfg)
	}

	return &cobra.Command{
		Use:   "ptype [flags] NAME",
		Short: "Show how a type name parses and which visualizer matches it",
		Long: `Parse a type name the way visualizer patterns and runtime types are
parsed, print its normalized form and parse tree, and name the first loaded
visualizer whose pattern matches it.

Examples:
  natvis ptype 'Vector<Vector<char>,int>'
  natvis ptype --natvis rules.natvis 'std::map<int, Foo>'`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			s, err := openSession(cfg, false)
			if err != nil {
				fail(err)
			}
			defer s.logger.Sync() //nolint:errcheck // best-effort flush
			if err := runPtype(os.Stdout, s.reg, args[0]); err != nil {
				fail(err)
			}
		},
	}
}

func runPtype(w io.Writer, reg *natvis.Registry, name string) error {
	tn, err := typeexpr.Parse(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pattern = %s\n", tn) //nolint:errcheck // best-effort CLI output
	console.WriteTypeTree(w, tn, 1)
	if r := reg.Classify(tn); r != nil {
		fmt.Fprintf(w, "visualizer = %s (%s)\n", r.Pattern, r.Source) //nolint:errcheck // best-effort CLI output
	} else {
		fmt.Fprintln(w, "visualizer = none") //nolint:errcheck // best-effort CLI output
	}
	return nil
}

func init() {
	rootCmd.AddCommand(PtypeCommand())
}
