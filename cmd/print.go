// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/luthersystems/natvis/printer"
	"github.com/spf13/cobra"
)

// PrintCommand creates the "print" cobra command.
func PrintCommand(opts ...Option) *cobra.Command {
	var cfg cmdConfig
	for _, o := range opts {
		o(&cfg)
	}

	return &cobra.Command{
		Use:   "print [flags] EXPR...",
		Short: "Print snapshot expressions through the visualizers",
		Long: `Evaluate each expression in the snapshot and print the result, rendered
through the loaded visualizers. Values without a visualizer are printed
field by field.

Exit codes:
  0  Every expression was printed
  1  An expression could not be evaluated, or the session could not start

Examples:
  natvis print -s prog.yaml v                         Print a variable
  natvis print -s prog.yaml --natvis rules.natvis v p Print two variables
  natvis print -s prog.yaml 'v.Data[1]' '*pp'         Print expressions`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openSession(cfg, true)
			if err != nil {
				fail(err)
			}
			defer s.logger.Sync() //nolint:errcheck // best-effort flush
			if !runPrint(cmd.Context(), os.Stdout, os.Stderr, s, args) {
				os.Exit(1)
			}
		},
	}
}

// runPrint prints each expression to w and evaluation errors to errw. It
// reports whether every expression was printed.
func runPrint(ctx context.Context, w, errw io.Writer, s *session, exprs []string) bool {
	f := printer.NewFormatter(printer.NewDefault(s.snap, s.reg, s.printerOpts...), s.printerOpts...)
	ok := true
	for _, expr := range exprs {
		v, err := s.snap.Evaluate(expr)
		if err != nil {
			fmt.Fprintf(errw, "%s: %v\n", expr, err) //nolint:errcheck // best-effort CLI output
			ok = false
			continue
		}
		fmt.Fprintf(w, "%s = %s\n", expr, f.Format(ctx, v)) //nolint:errcheck // best-effort CLI output
	}
	return ok
}

// fail prints err with its hints and exits.
func fail(err error) {
	fmt.Fprintln(os.Stderr, errorText(err)) //nolint:errcheck // best-effort CLI output
	os.Exit(1)
}

func init() {
	rootCmd.AddCommand(PrintCommand())
}
