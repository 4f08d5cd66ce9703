// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"os"

	"github.com/luthersystems/natvis/dapserver"
	"github.com/spf13/cobra"
)

// DAPCommand creates the "dap" cobra command.
func DAPCommand(opts ...Option) *cobra.Command {
	var cfg cmdConfig
	for _, o := range opts {
		o(&cfg)
	}

	var (
		port  int
		stdio bool
	)

	cmd := &cobra.Command{
		Use:   "dap [flags]",
		Short: "Serve a snapshot over the Debug Adapter Protocol",
		Long: `Start a DAP (Debug Adapter Protocol) server over a snapshot so that
editors (VS Code, Neovim, Helix, etc.) can browse its variables rendered
through the visualizers.

Transport modes:
  --port N     Listen for a DAP client on TCP port N (default: 4711)
  --stdio      Use stdin/stdout for DAP communication (for editors that
               launch the debug adapter as a child process)

Launch and attach requests may name further documents to load:
  {"visualizers": ["rules.natvis"]}

Examples:
  natvis dap -s prog.yaml                     Serve on TCP port 4711
  natvis dap -s prog.yaml --port 9229         Serve on TCP port 9229
  natvis dap -s prog.yaml --stdio             Serve on stdin/stdout`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			s, err := openSession(cfg, true)
			if err != nil {
				fail(err)
			}
			defer s.logger.Sync() //nolint:errcheck // best-effort flush

			srv := dapserver.New(s.snap, s.reg,
				dapserver.WithLogger(s.logger),
				dapserver.WithPrinterOptions(s.printerOpts...))
			if stdio {
				err = srv.ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
			} else {
				err = srv.ServeTCP(cmd.Context(), fmt.Sprintf("localhost:%d", port))
			}
			if err != nil {
				fail(err)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 4711, "TCP port for the DAP server.")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Use stdin/stdout for DAP communication.")
	return cmd
}

func init() {
	rootCmd.AddCommand(DAPCommand())
}
