// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"os"

	"github.com/luthersystems/natvis/lsp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// LSPCommand creates the "lsp" cobra command.
func LSPCommand() *cobra.Command {
	var (
		stdio bool
		port  int
	)

	cmd := &cobra.Command{
		Use:   "lsp [flags]",
		Short: "Start the visualizer document language server",
		Long: `Start an LSP server for visualizer documents.

The language server checks documents as they are edited and publishes the
problems it finds as diagnostics. It also lists the Type entries of a
document as symbols and shows the normalized pattern of a Type on hover.

Transport modes:
  --stdio      Use stdin/stdout for LSP communication (default)
  --port N     Listen for an LSP client on TCP port N

Examples:
  natvis lsp                           Start with stdio transport
  natvis lsp --stdio                   Same as above (explicit)
  natvis lsp --port 7998               Start with TCP on port 7998

Editor configuration (VS Code):
  Install a generic LSP client extension and configure it to run
  "natvis lsp --stdio" for .natvis files.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger, err := newLogger()
			if err != nil {
				fail(err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			srv := lsp.New(lsp.WithLogger(logger))

			if !stdio && port > 0 {
				addr := fmt.Sprintf("localhost:%d", port)
				logger.Info("LSP server listening", zap.String("address", addr))
				if err := srv.RunTCP(addr); err != nil {
					fmt.Fprintf(os.Stderr, "lsp server error: %v\n", err)
					os.Exit(1)
				}
			} else {
				if err := srv.RunStdio(); err != nil {
					fmt.Fprintf(os.Stderr, "lsp server error: %v\n", err)
					os.Exit(1)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false,
		"Use stdin/stdout for LSP communication (default behavior)")
	cmd.Flags().IntVar(&port, "port", 0,
		"TCP port for LSP server (use instead of --stdio)")

	return cmd
}

func init() {
	rootCmd.AddCommand(LSPCommand())
}
