// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"os"

	"github.com/luthersystems/natvis/console"
	"github.com/spf13/cobra"
)

// ConsoleCommand creates the "console" cobra command.
func ConsoleCommand(opts ...Option) *cobra.Command {
	var cfg cmdConfig
	for _, o := range opts {
		o(&cfg)
	}

	var history string

	cmd := &cobra.Command{
		Use:   "console [flags]",
		Short: "Start an interactive console over a snapshot",
		Long: `Start an interactive console for inspecting a snapshot.

Line editing, completion and command history are supported via readline.
Use Ctrl-D or "quit" to exit; an empty line repeats the last command.

Example session:
  (natvis) add-natvis rules.natvis
  loaded rules.natvis
  (natvis) print v
  $1 = size=3 {[size] = 3, [0] = 10, [1] = 20, [2] = 30}
  (natvis) ptype Vector<int>
  ...`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			s, err := openSession(cfg, true)
			if err != nil {
				fail(err)
			}
			defer s.logger.Sync() //nolint:errcheck // best-effort flush

			copts := []console.Option{
				console.WithLogger(s.logger),
				console.WithPrinterOptions(s.printerOpts...),
			}
			if cmd.Flags().Changed("history") {
				copts = append(copts, console.WithHistoryFile(history))
			}
			c := console.New(s.snap, s.reg, copts...)
			fmt.Fprintln(os.Stderr, `Type "help" for a list of commands.`) //nolint:errcheck // best-effort CLI output
			if err := c.Run(cmd.Context()); err != nil {
				fail(err)
			}
		},
	}

	cmd.Flags().StringVar(&history, "history", "",
		`History file (default is $HOME/.natvis_history; "" disables history).`)
	return cmd
}

func init() {
	rootCmd.AddCommand(ConsoleCommand())
}
