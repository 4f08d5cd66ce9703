// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"

	"github.com/luthersystems/natvis/docs"
	"github.com/spf13/cobra"
)

// GuideCommand creates the "guide" cobra command.
func GuideCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "guide",
		Short: "Print the visualizer document reference",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), docs.Guide) //nolint:errcheck // best-effort CLI output
		},
	}
}

func init() {
	rootCmd.AddCommand(GuideCommand())
}
