// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "natvis",
	Short: "Render debugger values through visualizer documents",
	Long: `natvis renders program values through visualizer documents: XML files
that describe, per type, a display string and the children to show when a
value is expanded.

Values come from a snapshot: a YAML or TOML file describing a program's
types, memory and variables.

Getting started:
  natvis print -s prog.yaml --natvis rules.natvis v    Print a variable
  natvis console -s prog.yaml                          Start an interactive console
  natvis check rules.natvis                            Check a visualizer document
  natvis ptype 'Vector<Vector<char>,int>'              Show how a type name parses
  natvis dap -s prog.yaml --port 4711                  Serve a snapshot over DAP
  natvis lsp                                           Start the language server

Configuration:
  Settings are read from $HOME/.natvis.yaml (or --config) and from
  NATVIS_* environment variables, e.g. NATVIS_LOG_LEVEL=debug. Keys:
    visualizers    documents loaded by every command
    snapshot       snapshot file
    log-level      debug, info, warn or error
    log-json       write JSON logs
    max-depth      nesting depth rendered before eliding children
    max-children   children rendered per value
    color          auto, always or never`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.natvis.yaml)")
	flags.StringArray("natvis", nil, "Visualizer document to load (may be repeated).")
	flags.StringP("snapshot", "s", "", "Snapshot file to inspect.")
	flags.String("log-level", "warn", `Log level: "debug", "info", "warn" or "error".`)
	flags.Bool("log-json", false, "Write logs as JSON.")
	flags.Int("max-depth", 8, "Nesting depth rendered before children are elided.")
	flags.Int("max-children", 200, "Children rendered per value.")
	flags.String("color", "auto", `Control colored output: "auto", "always", or "never".`)

	bindFlag("visualizers", "natvis")
	for _, key := range []string{"snapshot", "log-level", "log-json", "max-depth", "max-children", "color"} {
		bindFlag(key, key)
	}
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".natvis" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".natvis")
	}

	viper.SetEnvPrefix("natvis")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
