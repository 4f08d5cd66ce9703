// Copyright © 2024 The ELPS authors

// Package console provides an interactive command line for inspecting a
// program snapshot through the loaded visualizers.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ergochat/readline"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/printer"
	"github.com/luthersystems/natvis/snapshot"
	"go.uber.org/zap"
)

// Prompt is the console prompt.
const Prompt = "(natvis) "

// Option configures a Console.
type Option func(*Console)

// WithStdin sets the reader for console input. This is primarily useful for
// testing, where a pipe replaces the terminal.
func WithStdin(r io.ReadCloser) Option {
	return func(c *Console) {
		c.stdin = r
	}
}

// WithOutput sets the writer for prompts and command output.
func WithOutput(w io.Writer) Option {
	return func(c *Console) {
		c.out = w
	}
}

// WithHistoryFile sets the readline history file. An empty path disables
// history.
func WithHistoryFile(path string) Option {
	return func(c *Console) {
		c.history = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// WithPrinterOptions configures the printers and the value formatter.
func WithPrinterOptions(opts ...printer.Option) Option {
	return func(c *Console) {
		c.printerOpts = append(c.printerOpts, opts...)
	}
}

// WithHelpWidth sets the column at which help text is wrapped.
func WithHelpWidth(n int) Option {
	return func(c *Console) {
		c.helpWidth = n
	}
}

// Console holds the state of an interactive session.
type Console struct {
	snap        *snapshot.Snapshot
	reg         *natvis.Registry
	printers    *printer.Collection
	formatter   *printer.Formatter
	printerOpts []printer.Option
	stdin       io.ReadCloser
	out         io.Writer
	history     string
	helpWidth   int
	logger      *zap.Logger

	lastCmd string
	values  int
}

// New returns a console over snap whose printers use the rules in reg.
func New(snap *snapshot.Snapshot, reg *natvis.Registry, opts ...Option) *Console {
	c := &Console{
		snap:      snap,
		reg:       reg,
		out:       os.Stderr,
		history:   historyPath(),
		helpWidth: 72,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	popts := append([]printer.Option{printer.WithLogger(c.logger)}, c.printerOpts...)
	c.printers = printer.NewDefault(snap, reg, popts...)
	c.formatter = printer.NewFormatter(c.printers, popts...)
	return c
}

// Run reads and executes commands until quit or end of input.
func (c *Console) Run(ctx context.Context) error {
	cfg := &readline.Config{
		Prompt:            Prompt,
		Stdout:            c.out,
		Stderr:            c.out,
		HistoryFile:       c.history,
		HistorySearchFold: true,
		AutoComplete:      &completer{c: c},
	}
	if c.stdin != nil {
		cfg.Stdin = c.stdin
	}
	ensureHistoryFilePermissions(c.history)
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return errors.Wrap(err, "readline")
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	for {
		line, err := rl.ReadSlice()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read command")
		}
		if c.Execute(ctx, string(line)) {
			return nil
		}
	}
}

// Execute runs one command line. It reports whether the session should end.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	// Empty input repeats the last command.
	if line == "" {
		line = c.lastCmd
		if line == "" {
			return false
		}
	}
	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	c.lastCmd = line
	switch cmd {
	case "add-natvis":
		// Loading is not repeated by an empty line.
		c.lastCmd = ""
		c.doAddNatvis(args)
	case "print", "p":
		c.doPrint(ctx, args)
	case "locals":
		c.doLocals(ctx)
	case "info":
		c.doInfo(args)
	case "ptype":
		c.doPtype(args)
	case "help", "h":
		c.showHelp()
	case "quit", "q":
		return true
	default:
		c.lastCmd = ""
		c.printf("Undefined command: %q. Try \"help\".\n", cmd)
	}
	return false
}

func (c *Console) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, format, a...) //nolint:errcheck // best-effort console output
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".natvis_history")
}

// ensureHistoryFilePermissions creates the history file if needed and
// restricts it to the owner; it may contain expressions naming program
// data.
func ensureHistoryFilePermissions(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600) //nolint:gosec // user's own history file
	if err != nil {
		return
	}
	_ = f.Close()
	_ = os.Chmod(path, 0600)
}
