// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/luthersystems/natvis/diagnostic"
	"github.com/luthersystems/natvis/natvis"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

type checkOptions struct {
	json     bool
	excludes []string
	watch    bool
}

// CheckCommand creates the "check" cobra command.
func CheckCommand() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check [flags] [files...]",
		Short: "Report problems in visualizer documents",
		Long: `Load visualizer documents the way the engine does and report every
problem found: malformed XML, invalid type names, unknown format specifiers
and entries that will be ignored.

With no files, reads a document from stdin. A file argument ending in "/..."
checks every .natvis file under that directory.

Exit codes:
  0  No errors found (warnings may have been reported)
  1  One or more errors were reported
  2  Bad invocation (invalid flags, unreadable files)

Examples:
  natvis check rules.natvis                        # Check a single document
  natvis check --json rules.natvis                 # Output problems as JSON
  natvis check ./...                               # Check every document
  natvis check --exclude='vendor' ./...            # Exclude a directory
  natvis check --watch ./...                       # Re-check on every save
  cat rules.natvis | natvis check                  # Check from stdin`,
		Run: func(cmd *cobra.Command, args []string) {
			r := newRenderer()
			if len(args) == 0 {
				if opts.watch {
					fmt.Fprintln(os.Stderr, "natvis check: --watch needs file arguments") //nolint:errcheck // best-effort CLI output
					os.Exit(2)
				}
				os.Exit(report(os.Stdout, os.Stderr, r, natvis.Check("<stdin>", cmd.InOrStdin()), 1, opts.json))
			}

			paths, err := expandArgs(args, opts.excludes)
			if err != nil {
				fmt.Fprintln(os.Stderr, err) //nolint:errcheck // best-effort CLI output
				os.Exit(2)
			}
			if !opts.watch {
				os.Exit(runCheck(os.Stdout, os.Stderr, r, paths, opts.json))
			}

			logger, err := newLogger()
			if err != nil {
				fail(err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			err = watch(cmd.Context(), logger, paths, func() {
				runCheck(os.Stdout, os.Stderr, r, paths, opts.json)
			})
			if err != nil {
				fail(err)
			}
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output problems as JSON.")
	cmd.Flags().StringArrayVar(&opts.excludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")
	cmd.Flags().BoolVar(&opts.watch, "watch", false,
		"Re-check the documents whenever one of them changes.")
	return cmd
}

// runCheck checks every path and reports the problems. It returns the
// process exit code.
func runCheck(w, errw io.Writer, r *diagnostic.Renderer, paths []string, asJSON bool) int {
	var problems []natvis.Problem
	for _, path := range paths {
		f, err := os.Open(path) //nolint:gosec // CLI tool reads user-specified files
		if err != nil {
			fmt.Fprintln(errw, err) //nolint:errcheck // best-effort CLI output
			return 2
		}
		problems = append(problems, natvis.Check(path, f)...)
		f.Close() //nolint:errcheck,gosec // read-only file
	}
	return report(w, errw, r, problems, len(paths), asJSON)
}

// jsonProblem is the --json form of a natvis.Problem.
type jsonProblem struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Type     string `json:"type,omitempty"`
}

func report(w, errw io.Writer, r *diagnostic.Renderer, problems []natvis.Problem, files int, asJSON bool) int {
	diags := diagnostic.FromProblems(problems)
	errs, warnings := diagnostic.Count(diags)
	code := 0
	if errs > 0 {
		code = 1
	}

	if asJSON {
		out := make([]jsonProblem, 0, len(problems))
		for _, p := range problems {
			out = append(out, jsonProblem{
				File:     p.Pos.File,
				Line:     p.Pos.Line,
				Col:      p.Pos.Col,
				Severity: p.Severity.String(),
				Message:  p.Msg,
				Type:     p.Type,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintln(errw, err) //nolint:errcheck // best-effort CLI output
			return 2
		}
		return code
	}

	if err := r.RenderAll(errw, diags); err != nil {
		fmt.Fprintln(errw, err) //nolint:errcheck // best-effort CLI output
		return 2
	}
	fmt.Fprintln(errw, summary(errs, warnings, files)) //nolint:errcheck // best-effort CLI output
	return code
}

func summary(errs, warnings, files int) string {
	text := fmt.Sprintf("%s, %s in %s",
		plural(errs, "error"), plural(warnings, "warning"), plural(files, "document"))
	switch {
	case errs > 0:
		return pterm.Red(text)
	case warnings > 0:
		return pterm.Yellow(text)
	default:
		return pterm.Green(text)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// watch calls run once, then again after every burst of changes to any of
// paths, until ctx is done. Directories are watched rather than files so
// that editors which save by renaming are seen.
func watch(ctx context.Context, logger *zap.Logger, paths []string, run func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	defer w.Close() //nolint:errcheck // watcher teardown

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrapf(err, "watch %s", p)
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return errors.Wrapf(err, "watch %s", dir)
		}
		dirs[dir] = true
	}

	// Reruns are delivered to this goroutine so that run never overlaps
	// itself; a burst that lands while run is busy queues a single rerun.
	rerun := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	run()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rerun:
			run()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			logger.Debug("visualizer document changed",
				zap.String("file", event.Name),
				zap.Stringer("op", event.Op))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func init() {
	rootCmd.AddCommand(CheckCommand())
}
