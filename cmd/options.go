// Copyright © 2024 The ELPS authors

package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/printer"
	"github.com/luthersystems/natvis/snapshot"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Option configures an exported command factory (PrintCommand,
// ConsoleCommand, DAPCommand, PtypeCommand).
type Option func(*cmdConfig)

type cmdConfig struct {
	registry *natvis.Registry
}

// WithRegistry injects a Registry holding an embedder's visualizers. The
// documents named by the visualizers setting are loaded after the
// registry's own rules, so the embedder's rules take precedence.
func WithRegistry(reg *natvis.Registry) Option {
	return func(c *cmdConfig) { c.registry = reg }
}

// session is the state shared by commands that render values.
type session struct {
	logger      *zap.Logger
	reg         *natvis.Registry
	snap        *snapshot.Snapshot
	printerOpts []printer.Option
}

// openSession builds the logger and registry from the settings and opens
// the snapshot. A snapshot is optional unless needSnapshot is set.
func openSession(cfg cmdConfig, needSnapshot bool) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	s := &session{
		logger: logger,
		reg:    cfg.registry,
		printerOpts: []printer.Option{
			printer.WithLogger(logger),
			printer.WithMaxDepth(viper.GetInt("max-depth")),
			printer.WithMaxChildren(viper.GetInt("max-children")),
		},
	}
	if s.reg == nil {
		s.reg = natvis.NewRegistry(natvis.WithLogger(logger))
	}
	for _, r := range s.reg.LoadFiles(viper.GetStringSlice("visualizers")...) {
		if r.OK {
			logger.Debug("loaded visualizer document", zap.String("file", r.Path))
		}
	}

	path := viper.GetString("snapshot")
	if path == "" {
		if needSnapshot {
			return nil, errors.WithHint(errors.New("no snapshot"),
				"pass --snapshot or set snapshot in the config file")
		}
		return s, nil
	}
	s.snap, err = snapshot.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot %s", path)
	}
	return s, nil
}
