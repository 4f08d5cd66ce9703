// Copyright © 2024 The ELPS authors

// Package printer turns debugger values into pretty-printers. A Printer
// renders one value; a Lookuper decides whether it has a Printer for a value.
// The Dispatcher serves the loaded visualizer documents, the GLM lookups
// serve glm vector and matrix types, and a Collection consults several
// lookups in order.
package printer

import (
	"context"

	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/natvis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextTracerKey looks up the tracer name from a context key.
const ContextTracerKey = "natvisTracer"

const defaultTracerName = "natvis"

// DisplayHint values.
const (
	HintNone  = ""
	HintArray = "array"
)

// Printer renders a single value.
type Printer interface {
	ToString() (string, error)
	// DisplayHint tells the front end how to present the children.
	DisplayHint() string
	Children() ChildIterator
}

// ChildIterator is a lazy, non-restartable sequence of children.
type ChildIterator interface {
	Next() bool
	Child() natvis.Child
	Err() error
}

// Lookuper finds a Printer for a value. Lookup returns nil when it has no
// printer for v.
type Lookuper interface {
	Lookup(ctx context.Context, v host.Value) Printer
}

// Option configures the types in this package.
type Option func(*config)

type config struct {
	logger      *zap.Logger
	maxDepth    int
	maxChildren int
}

// WithLogger sets the logger for recovered failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxDepth limits how deeply a Formatter descends into nested values.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		c.maxDepth = n
	}
}

// WithMaxChildren limits the number of children a Formatter prints for one
// value.
func WithMaxChildren(n int) Option {
	return func(c *config) {
		c.maxChildren = n
	}
}

const (
	DefaultMaxDepth    = 8
	DefaultMaxChildren = 200
)

func newConfig(opts []Option) config {
	c := config{
		logger:      zap.NewNop(),
		maxDepth:    DefaultMaxDepth,
		maxChildren: DefaultMaxChildren,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func contextTracer(ctx context.Context) trace.Tracer {
	tracerName, ok := ctx.Value(ContextTracerKey).(string)
	if !ok {
		tracerName = defaultTracerName
	}
	return otel.GetTracerProvider().Tracer(tracerName)
}

type noChildren struct{}

func (noChildren) Next() bool          { return false }
func (noChildren) Child() natvis.Child { return natvis.Child{} }
func (noChildren) Err() error          { return nil }
