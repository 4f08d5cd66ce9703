// Copyright © 2024 The ELPS authors

package printer

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/typeexpr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Span attribute keys.
const (
	AttrType    = attribute.Key("natvis.type")
	AttrPattern = attribute.Key("natvis.pattern")
)

// Dispatcher finds the visualizer rule for a value and wraps the bound
// rule in a NatvisPrinter.
type Dispatcher struct {
	host   host.Host
	reg    *natvis.Registry
	logger *zap.Logger
}

var _ Lookuper = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher rendering values of h with the rules in
// reg. Documents loaded into reg later are seen by subsequent lookups.
func NewDispatcher(h host.Host, reg *natvis.Registry, opts ...Option) *Dispatcher {
	c := newConfig(opts)
	return &Dispatcher{host: h, reg: reg, logger: c.logger}
}

// Lookup returns a printer for v, or nil. Values without an address,
// pointers to pointers, void or null pointers and values that are not ultimately a
// named struct or union are declined. Failures are logged and reported as
// no printer.
func (d *Dispatcher) Lookup(ctx context.Context, v host.Value) (p Printer) {
	ctx, span := contextTracer(ctx).Start(ctx, "printer.Lookup")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("visualizer lookup panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			p = nil
		}
	}()
	np, err := d.lookup(ctx, span, v)
	if err != nil {
		d.logger.Warn("no visualizer", zap.String("type", host.TypeString(v.Type())), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil
	}
	if np == nil {
		return nil
	}
	return np
}

func (d *Dispatcher) lookup(ctx context.Context, span trace.Span, v host.Value) (*NatvisPrinter, error) {
	if _, ok := v.Address(); !ok {
		return nil, nil
	}
	t := host.StripReferenceTypes(v.Type())
	if t == nil || host.IsPointerToPointer(t) || host.IsVoidPointer(t) {
		return nil, nil
	}
	if host.StripTypedefs(v.Type()).Kind() == host.KindPointer {
		if n, err := v.Int(); err == nil && n == 0 {
			return nil, nil
		}
	}
	v, err := host.StripReferences(v)
	if err != nil {
		d.logger.Debug("cannot dereference", zap.String("type", host.TypeString(t)), zap.Error(err))
		return nil, nil
	}
	if v == nil {
		return nil, nil
	}
	basic := host.StripTypedefs(v.Type())
	if basic == nil || basic.Name() == "" || !host.IsRecord(basic) {
		return nil, nil
	}
	span.SetAttributes(AttrType.String(basic.Name()))
	runtime, err := typeexpr.Parse(basic.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "type name %s", basic.Name())
	}
	rule := d.reg.Classify(runtime)
	if rule == nil {
		return nil, nil
	}
	span.SetAttributes(
		AttrPattern.String(rule.Pattern.String()),
		semconv.CodeFilepath(rule.Source.File),
		semconv.CodeLineNumber(rule.Source.Line),
	)
	b, err := natvis.Bind(d.host, v, runtime, rule, natvis.WithBindingLogger(d.logger))
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s", rule.Pattern)
	}
	return &NatvisPrinter{
		binding: b,
		ctx:     ctx,
		logger:  d.logger.With(zap.String("type", runtime.String()), zap.String("pattern", rule.Pattern.String())),
	}, nil
}

// NatvisPrinter renders a value through a visualizer rule.
type NatvisPrinter struct {
	binding *natvis.Binding
	ctx     context.Context
	logger  *zap.Logger
}

var _ Printer = (*NatvisPrinter)(nil)

// Binding returns the rule bound to the printed value.
func (p *NatvisPrinter) Binding() *natvis.Binding {
	return p.binding
}

// ToString returns the display string.
func (p *NatvisPrinter) ToString() (s string, err error) {
	_, span := contextTracer(p.ctx).Start(p.ctx, "natvis.Render",
		trace.WithAttributes(
			AttrType.String(p.binding.Runtime().String()),
			AttrPattern.String(p.binding.Rule().Pattern.String()),
		))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("visualizer panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
			s, err = "", errors.Newf("visualizer panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	s, err = p.binding.DisplayString()
	if err != nil {
		p.logger.Warn("cannot render display string", zap.Error(err))
	}
	return s, err
}

// DisplayHint marks visualized values as expandable.
func (p *NatvisPrinter) DisplayHint() string {
	return HintArray
}

// Children returns the children of the printed value. Like the binding's
// iterator, it cannot be restarted.
func (p *NatvisPrinter) Children() ChildIterator {
	return &safeIter{it: p.binding.Children(), logger: p.logger}
}

// safeIter turns panics in the wrapped iterator into errors.
type safeIter struct {
	it     *natvis.ChildIter
	logger *zap.Logger
	err    error
}

func (s *safeIter) Next() (ok bool) {
	if s.err != nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("visualizer children panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
			s.err = errors.Newf("visualizer panicked: %v", r)
			ok = false
		}
	}()
	ok = s.it.Next()
	if !ok && s.it.Err() != nil {
		s.err = s.it.Err()
		s.logger.Warn("cannot expand children", zap.Error(s.err))
	}
	return ok
}

func (s *safeIter) Child() natvis.Child {
	return s.it.Child()
}

func (s *safeIter) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.it.Err()
}
