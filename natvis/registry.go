// Copyright © 2024 The ELPS authors

// Package natvis loads visualizer documents and applies them to values.
//
// A visualizer document is an XML file with an AutoVisualizer root holding
// Type entries. Each Type names a (possibly generic, possibly wildcarded)
// type pattern, display string templates and the children to show when the
// value is expanded:
//
//	<AutoVisualizer xmlns="http://schemas.microsoft.com/vstudio/debugger/natvis/2010">
//	  <Type Name="Vector&lt;*&gt;">
//	    <DisplayString>size={Count}</DisplayString>
//	    <Expand>
//	      <ArrayItems>
//	        <Size>Count</Size>
//	        <ValuePointer>Data</ValuePointer>
//	      </ArrayItems>
//	    </Expand>
//	  </Type>
//	</AutoVisualizer>
//
// A Registry holds the rules of every loaded document in load order and
// classifies runtime types against them. A Binding evaluates one rule for
// one value through a host.Host.
package natvis

import (
	"io"
	"os"
	"sync"

	"github.com/luthersystems/natvis/typeexpr"
	"go.uber.org/zap"
)

// Registry is an ordered collection of visualizer rules. The first rule
// loaded wins when several match. It is safe for concurrent use.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	rules []*Rule
	// byName indexes rules by the top-level name of their pattern; wild
	// holds the positions of patterns that are a bare wildcard. Both list
	// positions in ascending order.
	byName map[string][]int
	wild   []int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger that receives load diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: zap.NewNop(),
		byName: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads a visualizer document from src and appends its rules. name
// identifies the document in diagnostics. Load returns false, registering
// nothing, when the document is not a visualizer document. Type entries
// that cannot be used are logged and skipped.
func (r *Registry) Load(name string, src io.Reader) bool {
	doc, err := readDocument(name, src)
	if err != nil {
		pos := Position{File: name}
		if doc != nil {
			pos = doc.syntaxPosition(err)
		}
		r.logger.Error("invalid visualizer document",
			zap.String("file", name),
			zap.Int("line", pos.Line),
			zap.Error(err))
		return false
	}
	rules, problems, ok := compile(doc)
	for _, p := range problems {
		fields := []zap.Field{
			zap.String("file", name),
			zap.Int("line", p.Pos.Line),
			zap.Int("column", p.Pos.Col),
		}
		if p.Type != "" {
			fields = append(fields, zap.String("type", p.Type))
		}
		if p.Severity == SeverityError {
			r.logger.Error(p.Msg, fields...)
		} else {
			r.logger.Warn(p.Msg, fields...)
		}
	}
	if !ok {
		r.logger.Error("not a visualizer document", zap.String("file", name))
		return false
	}
	r.add(rules)
	r.logger.Debug("loaded visualizers",
		zap.String("file", name),
		zap.Int("rules", len(rules)))
	return true
}

func (r *Registry) add(rules []*Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range rules {
		i := len(r.rules)
		r.rules = append(r.rules, rule)
		if rule.Pattern.IsWildcard() {
			r.wild = append(r.wild, i)
		} else {
			r.byName[rule.Pattern.Name] = append(r.byName[rule.Pattern.Name], i)
		}
	}
}

// LoadFile loads the visualizer document at path.
func (r *Registry) LoadFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		r.logger.Error("cannot open visualizer document",
			zap.String("file", path),
			zap.Error(err))
		return false
	}
	defer f.Close() //nolint:errcheck // read-only
	return r.Load(path, f)
}

// LoadResult reports the outcome of loading one file.
type LoadResult struct {
	Path string
	OK   bool
}

// LoadFiles loads every path in order. A failure does not stop the
// remaining files from loading.
func (r *Registry) LoadFiles(paths ...string) []LoadResult {
	results := make([]LoadResult, len(paths))
	for i, path := range paths {
		results[i] = LoadResult{Path: path, OK: r.LoadFile(path)}
	}
	return results
}

// Classify returns the first rule, in load order, whose pattern matches
// runtime, or nil.
func (r *Registry) Classify(runtime *typeexpr.TypeName) *Rule {
	if runtime == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	named, wild := r.byName[runtime.Name], r.wild
	// Merge the two ascending lists so precedence follows load order.
	for len(named) > 0 || len(wild) > 0 {
		var i int
		if len(wild) == 0 || (len(named) > 0 && named[0] < wild[0]) {
			i, named = named[0], named[1:]
		} else {
			i, wild = wild[0], wild[1:]
		}
		if typeexpr.Match(r.rules[i].Pattern, runtime) {
			return r.rules[i]
		}
	}
	return nil
}

// Rules returns the registered rules in load order.
func (r *Registry) Rules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]*Rule, len(r.rules))
	copy(rules, r.rules)
	return rules
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
