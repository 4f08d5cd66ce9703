// Copyright © 2024 The ELPS authors

package dapserver

import (
	"fmt"
	"sync"

	"github.com/google/go-dap"
	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/printer"
	"go.uber.org/zap"
)

// varStore maps variables references to the values they expand. A
// snapshot never changes, so references stay valid for the whole session.
type varStore struct {
	mu   sync.Mutex
	next int
	refs map[int]host.Value
}

func newVarStore(base int) *varStore {
	return &varStore{next: base, refs: make(map[int]host.Value)}
}

func (s *varStore) alloc(v host.Value) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.refs[s.next] = v
	return s.next
}

func (s *varStore) get(ref int) (host.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.refs[ref]
	return v, ok
}

func (h *handler) globals() []dap.Variable {
	vars := h.server.snap.Variables()
	result := make([]dap.Variable, len(vars))
	for i, v := range vars {
		result[i] = h.variable(v.Name, v.Value)
		result[i].EvaluateName = v.Name
	}
	return result
}

// variable describes v. A value with a visualizer shows its display string
// and expands to the visualizer's children; other values show their plain
// rendering and expand to their fields or elements.
func (h *handler) variable(name string, v host.Value) dap.Variable {
	dv := dap.Variable{Name: name, Type: host.TypeString(v.Type())}
	if p := h.server.printers.Lookup(h.ctx, v); p != nil {
		s, err := p.ToString()
		if err != nil {
			dv.Value = h.server.formatter.Format(h.ctx, v)
			return dv
		}
		dv.Value = s
		if hasChildren(p) {
			dv.VariablesReference = h.vars.alloc(v)
		}
		return dv
	}
	dv.Value = h.server.formatter.Format(h.ctx, v)
	t := host.StripTypedefs(v.Type())
	if t == nil {
		return dv
	}
	switch t.Kind() {
	case host.KindStruct, host.KindUnion:
		if len(t.Fields()) > 0 {
			dv.VariablesReference = h.vars.alloc(v)
			dv.NamedVariables = len(t.Fields())
		}
	case host.KindArray:
		if t.Len() > 0 {
			dv.VariablesReference = h.vars.alloc(v)
			dv.IndexedVariables = t.Len()
		}
	}
	return dv
}

// hasChildren reports whether p produces any child besides its display
// string.
func hasChildren(p printer.Printer) bool {
	it := p.Children()
	for it.Next() {
		if c := it.Child(); c.Value != nil || c.Name != natvis.DisplayStringLabel {
			return true
		}
	}
	return false
}

func (h *handler) children(v host.Value) []dap.Variable {
	if p := h.server.printers.Lookup(h.ctx, v); p != nil {
		return h.printerChildren(p)
	}
	t := host.StripTypedefs(v.Type())
	if t == nil {
		return nil
	}
	var vars []dap.Variable
	switch t.Kind() {
	case host.KindStruct, host.KindUnion:
		for _, f := range t.Fields() {
			fv, err := v.Field(f.Name)
			if err != nil {
				vars = append(vars, dap.Variable{Name: f.Name, Value: errorText(err)})
				continue
			}
			vars = append(vars, h.variable(f.Name, fv))
		}
	case host.KindArray:
		n := t.Len()
		if n > printer.DefaultMaxChildren {
			n = printer.DefaultMaxChildren
		}
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("[%d]", i)
			ev, err := v.Index(i)
			if err != nil {
				vars = append(vars, dap.Variable{Name: name, Value: errorText(err)})
				break
			}
			vars = append(vars, h.variable(name, ev))
		}
	}
	return vars
}

func (h *handler) printerChildren(p printer.Printer) []dap.Variable {
	var vars []dap.Variable
	it := p.Children()
	for it.Next() {
		if len(vars) >= printer.DefaultMaxChildren {
			break
		}
		c := it.Child()
		switch {
		case c.Value == nil && c.Name == natvis.DisplayStringLabel:
			continue
		case c.Value == nil || c.Text != "":
			vars = append(vars, dap.Variable{Name: c.Name, Value: c.Text})
		default:
			vars = append(vars, h.variable(c.Name, c.Value))
		}
	}
	if err := it.Err(); err != nil {
		h.logger.Debug("children stopped early", zap.Error(err))
		vars = append(vars, dap.Variable{Name: "<error>", Value: err.Error()})
	}
	return vars
}

func errorText(err error) string {
	return fmt.Sprintf("<error: %v>", err)
}
