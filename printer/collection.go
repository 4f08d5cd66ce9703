// Copyright © 2024 The ELPS authors

package printer

import (
	"context"
	"sync"

	"github.com/luthersystems/natvis/host"
	"github.com/luthersystems/natvis/natvis"
)

// Collection consults lookups in the order they were added and returns the
// first printer found.
type Collection struct {
	mu      sync.RWMutex
	lookups []Lookuper
}

var _ Lookuper = (*Collection)(nil)

// NewCollection returns a collection of lookups.
func NewCollection(lookups ...Lookuper) *Collection {
	return &Collection{lookups: lookups}
}

// NewDefault returns the GLM printers followed by the visualizer
// dispatcher for reg.
func NewDefault(h host.Host, reg *natvis.Registry, opts ...Option) *Collection {
	return NewCollection(GLM(h, opts...), NewDispatcher(h, reg, opts...))
}

// Append adds l after the existing lookups.
func (c *Collection) Append(l Lookuper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups = append(c.lookups, l)
}

// Lookup implements Lookuper.
func (c *Collection) Lookup(ctx context.Context, v host.Value) Printer {
	c.mu.RLock()
	lookups := c.lookups
	c.mu.RUnlock()
	for _, l := range lookups {
		if p := l.Lookup(ctx, v); p != nil {
			return p
		}
	}
	return nil
}
