package states

import (
	"fmt"
	"sync"
)

// Pool maps item identity to its own cell instance: one shared definition
// instantiated per key, created on first access and disposed when the
// owning scope releases it. This replaces widget-scoped overriding of a
// template cell per list item.
type Pool[K comparable, T any] struct {
	registry *Registry
	prefix   string
	build    func(key K) *Cell[T]

	mu    sync.Mutex
	cells map[K]*Cell[T]
}

// NewPool constructs a pool whose cells are built by build on first access.
// When build is nil, cells are created through NewCell with the zero value,
// named "<prefix>/<key>".
func NewPool[K comparable, T any](r *Registry, prefix string, build func(key K) *Cell[T]) *Pool[K, T] {
	p := &Pool[K, T]{
		registry: r,
		prefix:   prefix,
		build:    build,
		cells:    map[K]*Cell[T]{},
	}
	if p.build == nil {
		p.build = func(key K) *Cell[T] {
			var zero T
			return NewCell(r, fmt.Sprintf("%s/%v", prefix, key), zero, WithKeepAlive[T]())
		}
	}
	return p
}

// Get returns the cell owned by key, creating it on first access.
func (p *Pool[K, T]) Get(key K) *Cell[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cell, ok := p.cells[key]; ok {
		return cell
	}
	cell := p.build(key)
	p.cells[key] = cell
	return cell
}

// Release disposes and forgets the cell owned by key.
func (p *Pool[K, T]) Release(key K) {
	p.mu.Lock()
	cell := p.cells[key]
	delete(p.cells, key)
	p.mu.Unlock()
	if cell != nil {
		cell.Dispose()
	}
}

// ReleaseAll disposes every pooled cell.
func (p *Pool[K, T]) ReleaseAll() {
	p.mu.Lock()
	cells := make([]*Cell[T], 0, len(p.cells))
	for _, cell := range p.cells {
		cells = append(cells, cell)
	}
	p.cells = map[K]*Cell[T]{}
	p.mu.Unlock()
	for _, cell := range cells {
		cell.Dispose()
	}
}

// Len reports the number of live pooled cells.
func (p *Pool[K, T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cells)
}
