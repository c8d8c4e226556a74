package states

import (
	"fmt"
	"sync"

	"github.com/thedude61636/states-rebuilder/pkg/lifecycle"
)

// dependent is a computed cell registered against one of its dependencies.
type dependent interface {
	markStale()
}

// depSource is a cell a computed evaluation can depend on.
type depSource interface {
	addDependent(d dependent)
	removeDependent(d dependent)
}

// Track is the evaluation context a compute function threads through its
// reads. Every cell read via Read/ReadComputed registers itself as a
// dependency of the evaluation in progress, so dependencies are
// re-discovered on every recomputation and conditional reads work.
type Track struct {
	deps []depSource
}

func (t *Track) record(d depSource) {
	if t == nil || d == nil {
		return
	}
	for _, existing := range t.deps {
		if existing == d {
			return
		}
	}
	t.deps = append(t.deps, d)
}

// Read returns c's current value and registers c as a dependency of the
// evaluation owning t.
func Read[T any](t *Track, c *Cell[T]) T {
	t.record(c)
	return c.Value()
}

// ReadComputed reads a computed cell inside another computation,
// registering it as a dependency.
func ReadComputed[T any](t *Track, c *Computed[T]) T {
	t.record(c.cell)
	return c.Value()
}

// Computed is a cell whose value derives from other cells. Its compute
// function runs lazily on first read, the result is memoized, and a
// dependency committing a new settle invalidates the cache. When the
// computed cell is observed, recomputation happens inside the dependency's
// notification cascade so observers never see a stale value.
type Computed[T any] struct {
	cell *Cell[T]
	fn   func(*Track) (T, error)

	mu    sync.Mutex
	valid bool
	deps  []depSource
}

// NewComputed constructs a computed cell. Computed cells are keep-alive:
// the registry owns their teardown.
func NewComputed[T any](r *Registry, name string, fn func(t *Track) (T, error), opts ...CellOption[T]) *Computed[T] {
	cfg := applyCellOptions(opts)
	cfg.keepAlive = true
	shell := newCellShell(r, name, cfg)
	c := &Computed[T]{
		cell: shell,
		fn:   fn,
	}
	r.register(shell)
	return c
}

// Name returns the computed cell's registry name.
func (c *Computed[T]) Name() string {
	return c.cell.Name()
}

// Value returns the derived value, recomputing only when a dependency has
// settled since the last computation.
func (c *Computed[T]) Value() T {
	c.lock()
	if c.valid {
		c.unlock()
		return c.cell.Value()
	}
	c.refreshLocked()
	return c.cell.Value()
}

// State returns the computed cell's status, forcing an initial computation
// if none happened yet.
func (c *Computed[T]) State() Status {
	c.lock()
	if !c.valid {
		c.refreshLocked()
	} else {
		c.unlock()
	}
	return c.cell.State()
}

// Subscribe registers an observer on the computed cell, forcing an initial
// computation so the first delivery is never stale.
func (c *Computed[T]) Subscribe(obs Observer[T]) func() {
	c.lock()
	if !c.valid {
		c.refreshLocked()
	} else {
		c.unlock()
	}
	return c.cell.Subscribe(obs)
}

// Dispose tears down the computed cell and deregisters it from its
// dependencies.
func (c *Computed[T]) Dispose() {
	c.lock()
	for _, d := range c.deps {
		d.removeDependent(c)
	}
	c.deps = nil
	c.valid = false
	c.unlock()
	c.cell.Dispose()
}

// markStale implements dependent. Unobserved computed cells defer the
// recomputation to the next read; observed ones recompute immediately so
// the cascade delivers fresh data.
func (c *Computed[T]) markStale() {
	c.lock()
	c.valid = false
	observed := c.cell.ObserverCount() > 0
	if observed && !c.cell.State().IsIdle() {
		c.refreshLocked()
		return
	}
	c.unlock()
	// Dependents go stale with us even though our own recomputation is
	// deferred, so computed-of-computed chains never serve a stale memo.
	c.cell.invalidateDependents()
}

// refreshLocked recomputes the value, re-discovers dependencies, and
// commits the result through the cell pipeline. The computed lock is held
// on entry and released before the commit so observers can read back into
// the cell without deadlocking.
func (c *Computed[T]) refreshLocked() {
	for _, d := range c.deps {
		d.removeDependent(c)
	}
	t := &Track{}
	value, err := c.safeCompute(t)
	c.deps = t.deps
	for _, d := range c.deps {
		d.addDependent(c)
	}
	c.valid = true
	c.unlock()

	if err != nil {
		err = &MutationError{Cell: c.cell.Name(), Err: err}
	}
	_ = c.cell.commit(c.cell.nextSeq(), value, err, defaultMutateConfig(), lifecycle.VerbMutated)
}

func (c *Computed[T]) safeCompute(t *Track) (result T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("compute panic: %v", recovered)
		}
	}()
	if c.fn == nil {
		var zero T
		return zero, fmt.Errorf("compute function is nil")
	}
	return c.fn(t)
}

func (c *Computed[T]) lock()   { c.mu.Lock() }
func (c *Computed[T]) unlock() { c.mu.Unlock() }
