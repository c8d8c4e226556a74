package states

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thedude61636/states-rebuilder/pkg/lifecycle"
	"github.com/thedude61636/states-rebuilder/pkg/store"
)

// Cell is the unit of observable, persistable, mutable state. A cell holds
// one value, its async status, its observers, and optionally a persistence
// binding and a bounded undo history. All mutations to one cell are
// serialized; mutations to different cells are independent.
type Cell[T any] struct {
	name     string
	registry *Registry

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu       sync.Mutex
	value    T
	hasValue bool
	status   Status
	// seq identifies the most recently issued mutation. Settlements carrying
	// an older seq are stale and dropped, which is the supersede guarantee.
	seq uint64

	observers []*subscription[T]
	waiters   []chan struct{}

	undo      *undoStack[T]
	persist   *binding[T]
	keepAlive bool
	disposed  bool

	inflightCancel context.CancelFunc

	// preWait is the settled status the active waiting transition replaced.
	// Async settles compare watch projections against the state that was
	// live before the cell entered Waiting.
	preWait Status

	dependents []dependent
}

// binding ties a cell to its storage key and codec.
type binding[T any] struct {
	store store.Store
	key   string
	codec Codec[T]
}

func (b *binding[T]) write(ctx context.Context, value T) error {
	raw, err := b.codec.Encode(value)
	if err != nil {
		return store.WrapPersist("encode", b.key, err)
	}
	return b.store.Write(ctx, b.key, raw)
}

// rehydrate reads and decodes the persisted payload. Any failure is reported
// through the diagnostic channel and treated as "key absent" so the cell can
// still start from its initializer.
func (b *binding[T]) rehydrate(ctx context.Context, cell string, diag DiagnosticLogger) (T, bool) {
	var zero T
	raw, ok, err := b.store.Read(ctx, b.key)
	if err != nil {
		diag.LogDiagnostic(DiagnosticEvent{Cell: cell, Key: b.key, Op: "rehydrate", Err: err, At: time.Now()})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	value, err := b.codec.Decode(raw)
	if err != nil {
		diag.LogDiagnostic(DiagnosticEvent{
			Cell: cell,
			Key:  b.key,
			Op:   "decode",
			Err:  &DecodeError{Cell: cell, Key: b.key, Err: err},
			At:   time.Now(),
		})
		return zero, false
	}
	return value, true
}

// Upstream is a cell another cell's initializer chains on. The dependent
// cell stays Idle/Waiting until the upstream settles, and settles HasError
// without invoking its own initializer if the upstream errored.
type Upstream interface {
	whenSettled(ctx context.Context) error
}

// CellOption configures a cell at construction.
type CellOption[T any] func(*cellConfig[T])

type cellConfig[T any] struct {
	undoDepth int
	persist   *binding[T]
	keepAlive bool
	upstreams []Upstream
}

// WithUndoDepth enables undo with a bounded history of depth entries. A
// depth of zero leaves undo disabled.
func WithUndoDepth[T any](depth int) CellOption[T] {
	return func(cfg *cellConfig[T]) {
		cfg.undoDepth = depth
	}
}

// WithPersistence binds the cell to key in st using codec. Bound cells are
// rehydrated before their initializer runs and write through on every
// committed mutation.
func WithPersistence[T any](st store.Store, key string, codec Codec[T]) CellOption[T] {
	return func(cfg *cellConfig[T]) {
		if st == nil || key == "" {
			return
		}
		cfg.persist = &binding[T]{store: st, key: key, codec: codec}
	}
}

// WithKeepAlive marks the cell long-lived: it survives its observer count
// dropping to zero and is only torn down explicitly. Persisted cells default
// to keep-alive.
func WithKeepAlive[T any]() CellOption[T] {
	return func(cfg *cellConfig[T]) {
		cfg.keepAlive = true
	}
}

// WithUpstream chains this cell's initializer on up reaching HasData.
func WithUpstream[T any](up Upstream) CellOption[T] {
	return func(cfg *cellConfig[T]) {
		if up != nil {
			cfg.upstreams = append(cfg.upstreams, up)
		}
	}
}

func applyCellOptions[T any](opts []CellOption[T]) cellConfig[T] {
	cfg := cellConfig[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func newCellShell[T any](r *Registry, name string, cfg cellConfig[T]) *Cell[T] {
	ctx, cancel := context.WithCancel(r.baseContext())
	c := &Cell[T]{
		name:       name,
		registry:   r,
		lifeCtx:    ctx,
		lifeCancel: cancel,
		status:     Status{Phase: PhaseIdle},
		undo:       newUndoStack[T](cfg.undoDepth),
		persist:    cfg.persist,
		keepAlive:  cfg.keepAlive || cfg.persist != nil,
	}
	return c
}

// NewCell constructs a cell holding a synchronous initial value. The cell
// starts directly in HasData; when persisted, a stored payload replaces the
// initial value before the cell is visible.
func NewCell[T any](r *Registry, name string, initial T, opts ...CellOption[T]) *Cell[T] {
	cfg := applyCellOptions(opts)
	c := newCellShell(r, name, cfg)
	value := initial
	if c.persist != nil {
		if restored, ok := c.persist.rehydrate(c.lifeCtx, name, c.diag()); ok {
			value = restored
		}
	}
	c.value = value
	c.hasValue = true
	c.status = Status{Phase: PhaseData}
	r.register(c)
	return c
}

// NewFutureCell constructs a cell initialized by a future. The cell starts
// Idle, waits for any upstream cells, rehydrates when persisted, and only
// then runs init. The initializer is never invoked when an upstream settles
// in error or a persisted payload is restored.
func NewFutureCell[T any](r *Registry, name string, init func(ctx context.Context) (T, error), opts ...CellOption[T]) *Cell[T] {
	cfg := applyCellOptions(opts)
	c := newCellShell(r, name, cfg)
	r.register(c)
	go c.runInitializer(cfg.upstreams, func(ctx context.Context) error {
		seq := c.beginWaiting(defaultMutateConfig())
		value, err := safeFuture(ctx, init)
		if err != nil {
			err = &InitError{Cell: name, Err: err}
		}
		return c.commit(seq, value, err, defaultMutateConfig(), lifecycle.VerbMutated)
	})
	return c
}

// NewStreamCell constructs a cell fed by a stream. Each emission settles the
// cell; an erroring element settles HasError while retaining the last
// successful value.
func NewStreamCell[T any](r *Registry, name string, init func(ctx context.Context) (<-chan Result[T], error), opts ...CellOption[T]) *Cell[T] {
	cfg := applyCellOptions(opts)
	c := newCellShell(r, name, cfg)
	r.register(c)
	go c.runInitializer(cfg.upstreams, func(ctx context.Context) error {
		seq := c.beginWaiting(defaultMutateConfig())
		ch, err := init(ctx)
		if err != nil {
			return c.commit(seq, *new(T), &InitError{Cell: name, Err: err}, defaultMutateConfig(), lifecycle.VerbMutated)
		}
		for result := range ch {
			cause := result.Err
			if cause != nil {
				cause = &InitError{Cell: name, Err: cause}
			}
			if err := c.commit(seq, result.Value, cause, defaultMutateConfig(), lifecycle.VerbMutated); errors.Is(err, ErrDisposed) {
				return err
			}
		}
		return nil
	})
	return c
}

// Result carries one stream element: a value or an error, never both.
type Result[T any] struct {
	Value T
	Err   error
}

// runInitializer drives the async construction path: upstream chaining,
// rehydration, then the initializer body.
func (c *Cell[T]) runInitializer(upstreams []Upstream, body func(ctx context.Context) error) {
	ctx := c.lifeCtx
	for _, up := range upstreams {
		if err := up.whenSettled(ctx); err != nil {
			seq := c.nextSeq()
			_ = c.commit(seq, *new(T), &InitError{Cell: c.name, Err: err}, defaultMutateConfig(), lifecycle.VerbFailed)
			return
		}
	}
	if c.persist != nil {
		if restored, ok := c.persist.rehydrate(ctx, c.name, c.diag()); ok {
			seq := c.nextSeq()
			_ = c.commit(seq, restored, nil, defaultMutateConfig(), lifecycle.VerbMutated)
			return
		}
	}
	_ = body(ctx)
}

// Name returns the cell's registry name.
func (c *Cell[T]) Name() string {
	return c.name
}

// Value returns the last settled value. It is the zero value until the cell
// first reaches HasData; after an error the last successful value is
// retained, not overwritten.
func (c *Cell[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// State returns the cell's current status.
func (c *Cell[T]) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// UndoDepth reports the number of undo entries currently held.
func (c *Cell[T]) UndoDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo.len()
}

// WhenReady blocks until the cell settles (HasData or HasError) or ctx is
// done. It returns the settled value, the settling error, or ctx's error.
func (c *Cell[T]) WhenReady(ctx context.Context) (T, error) {
	var zero T
	for {
		c.mu.Lock()
		if c.disposed {
			c.mu.Unlock()
			return zero, ErrDisposed
		}
		switch c.status.Phase {
		case PhaseData:
			value := c.value
			c.mu.Unlock()
			return value, nil
		case PhaseError:
			err := c.status.Err
			c.mu.Unlock()
			return zero, err
		}
		ch := make(chan struct{})
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// whenSettled implements Upstream.
func (c *Cell[T]) whenSettled(ctx context.Context) error {
	_, err := c.WhenReady(ctx)
	return err
}

// Dispose tears the cell down: in-flight work is cancelled, observers are
// dropped, and the registry entry is released. Further mutations return
// ErrDisposed.
func (c *Cell[T]) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	inflight := c.inflightCancel
	c.inflightCancel = nil
	c.observers = nil
	waiters := c.waiters
	c.waiters = nil
	c.dependents = nil
	c.mu.Unlock()

	if inflight != nil {
		inflight()
	}
	c.lifeCancel()
	c.registry.remove(c)
	for _, ch := range waiters {
		close(ch)
	}
	c.emit(lifecycle.BuildDisposedEvent(lifecycle.CellEventInput{
		Cell:  c.name,
		Phase: c.statusPhaseLabel(),
		Key:   c.persistKey(),
	}))
}

func (c *Cell[T]) disposeInternal() {
	c.Dispose()
}

// readAny implements the registry's type-erased read used by expression
// cells, registering c against the active evaluation context.
func (c *Cell[T]) readAny(t *Track) (any, bool) {
	t.record(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

func (c *Cell[T]) nextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *Cell[T]) settleWaiters() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// addDependent registers a computed cell depending on c.
func (c *Cell[T]) addDependent(d dependent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.dependents {
		if existing == d {
			return
		}
	}
	c.dependents = append(c.dependents, d)
}

func (c *Cell[T]) removeDependent(d dependent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.dependents {
		if existing == d {
			c.dependents = append(c.dependents[:i], c.dependents[i+1:]...)
			return
		}
	}
}

// invalidateDependents marks every computed cell depending on c stale. It
// must be called without holding c.mu.
func (c *Cell[T]) invalidateDependents() {
	c.mu.Lock()
	deps := append([]dependent(nil), c.dependents...)
	c.mu.Unlock()
	for _, d := range deps {
		d.markStale()
	}
}

func (c *Cell[T]) diag() DiagnosticLogger {
	return c.registry.diag()
}

func (c *Cell[T]) emit(event lifecycle.Event) {
	hooks := c.registry.lifecycleHooks()
	if !hooks.Enabled() {
		return
	}
	_ = hooks.Notify(c.lifeCtx, event)
}

func (c *Cell[T]) persistKey() string {
	if c.persist == nil {
		return ""
	}
	return c.persist.key
}

func (c *Cell[T]) statusPhaseLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Phase.String()
}
