package states

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/thedude61636/states-rebuilder/internal/snapshot"
	"github.com/thedude61636/states-rebuilder/pkg/lifecycle"
)

// MutateOption configures a single trip through the mutation pipeline.
type MutateOption func(*mutateConfig)

type mutateConfig struct {
	tags       []string
	watch      func(any) any
	catchError bool
	skipUndo   bool
	onSetState func(Status)
	onRebuild  func()
}

// WithTags restricts notification delivery to observers whose tag filter
// intersects tags. An untagged mutation notifies every observer.
func WithTags(tags ...string) MutateOption {
	return func(cfg *mutateConfig) {
		cfg.tags = append(cfg.tags, tags...)
	}
}

// WithWatch installs a projection over the old and new value. When the
// projected values are equal the mutation is skipped entirely: no status
// change, no persistence, no notification. The projection must produce a
// comparable value; non-comparable projections are treated as changed and
// reported through diagnostics.
func WithWatch(projection func(any) any) MutateOption {
	return func(cfg *mutateConfig) {
		cfg.watch = projection
	}
}

// WithCatchError suppresses propagation of a mutator failure to the caller
// even when no observer registered an error handler. The failure is still
// recorded in the cell's status.
func WithCatchError(catch bool) MutateOption {
	return func(cfg *mutateConfig) {
		cfg.catchError = catch
	}
}

// WithoutUndo skips the undo push for this mutation.
func WithoutUndo() MutateOption {
	return func(cfg *mutateConfig) {
		cfg.skipUndo = true
	}
}

// WithOnSetState runs fn after the state is committed but before observers
// are told to rebuild. Intended for effects like navigation or a transient
// message.
func WithOnSetState(fn func(Status)) MutateOption {
	return func(cfg *mutateConfig) {
		cfg.onSetState = fn
	}
}

// WithOnRebuildState runs fn after notification delivery completes.
func WithOnRebuildState(fn func()) MutateOption {
	return func(cfg *mutateConfig) {
		cfg.onRebuild = fn
	}
}

func applyMutateOptions(opts []MutateOption) *mutateConfig {
	cfg := &mutateConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

func defaultMutateConfig() *mutateConfig {
	return &mutateConfig{catchError: true}
}

// Set replaces the cell's value synchronously.
func (c *Cell[T]) Set(value T, opts ...MutateOption) error {
	cfg := applyMutateOptions(opts)
	return c.commit(c.nextSeq(), value, nil, cfg, lifecycle.VerbMutated)
}

// Update applies a synchronous mutator to a deep copy of the held value, so
// in-place writes through slices, maps, or pointers never reach the live
// value before the commit. A returned error or a panic settles the cell
// HasError while retaining the last successful value.
func (c *Cell[T]) Update(fn func(*T) error, opts ...MutateOption) error {
	cfg := applyMutateOptions(opts)
	c.mu.Lock()
	current := snapshot.Clone(c.value)
	c.mu.Unlock()
	seq := c.nextSeq()
	next, err := safeMutate(&current, fn)
	if err != nil {
		err = wrapMutation(c.name, err)
	}
	return c.commit(seq, next, err, cfg, lifecycle.VerbMutated)
}

// SetFuture evaluates fn off the caller's goroutine. The cell transitions to
// Waiting immediately; the future's outcome settles it. A newer mutation
// issued while the future is in flight supersedes it: the stale resolution
// is discarded and its context cancelled.
func (c *Cell[T]) SetFuture(fn func(ctx context.Context) (T, error), opts ...MutateOption) {
	cfg := applyMutateOptions(opts)
	seq, ctx := c.beginInflight(cfg)
	go func() {
		value, err := safeFuture(ctx, fn)
		if err != nil {
			err = wrapMutation(c.name, err)
		}
		_ = c.commit(seq, value, err, cfg, lifecycle.VerbMutated)
	}()
}

// SetStream consumes the channel produced by fn, settling the cell on every
// element. The stream is cancelled when superseded by a newer mutation or
// when the cell is disposed.
func (c *Cell[T]) SetStream(fn func(ctx context.Context) <-chan Result[T], opts ...MutateOption) {
	cfg := applyMutateOptions(opts)
	seq, ctx := c.beginInflight(cfg)
	go func() {
		for result := range fn(ctx) {
			cause := result.Err
			if cause != nil {
				cause = wrapMutation(c.name, cause)
			}
			if err := c.commit(seq, result.Value, cause, cfg, lifecycle.VerbMutated); errors.Is(err, ErrDisposed) {
				return
			}
		}
	}()
}

// Undo pops the most recent undo entry and restores it through the normal
// pipeline, including the write-through of the restored value for persisted
// cells.
func (c *Cell[T]) Undo(opts ...MutateOption) error {
	cfg := applyMutateOptions(opts)
	cfg.skipUndo = true
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.undo == nil {
		c.mu.Unlock()
		return ErrUndoDisabled
	}
	entry, ok := c.undo.pop()
	if !ok {
		c.mu.Unlock()
		return ErrUndoEmpty
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	return c.commit(seq, entry.value, nil, cfg, lifecycle.VerbUndone)
}

// CanUndo reports whether undo history is available.
func (c *Cell[T]) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo.len() > 0
}

// beginInflight issues a new mutation sequence, cancels any prior in-flight
// evaluation, transitions the cell to Waiting, and notifies opted-in
// observers of the waiting transition.
func (c *Cell[T]) beginInflight(cfg *mutateConfig) (uint64, context.Context) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	if c.inflightCancel != nil {
		c.inflightCancel()
	}
	ctx, cancel := context.WithCancel(c.lifeCtx)
	c.inflightCancel = cancel
	if c.status.Phase != PhaseWaiting {
		c.preWait = c.status
	}
	c.status = Status{Phase: PhaseWaiting}
	subs := append([]*subscription[T](nil), c.observers...)
	value := c.value
	c.mu.Unlock()

	c.emit(lifecycle.BuildWaitingEvent(lifecycle.CellEventInput{
		Cell:  c.name,
		Phase: PhaseWaiting.String(),
		Tags:  cfg.tags,
		Key:   c.persistKey(),
	}))
	c.deliver(subs, cfg, Status{Phase: PhaseWaiting}, value)
	return seq, ctx
}

// beginWaiting is beginInflight for initializers, which are cancelled via
// the cell's own lifetime rather than a per-mutation context.
func (c *Cell[T]) beginWaiting(cfg *mutateConfig) uint64 {
	seq, _ := c.beginInflight(cfg)
	return seq
}

// commit runs the tail of the mutation pipeline for the settlement of
// mutation seq: supersede check, watch de-duplication, undo push, status
// transition, write-through persistence with automatic rollback, hook
// invocation, notification, and dependent invalidation.
func (c *Cell[T]) commit(seq uint64, next T, cause error, cfg *mutateConfig, verb string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if seq < c.seq {
		c.mu.Unlock()
		c.diag().LogDiagnostic(DiagnosticEvent{Cell: c.name, Op: "supersede", Err: cause, At: time.Now()})
		return nil
	}

	prevValue := c.value
	prevStatus := c.status
	hadValue := c.hasValue

	if cause == nil && cfg.watch != nil && hadValue {
		baseline := prevStatus
		if baseline.Phase == PhaseWaiting {
			baseline = c.preWait
		}
		if baseline.Phase == PhaseData && c.projectionsEqual(cfg.watch(any(prevValue)), cfg.watch(any(next))) {
			if prevStatus.Phase == PhaseWaiting {
				c.status = baseline
			}
			c.mu.Unlock()
			c.settleWaiters()
			return nil
		}
	}

	pushed := false
	if cause == nil && c.undo != nil && !cfg.skipUndo && hadValue {
		c.undo.push(prevValue, prevStatus)
		pushed = true
	}

	if cause != nil {
		c.status = Status{Phase: PhaseError, Err: cause}
	} else {
		c.value = next
		c.hasValue = true
		c.status = Status{Phase: PhaseData}
	}
	persist := c.persist
	c.mu.Unlock()

	persisted := false
	rolledBack := false
	if cause == nil && persist != nil {
		if err := persist.write(c.lifeCtx, next); err != nil {
			c.mu.Lock()
			if seq == c.seq && !c.disposed {
				if pushed {
					c.undo.pop()
				}
				c.value = prevValue
				c.hasValue = hadValue
				c.status = Status{Phase: PhaseError, Err: err}
				cause = err
				rolledBack = true
			}
			c.mu.Unlock()
		} else {
			persisted = true
		}
	}

	c.mu.Lock()
	if seq != c.seq || c.disposed {
		c.mu.Unlock()
		return nil
	}
	settled := c.status
	value := c.value
	subs := append([]*subscription[T](nil), c.observers...)
	c.mu.Unlock()

	switch {
	case rolledBack:
		verb = lifecycle.VerbRollback
	case settled.Phase == PhaseError && verb == lifecycle.VerbMutated:
		verb = lifecycle.VerbFailed
	}

	if cfg.onSetState != nil {
		cfg.onSetState(settled)
	}
	c.emit(lifecycle.BuildEvent(verb, lifecycle.CellEventInput{
		Cell:  c.name,
		Phase: settled.Phase.String(),
		Tags:  cfg.tags,
		Key:   c.persistKey(),
		Err:   settled.Err,
	}))

	c.deliver(subs, cfg, settled, value)

	if cfg.onRebuild != nil {
		cfg.onRebuild()
	}
	c.emit(lifecycle.BuildRebuiltEvent(lifecycle.CellEventInput{
		Cell:  c.name,
		Phase: settled.Phase.String(),
		Tags:  cfg.tags,
	}))

	c.settleWaiters()
	c.invalidateDependents()
	c.recordTrace(seq, verb, settled, persisted, rolledBack)

	if settled.Phase == PhaseError && !cfg.catchError && !hasErrorObserver(subs) {
		return settled.Err
	}
	return nil
}

func (c *Cell[T]) projectionsEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		c.diag().LogDiagnostic(DiagnosticEvent{
			Cell: c.name,
			Op:   "watch",
			Err:  fmt.Errorf("states: watch projection is not comparable"),
			At:   time.Now(),
		})
		return false
	}
	return a == b
}

func (c *Cell[T]) recordTrace(seq uint64, verb string, settled Status, persisted, rolledBack bool) {
	recorder := c.registry.traceRecorder()
	if recorder == nil {
		return
	}
	step := TraceStep{
		Phase:      settled.Phase.String(),
		At:         time.Now(),
		Persisted:  persisted,
		RolledBack: rolledBack,
	}
	if settled.Err != nil {
		step.Err = settled.Err.Error()
	}
	recorder(Trace{
		Cell:  c.name,
		Seq:   seq,
		Verb:  verb,
		Steps: []TraceStep{step},
	})
}

// safeMutate runs a sync mutator recovering panics into errors.
func safeMutate[T any](value *T, fn func(*T) error) (result T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("mutator panic: %v", recovered)
		}
	}()
	if fn == nil {
		return *value, nil
	}
	if callErr := fn(value); callErr != nil {
		return *value, callErr
	}
	return *value, nil
}

// safeFuture runs a future mutator recovering panics into errors.
func safeFuture[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("future panic: %v", recovered)
		}
	}()
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}
