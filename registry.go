package states

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thedude61636/states-rebuilder/pkg/lifecycle"
)

// anyCell is the type-erased view the registry keeps of its cells.
type anyCell interface {
	Name() string
	disposeInternal()
	readAny(t *Track) (any, bool)
}

// Registry owns named cells: the "inject once, read anywhere" surface
// without ambient global state. Construction and teardown are explicit; the
// registry is passed by reference to whatever needs it.
type Registry struct {
	mu    sync.RWMutex
	cells map[string]anyCell

	ctx    context.Context
	cancel context.CancelFunc

	logger   DiagnosticLogger
	hooks    lifecycle.Hooks
	traceRec func(Trace)
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithDiagnosticLogger routes engine diagnostics (decode failures, dropped
// stale resolutions) to logger.
func WithDiagnosticLogger(logger DiagnosticLogger) RegistryOption {
	return func(r *Registry) {
		if logger == nil {
			r.logger = noopDiagnosticLogger{}
			return
		}
		r.logger = logger
	}
}

// WithLifecycleHooks attaches ordered side-effect hooks invoked by the
// mutation pipeline after commit and after rebuild.
func WithLifecycleHooks(hooks ...lifecycle.Hook) RegistryOption {
	return func(r *Registry) {
		for _, hook := range hooks {
			if hook != nil {
				r.hooks = append(r.hooks, hook)
			}
		}
	}
}

// WithLifecycleEmitter routes pipeline events through emitter so its channel
// defaults are applied before the hooks run.
func WithLifecycleEmitter(emitter *lifecycle.Emitter) RegistryOption {
	return func(r *Registry) {
		if emitter == nil || !emitter.Enabled() {
			return
		}
		r.hooks = append(r.hooks, lifecycle.HookFunc(emitter.Emit))
	}
}

// WithTraceRecorder receives a provenance record for every settled mutation.
func WithTraceRecorder(recorder func(Trace)) RegistryOption {
	return func(r *Registry) {
		r.traceRec = recorder
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cells:  map[string]anyCell{},
		ctx:    ctx,
		cancel: cancel,
		logger: noopDiagnosticLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Teardown disposes every registered cell and cancels any in-flight work.
func (r *Registry) Teardown() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cells := make([]anyCell, 0, len(r.cells))
	for _, cell := range r.cells {
		cells = append(cells, cell)
	}
	r.cells = map[string]anyCell{}
	r.mu.Unlock()

	for _, cell := range cells {
		cell.disposeInternal()
	}
	r.cancel()
}

// Names returns the registered cell names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cells))
	for name := range r.cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupCell retrieves a registered cell by name. The second return is false
// when the name is unknown or bound to a cell of a different value type.
func LookupCell[T any](r *Registry, name string) (*Cell[T], bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	entry := r.cells[name]
	r.mu.RUnlock()
	cell, ok := entry.(*Cell[T])
	return cell, ok
}

// register adds cell under its name. Re-registration disposes the previous
// holder and is reported as a diagnostic since it usually signals a missing
// Teardown.
func (r *Registry) register(cell anyCell) {
	if r == nil || cell == nil {
		return
	}
	r.mu.Lock()
	previous := r.cells[cell.Name()]
	r.cells[cell.Name()] = cell
	r.mu.Unlock()

	if previous != nil {
		r.diag().LogDiagnostic(DiagnosticEvent{
			Cell: cell.Name(),
			Op:   "reregister",
			At:   time.Now(),
		})
		previous.disposeInternal()
	}
}

// remove drops cell from the registry if it is still the registered holder.
func (r *Registry) remove(cell anyCell) {
	if r == nil || cell == nil {
		return
	}
	r.mu.Lock()
	if r.cells[cell.Name()] == cell {
		delete(r.cells, cell.Name())
	}
	r.mu.Unlock()
}

// readAnyCell reads the named cell's value registering it against t, for
// expression-backed computed cells.
func (r *Registry) readAnyCell(name string, t *Track) (any, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	cell := r.cells[name]
	r.mu.RUnlock()
	if cell == nil {
		return nil, false
	}
	return cell.readAny(t)
}

func (r *Registry) baseContext() context.Context {
	if r == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Registry) diag() DiagnosticLogger {
	if r == nil || r.logger == nil {
		return noopDiagnosticLogger{}
	}
	return r.logger
}

func (r *Registry) lifecycleHooks() lifecycle.Hooks {
	if r == nil {
		return nil
	}
	return r.hooks
}

func (r *Registry) traceRecorder() func(Trace) {
	if r == nil {
		return nil
	}
	return r.traceRec
}
