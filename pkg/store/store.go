package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Store is the persistence port consumed by the engine: a string-keyed,
// string-valued record of cell state. Implementations must be safe for
// concurrent use; the engine orders operations per key, not per store.
type Store interface {
	// Init performs one-time setup. It must be called before any other
	// operation and may fail fatally (bad path, locked file, missing schema).
	Init(ctx context.Context) error
	// Read returns the raw payload for key. ok is false when the key has
	// never been written, which callers must treat as "use the initializer".
	Read(ctx context.Context, key string) (raw string, ok bool, err error)
	Write(ctx context.Context, key, raw string) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
	Close() error
}

// PersistError carries the key and underlying cause of a failed store
// operation. Every backend wraps its failures in one of these so the engine
// can distinguish persistence faults from mutation faults.
type PersistError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s key=%q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WrapPersist normalizes err into a PersistError unless it already is one.
func WrapPersist(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var perr *PersistError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistError{Op: op, Key: key, Err: err}
}

// ErrUnknownDriver indicates Open was asked for a driver no backend
// registered.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Opener builds a Store from a backend-specific path or DSN.
type Opener func(path string) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Opener{}
)

// Register makes a backend available to Open under name. Backends register
// from their package init, database/sql style; registering a duplicate name
// panics because it is a programming error.
func Register(name string, opener Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if opener == nil {
		panic("store: Register opener is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("store: Register called twice for driver " + name)
	}
	drivers[name] = opener
}

// Drivers returns the registered backend names sorted alphabetically.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds a Store using the backend registered under cfg.Driver.
func Open(cfg Config) (Store, error) {
	driversMu.RLock()
	opener := drivers[cfg.Driver]
	driversMu.RUnlock()
	if opener == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, cfg.Driver, Drivers())
	}
	return opener(cfg.Path)
}
