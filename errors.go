package states

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed indicates an operation on a cell that has been torn down.
	ErrDisposed = errors.New("states: cell disposed")
	// ErrUndoDisabled indicates Undo was called on a cell created without an
	// undo depth.
	ErrUndoDisabled = errors.New("states: undo disabled for cell")
	// ErrUndoEmpty indicates Undo was called with no history to restore.
	ErrUndoEmpty = errors.New("states: undo history empty")
)

// InitError wraps a failure of a cell's initializer, including an upstream
// cell settling in error before the initializer ran.
type InitError struct {
	Cell string
	Err  error
}

func (e *InitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("states: init cell=%q: %v", e.Cell, e.Err)
}

func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MutationError wraps a failure raised by a mutator: a panicking sync
// mutator, a rejecting future, or an erroring stream element.
type MutationError struct {
	Cell string
	Err  error
}

func (e *MutationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("states: mutate cell=%q: %v", e.Cell, e.Err)
}

func (e *MutationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DecodeError wraps a failure to decode a persisted payload during
// rehydration. The engine reports it through the diagnostic channel and
// falls back to the initializer; the cell still starts.
type DecodeError struct {
	Cell string
	Key  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("states: decode cell=%q key=%q: %v", e.Cell, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapMutation(cell string, err error) error {
	if err == nil {
		return nil
	}
	var merr *MutationError
	if errors.As(err, &merr) {
		return err
	}
	var ierr *InitError
	if errors.As(err, &ierr) {
		return err
	}
	return &MutationError{Cell: cell, Err: err}
}
