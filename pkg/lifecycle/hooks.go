package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event describes a cell lifecycle occurrence that can be fanned out to
// hooks: a committed mutation, a waiting transition, a rollback, an undo, or
// a disposal.
type Event struct {
	Verb       string
	Cell       string
	Phase      string
	Tags       []string
	Key        string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// Hook receives normalized lifecycle events. Hooks run after a mutation is
// committed and before observers are told to rebuild, so they are the place
// for side effects like navigation or transient banners.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy Hook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []Hook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify forwards the event to all hooks in order, returning a joined error
// if any fail. It normalizes the event and short-circuits when required
// fields are missing.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.Cell == "" {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims whitespace, clones metadata and tags, and ensures a
// timestamp is present.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.Cell = strings.TrimSpace(event.Cell)
	normalized.Phase = strings.TrimSpace(event.Phase)
	normalized.Key = strings.TrimSpace(event.Key)
	normalized.Metadata = cloneMap(event.Metadata)
	if len(event.Tags) > 0 {
		normalized.Tags = append([]string{}, event.Tags...)
	} else {
		normalized.Tags = nil
	}
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
