package lifecycle

import "time"

// Lifecycle verbs emitted by the mutation pipeline.
const (
	VerbWaiting  = "cell.waiting"
	VerbMutated  = "cell.mutated"
	VerbFailed   = "cell.failed"
	VerbRollback = "cell.rolled_back"
	VerbUndone   = "cell.undone"
	VerbRebuilt  = "cell.rebuilt"
	VerbDisposed = "cell.disposed"
)

// CellEventInput describes the common fields for cell lifecycle events.
type CellEventInput struct {
	Cell       string
	Phase      string
	Tags       []string
	Key        string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildWaitingEvent constructs an event for a cell entering Waiting.
func BuildWaitingEvent(input CellEventInput) Event {
	return buildCellEvent(VerbWaiting, input)
}

// BuildMutatedEvent constructs an event for a committed mutation.
func BuildMutatedEvent(input CellEventInput) Event {
	return buildCellEvent(VerbMutated, input)
}

// BuildFailedEvent constructs an event for a mutation that settled in error.
func BuildFailedEvent(input CellEventInput) Event {
	return buildCellEvent(VerbFailed, input)
}

// BuildRollbackEvent constructs an event for an automatic rollback after a
// persistence failure.
func BuildRollbackEvent(input CellEventInput) Event {
	return buildCellEvent(VerbRollback, input)
}

// BuildUndoneEvent constructs an event for a manual undo.
func BuildUndoneEvent(input CellEventInput) Event {
	return buildCellEvent(VerbUndone, input)
}

// BuildRebuiltEvent constructs an event fired after observer delivery
// completes.
func BuildRebuiltEvent(input CellEventInput) Event {
	return buildCellEvent(VerbRebuilt, input)
}

// BuildDisposedEvent constructs an event for a disposed cell.
func BuildDisposedEvent(input CellEventInput) Event {
	return buildCellEvent(VerbDisposed, input)
}

// BuildEvent constructs a normalized event under an explicit verb, for
// callers that select the verb dynamically.
func BuildEvent(verb string, input CellEventInput) Event {
	return buildCellEvent(verb, input)
}

func buildCellEvent(verb string, input CellEventInput) Event {
	return NormalizeEvent(Event{
		Verb:       verb,
		Cell:       input.Cell,
		Phase:      input.Phase,
		Tags:       input.Tags,
		Key:        input.Key,
		Err:        input.Err,
		Metadata:   input.Metadata,
		OccurredAt: input.OccurredAt,
	})
}
