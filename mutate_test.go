package states

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thedude61636/states-rebuilder/pkg/store"
)

type player struct {
	Score int
	Noise int
}

func TestWatchSkipsMutationWhenProjectionUnchanged(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "player", player{Score: 3, Noise: 1})
	notified := 0
	unsubscribe := cell.Subscribe(Observer[player]{
		OnData: func(player) { notified++ },
	})
	defer unsubscribe()

	score := func(v any) any { return v.(player).Score }

	if err := cell.Set(player{Score: 3, Noise: 2}, WithWatch(score)); err != nil {
		t.Fatalf("unexpected error from watched Set: %v", err)
	}
	if notified != 0 {
		t.Fatalf("expected unchanged projection to skip notification, got %d", notified)
	}
	if got := cell.Value().Noise; got != 1 {
		t.Fatalf("expected skipped mutation to leave the value untouched, got noise %d", got)
	}

	if err := cell.Set(player{Score: 4, Noise: 2}, WithWatch(score)); err != nil {
		t.Fatalf("unexpected error from watched Set: %v", err)
	}
	if notified != 1 {
		t.Fatalf("expected changed projection to notify once, got %d", notified)
	}
	if got := cell.Value().Score; got != 4 {
		t.Fatalf("expected committed score 4, got %d", got)
	}
}

func TestWatchSkipsUnchangedProjectionOnFutureSettle(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "player", player{Score: 3, Noise: 1})
	notified := 0
	unsubscribe := cell.Subscribe(Observer[player]{
		OnData: func(player) { notified++ },
	})
	defer unsubscribe()

	score := func(v any) any { return v.(player).Score }

	cell.SetFuture(func(context.Context) (player, error) {
		return player{Score: 3, Noise: 2}, nil
	}, WithWatch(score))
	value, err := cell.WhenReady(waitCtx(t))
	if err != nil {
		t.Fatalf("unexpected error from WhenReady: %v", err)
	}
	if value.Noise != 1 {
		t.Fatalf("expected skipped settle to leave the value untouched, got noise %d", value.Noise)
	}
	if state := cell.State(); !state.HasData() {
		t.Fatalf("expected cell to leave Waiting after the skipped settle, got %s", state)
	}
	if notified != 0 {
		t.Fatalf("expected unchanged projection on future settle to skip notification, got %d", notified)
	}

	cell.SetFuture(func(context.Context) (player, error) {
		return player{Score: 4, Noise: 2}, nil
	}, WithWatch(score))
	if value, err := cell.WhenReady(waitCtx(t)); err != nil || value.Score != 4 {
		t.Fatalf("expected changed projection to commit, got value=%+v err=%v", value, err)
	}
	if notified != 1 {
		t.Fatalf("expected changed projection to notify once, got %d", notified)
	}
}

func TestWatchNonComparableProjectionTreatedAsChanged(t *testing.T) {
	diag := newRecordingDiagnostics("watch")
	registry := NewRegistry(WithDiagnosticLogger(diag))
	defer registry.Teardown()

	cell := NewCell(registry, "items", []int{1})
	notified := 0
	unsubscribe := cell.Subscribe(Observer[[]int]{
		OnData: func([]int) { notified++ },
	})
	defer unsubscribe()

	identity := func(v any) any { return v }
	if err := cell.Set([]int{1}, WithWatch(identity)); err != nil {
		t.Fatalf("unexpected error from watched Set: %v", err)
	}
	if notified != 1 {
		t.Fatalf("expected non-comparable projection to be treated as changed")
	}
	if diag.count("watch") == 0 {
		t.Fatalf("expected a diagnostic for the non-comparable projection")
	}
}

func TestTaggedMutationReachesOnlyMatchingObservers(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "doc", "v1")
	var plain, editor, viewer int
	releasePlain := cell.Subscribe(Observer[string]{
		OnData: func(string) { plain++ },
	})
	defer releasePlain()
	releaseEditor := cell.Subscribe(Observer[string]{
		Tags:   []string{"editor"},
		OnData: func(string) { editor++ },
	})
	defer releaseEditor()
	releaseViewer := cell.Subscribe(Observer[string]{
		Tags:   []string{"viewer"},
		OnData: func(string) { viewer++ },
	})
	defer releaseViewer()

	if err := cell.Set("v2", WithTags("editor")); err != nil {
		t.Fatalf("unexpected error from tagged Set: %v", err)
	}
	if plain != 0 || editor != 1 || viewer != 0 {
		t.Fatalf("expected only the editor observer, got plain=%d editor=%d viewer=%d", plain, editor, viewer)
	}

	if err := cell.Set("v3"); err != nil {
		t.Fatalf("unexpected error from untagged Set: %v", err)
	}
	if plain != 1 || editor != 2 || viewer != 1 {
		t.Fatalf("expected untagged mutation to reach everyone, got plain=%d editor=%d viewer=%d", plain, editor, viewer)
	}
}

func TestErrorPropagationSuppressedByErrorObserver(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 0)
	caught := make([]error, 0, 1)
	unsubscribe := cell.Subscribe(Observer[int]{
		OnError: func(err error) { caught = append(caught, err) },
	})
	defer unsubscribe()

	err := cell.Update(func(*int) error { return errors.New("boom") })
	if err != nil {
		t.Fatalf("expected error handled by observer not to propagate, got %v", err)
	}
	if len(caught) != 1 {
		t.Fatalf("expected OnError to receive the failure, got %d deliveries", len(caught))
	}
}

func TestErrorPropagationSuppressedByCatchError(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 0)
	err := cell.Update(func(*int) error { return errors.New("boom") }, WithCatchError(true))
	if err != nil {
		t.Fatalf("expected WithCatchError to swallow propagation, got %v", err)
	}
	if state := cell.State(); !state.HasError() {
		t.Fatalf("expected status to still record the failure, got %s", state)
	}
}

func TestOnSetStateRunsBeforeOnRebuildState(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 0)
	order := []string{}
	unsubscribe := cell.Subscribe(Observer[int]{
		OnData: func(int) { order = append(order, "observer") },
	})
	defer unsubscribe()

	err := cell.Set(1,
		WithOnSetState(func(status Status) {
			if !status.HasData() {
				t.Fatalf("expected committed status in OnSetState, got %s", status)
			}
			order = append(order, "set_state")
		}),
		WithOnRebuildState(func() {
			order = append(order, "rebuild")
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	want := []string{"set_state", "observer", "rebuild"}
	if len(order) != len(want) {
		t.Fatalf("expected callback order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected callback order %v, got %v", want, order)
		}
	}
}

func TestUndoRestoresPreviousValues(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 1, WithUndoDepth[int](10))
	_ = cell.Set(2)
	_ = cell.Set(3)

	if !cell.CanUndo() {
		t.Fatalf("expected undo history after two mutations")
	}
	if err := cell.Undo(); err != nil {
		t.Fatalf("unexpected error from Undo: %v", err)
	}
	if got := cell.Value(); got != 2 {
		t.Fatalf("expected 2 after first undo, got %d", got)
	}
	if err := cell.Undo(); err != nil {
		t.Fatalf("unexpected error from Undo: %v", err)
	}
	if got := cell.Value(); got != 1 {
		t.Fatalf("expected 1 after second undo, got %d", got)
	}
	if err := cell.Undo(); !errors.Is(err, ErrUndoEmpty) {
		t.Fatalf("expected ErrUndoEmpty once history is drained, got %v", err)
	}
}

func TestUndoRestoresValueBeforeInPlaceMutation(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "items", []int{1}, WithUndoDepth[[]int](10))
	err := cell.Update(func(items *[]int) error {
		(*items)[0] = 2
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error from Update: %v", err)
	}
	if got := cell.Value()[0]; got != 2 {
		t.Fatalf("expected committed element 2, got %d", got)
	}
	if err := cell.Undo(); err != nil {
		t.Fatalf("unexpected error from Undo: %v", err)
	}
	if got := cell.Value()[0]; got != 1 {
		t.Fatalf("expected undo to restore the element written in place, got %d", got)
	}
}

func TestUndoDisabledWithoutDepth(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 1)
	_ = cell.Set(2)
	if cell.CanUndo() {
		t.Fatalf("expected no undo history without WithUndoDepth")
	}
	if err := cell.Undo(); !errors.Is(err, ErrUndoDisabled) {
		t.Fatalf("expected ErrUndoDisabled, got %v", err)
	}
}

func TestUndoDepthEvictsOldestEntries(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 0, WithUndoDepth[int](2))
	for i := 1; i <= 5; i++ {
		_ = cell.Set(i)
	}
	if got := cell.UndoDepth(); got != 2 {
		t.Fatalf("expected bounded history of 2, got %d", got)
	}
	_ = cell.Undo()
	_ = cell.Undo()
	if got := cell.Value(); got != 3 {
		t.Fatalf("expected oldest retained snapshot 3, got %d", got)
	}
}

func TestFailedMutationDoesNotPushUndo(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 1, WithUndoDepth[int](10))
	_ = cell.Update(func(*int) error { return errors.New("boom") }, WithCatchError(true))
	if got := cell.UndoDepth(); got != 0 {
		t.Fatalf("expected failed mutation to skip the undo push, got depth %d", got)
	}
}

func TestPersistFailureRollsBackAndReportsError(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	writeErr := errors.New("disk full")
	cell := NewCell(registry, "counter", 1,
		WithPersistence[int](&failingStore{writeErr: writeErr}, "counter", JSONCodec[int]()),
		WithUndoDepth[int](10),
	)

	var dataCount int
	var errCount int
	unsubscribe := cell.Subscribe(Observer[int]{
		OnData:  func(int) { dataCount++ },
		OnError: func(err error) { errCount++ },
	})
	defer unsubscribe()

	if err := cell.Set(2); err != nil {
		t.Fatalf("expected error observer to absorb propagation, got %v", err)
	}
	if got := cell.Value(); got != 1 {
		t.Fatalf("expected rollback to restore 1, got %d", got)
	}
	state := cell.State()
	if !state.HasError() {
		t.Fatalf("expected HasError after rollback, got %s", state)
	}
	var perr *store.PersistError
	if !errors.As(state.Err, &perr) {
		t.Fatalf("expected PersistError cause, got %v", state.Err)
	}
	if dataCount != 0 || errCount != 1 {
		t.Fatalf("expected a single error notification, got data=%d err=%d", dataCount, errCount)
	}
	if got := cell.UndoDepth(); got != 0 {
		t.Fatalf("expected rolled back mutation to pop its undo entry, got depth %d", got)
	}
}

func TestPersistSuccessWritesThrough(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	kv := store.NewMemoryStore()
	cell := NewCell(registry, "counter", 1,
		WithPersistence(kv, "counter", JSONCodec[int]()),
	)
	if err := cell.Set(9); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	raw, ok, err := kv.Read(context.Background(), "counter")
	if err != nil || !ok {
		t.Fatalf("expected stored payload, ok=%v err=%v", ok, err)
	}
	if raw != "9" {
		t.Fatalf("expected payload \"9\", got %q", raw)
	}
}

func TestUndoWritesRestoredValueThrough(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	kv := store.NewMemoryStore()
	cell := NewCell(registry, "counter", 1,
		WithPersistence(kv, "counter", JSONCodec[int]()),
		WithUndoDepth[int](10),
	)
	_ = cell.Set(2)
	if err := cell.Undo(); err != nil {
		t.Fatalf("unexpected error from Undo: %v", err)
	}
	raw, _, _ := kv.Read(context.Background(), "counter")
	if raw != "1" {
		t.Fatalf("expected undo to persist the restored value, got %q", raw)
	}
}

func TestSetStreamStopsDrainingAfterDispose(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "ticks", 0)
	data := make(chan int, 1)
	unsubscribe := cell.Subscribe(Observer[int]{
		OnData: func(v int) { data <- v },
	})
	defer unsubscribe()

	feed := make(chan Result[int])
	cell.SetStream(func(context.Context) <-chan Result[int] {
		return feed
	})

	feed <- Result[int]{Value: 1}
	if got := recv(t, data); got != 1 {
		t.Fatalf("expected first element 1, got %d", got)
	}

	cell.Dispose()
	// This element is still consumed; its commit reports the disposal and
	// stops the drain.
	feed <- Result[int]{Value: 2}

	select {
	case feed <- Result[int]{Value: 3}:
		t.Fatalf("expected the drain to stop consuming after dispose")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOnWaitingIsOptIn(t *testing.T) {
	registry := NewRegistry()
	defer registry.Teardown()

	cell := NewCell(registry, "counter", 0)
	waiting := make(chan struct{}, 2)
	data := make(chan int, 2)
	releaseOpted := cell.Subscribe(Observer[int]{
		OnWaiting: func() { waiting <- struct{}{} },
		OnData:    func(v int) { data <- v },
	})
	defer releaseOpted()

	silentData := make(chan int, 2)
	releaseSilent := cell.Subscribe(Observer[int]{
		OnData: func(v int) { silentData <- v },
	})
	defer releaseSilent()

	gate := make(chan struct{})
	cell.SetFuture(func(context.Context) (int, error) {
		<-gate
		return 5, nil
	})
	<-waiting
	close(gate)

	if got := recv(t, data); got != 5 {
		t.Fatalf("expected settled value 5, got %d", got)
	}
	if got := recv(t, silentData); got != 5 {
		t.Fatalf("expected silent observer to still get data, got %d", got)
	}
}
