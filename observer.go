package states

import "github.com/google/uuid"

// Observer registers interest in a cell's status changes. OnData and
// OnError fire on settle; OnWaiting is opt-in and fires on the waiting
// transition of future/stream mutations. Tags filter which mutations reach
// this observer.
type Observer[T any] struct {
	Tags      []string
	OnWaiting func()
	OnData    func(T)
	OnError   func(error)
}

type subscription[T any] struct {
	id  string
	obs Observer[T]
}

// Subscribe registers obs and returns its release function. Delivery order
// across observers is registration order. Releasing the last observer of a
// non keep-alive cell disposes the cell and cancels its in-flight work.
func (c *Cell[T]) Subscribe(obs Observer[T]) func() {
	sub := &subscription[T]{id: uuid.NewString(), obs: obs}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return func() {}
	}
	c.observers = append(c.observers, sub)
	c.mu.Unlock()
	return func() { c.unsubscribe(sub.id) }
}

// ObserverCount reports the number of registered observers.
func (c *Cell[T]) ObserverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

func (c *Cell[T]) unsubscribe(id string) {
	c.mu.Lock()
	for i, sub := range c.observers {
		if sub.id == id {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			break
		}
	}
	remaining := len(c.observers)
	keep := c.keepAlive
	disposed := c.disposed
	c.mu.Unlock()

	if remaining == 0 && !keep && !disposed {
		c.Dispose()
	}
}

// deliver fans the status out to subs honoring tag filters and the waiting
// opt-in. It must be called without holding c.mu.
func (c *Cell[T]) deliver(subs []*subscription[T], cfg *mutateConfig, status Status, value T) {
	for _, sub := range subs {
		if !tagsMatch(cfg.tags, sub.obs.Tags) {
			continue
		}
		switch status.Phase {
		case PhaseWaiting:
			if sub.obs.OnWaiting != nil {
				sub.obs.OnWaiting()
			}
		case PhaseData:
			if sub.obs.OnData != nil {
				sub.obs.OnData(value)
			}
		case PhaseError:
			if sub.obs.OnError != nil {
				sub.obs.OnError(status.Err)
			}
		}
	}
}

// tagsMatch reports whether a mutation carrying mutationTags should reach an
// observer registered with observerTags. An untagged mutation reaches every
// observer; a tagged mutation reaches only observers sharing a tag.
func tagsMatch(mutationTags, observerTags []string) bool {
	if len(mutationTags) == 0 {
		return true
	}
	for _, mt := range mutationTags {
		for _, ot := range observerTags {
			if mt == ot {
				return true
			}
		}
	}
	return false
}

func hasErrorObserver[T any](subs []*subscription[T]) bool {
	for _, sub := range subs {
		if sub.obs.OnError != nil {
			return true
		}
	}
	return false
}
