package transfer

import (
	"sync"

	"github.com/samber/lo"
)

type EventType int

const (
	EventItemAdded EventType = iota
	EventItemUpdated
	EventItemRemoved
	// EventDestinationChanged hints that the listing of the destination
	// directory of Item is stale.
	EventDestinationChanged
)

func (t EventType) String() string {
	switch t {
	case EventItemAdded:
		return "added"
	case EventItemUpdated:
		return "updated"
	case EventItemRemoved:
		return "removed"
	case EventDestinationChanged:
		return "destination-changed"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType
	Item TransferItem
	// StatusChanged is false for pure progress updates.
	StatusChanged bool
}

type Listener func(Event)

type subscription struct {
	id       int
	listener Listener
}

// emitter fans events out to listeners on the emitting goroutine, in
// subscription order.
type emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners []subscription
}

func newEmitter() *emitter {
	return &emitter{}
}

func (e *emitter) subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners = append(e.listeners, subscription{id: id, listener: l})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.listeners = lo.Reject(e.listeners, func(s subscription, _ int) bool {
			return s.id == id
		})
	}
}

func (e *emitter) emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	e.mu.RLock()
	listeners := lo.Map(e.listeners, func(s subscription, _ int) Listener {
		return s.listener
	})
	e.mu.RUnlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}
