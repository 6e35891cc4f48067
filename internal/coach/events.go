// internal/coach/events.go
package coach

import (
	"sync"
	"time"
)

// EventType names the orchestrator's outbound event kinds.
type EventType string

const (
	EventStateChanged       EventType = "state-changed"
	EventDecisionMade       EventType = "decision-made"
	EventExecutionCompleted EventType = "execution-completed"
	EventOutputGenerated    EventType = "output-generated"
	EventError              EventType = "error"
)

// Event is one entry on the orchestrator's event stream.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// eventBus fans orchestrator events out to subscribers. Slow subscribers
// lose events rather than stalling the telemetry path.
type eventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered event channel and an unsubscribe func.
func (b *eventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *eventBus) Publish(t EventType, payload interface{}) {
	ev := Event{Type: t, Timestamp: time.Now(), Payload: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *eventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
