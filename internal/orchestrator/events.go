package orchestrator

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

// EventType names a run transition.
type EventType string

const (
	EventRunStart   EventType = "run-start"
	EventLayerStart EventType = "layer-start"
	EventGuideStart EventType = "guide-start"
	EventGuideDone  EventType = "guide-done"
	EventLayerDone  EventType = "layer-done"
	EventRunEnd     EventType = "run-end"
	EventLog        EventType = "log"
)

// Event is emitted by the orchestrator at each transition.
type Event struct {
	Type      EventType           `json:"type"`
	RunID     string              `json:"run_id"`
	Time      time.Time           `json:"time"`
	Layer     int                 `json:"layer"`
	Guide     string              `json:"guide,omitempty"`
	Guides    []string            `json:"guides,omitempty"`
	Outcome   store.OutcomeStatus `json:"outcome,omitempty"`
	RunStatus store.RunStatus     `json:"run_status,omitempty"`
	Counts    *store.Counts       `json:"counts,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// Sink receives events. Sinks are called from the orchestrator's own
// goroutine, one event at a time.
type Sink func(Event)

// Broadcaster fans events out to channel subscribers and keeps the history so
// late subscribers can replay it.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	history []Event
	closed  bool
	buffer  int
}

// NewBroadcaster creates a Broadcaster whose subscriber channels hold buffer
// events. A slow subscriber misses events rather than blocking the run.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]chan Event), buffer: buffer}
}

// Sink returns a Sink publishing to b.
func (b *Broadcaster) Sink() Sink {
	return b.Publish
}

// Publish delivers e to every subscriber. The run-end event closes b.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, e)
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	if e.Type == EventRunEnd {
		b.closeLocked()
	}
}

// Subscribe returns the events published so far and a channel for the rest.
// The channel is closed when the run ends or cancel is called.
func (b *Broadcaster) Subscribe() (past []Event, events <-chan Event, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	past = append([]Event(nil), b.history...)
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return past, ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return past, ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

// Done reports whether the broadcaster is closed.
func (b *Broadcaster) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Broadcaster) closeLocked() {
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
