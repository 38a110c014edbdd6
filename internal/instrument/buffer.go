package instrument

import "sync"

// DefaultBufferSize is the number of events kept when no size is given.
const DefaultBufferSize = 1000

// EventBuffer keeps the most recent events in a fixed-size ring. Older
// events are overwritten.
type EventBuffer struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewEventBuffer creates a ring holding up to size events.
func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &EventBuffer{events: make([]Event, size)}
}

// Enqueue adds an event, evicting the oldest when full.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.events[eb.next] = event
	eb.next = (eb.next + 1) % len(eb.events)
	if eb.next == 0 {
		eb.full = true
	}
}

// Len returns the number of buffered events.
func (eb *EventBuffer) Len() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.full {
		return len(eb.events)
	}
	return eb.next
}

// Recent returns up to limit events, newest first, that satisfy match.
// A nil match accepts every event; a non-positive limit means no limit.
func (eb *EventBuffer) Recent(limit int, match func(Event) bool) []Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	n := eb.next
	if eb.full {
		n = len(eb.events)
	}
	out := []Event{}
	for i := 0; i < n; i++ {
		idx := (eb.next - 1 - i + len(eb.events)) % len(eb.events)
		e := eb.events[idx]
		if match != nil && !match(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
