// Package events carries task and workspace lifecycle notifications from
// the executor to live consumers such as the SSE feed and the terminal
// monitor. Delivery is best effort: every subscriber owns a bounded buffer
// and the oldest event is dropped when a consumer falls behind, so a slow
// reader can never stall the worker pool.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is the interface implemented by every notification on the bus.
type Event interface {
	EventType() string
	Timestamp() time.Time
	TaskID() string
}

// BaseEvent provides the fields shared by all events.
type BaseEvent struct {
	Type string    `json:"type"`
	Time time.Time `json:"timestamp"`
	Task string    `json:"task_id,omitempty"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) TaskID() string       { return e.Task }

func newBaseEvent(eventType, taskID string) BaseEvent {
	return BaseEvent{
		Type: eventType,
		Time: time.Now().UTC(),
		Task: taskID,
	}
}

type subscriber struct {
	ch    chan Event
	types map[string]bool // empty means all types
}

// Bus fans events out to subscribers, each behind its own buffered channel.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	size    int
	closed  bool
	dropped atomic.Int64
}

// New creates a Bus whose subscriber channels buffer bufferSize events.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{size: bufferSize}
}

// Subscribe registers a consumer for the given event types. With no types
// it receives everything. After Close the returned channel is already
// closed.
func (b *Bus) Subscribe(types ...string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		ch:    make(chan Event, b.size),
		types: make(map[string]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.ch == ch {
			close(sub.ch)
			continue
		}
		kept = append(kept, sub)
	}
	b.subs = kept
}

// Publish delivers an event to every matching subscriber. When a
// subscriber's buffer is full the oldest buffered event is discarded to
// make room, and the discard is counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	eventType := event.EventType()
	for _, sub := range b.subs {
		if len(sub.types) != 0 && !sub.types[eventType] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
				b.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// DroppedCount reports how many events have been discarded for slow
// subscribers since the bus was created.
func (b *Bus) DroppedCount() int64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes every subscriber channel. Publishes
// after Close are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
