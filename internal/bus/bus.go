// Package bus provides the in-process publish/subscribe channel feeding the
// per-run push notification stream.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the push notification kinds, in the order a
// subscriber can expect them.
type EventType string

const (
	EventStageEvent   EventType = "stage_event"
	EventHITLRequired EventType = "hitl_required"
	EventFinalAnswer  EventType = "final_answer"
	EventError        EventType = "error"
	EventCompleted    EventType = "completed"
)

// Event is one push notification for a run.
type Event struct {
	Type    EventType `json:"type"`
	RunID   uuid.UUID `json:"run_id"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// subscriberBuffer bounds each subscriber channel. A subscriber that stops
// draining loses newer events rather than stalling the orchestrator; there
// is no replay guarantee beyond events persisted before subscription.
const subscriberBuffer = 64

// Bus fans events out to per-run subscribers. Delivery is in emission order
// per subscriber.
type Bus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[int]chan Event
	next int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[uuid.UUID]map[int]chan Event)}
}

// Subscribe returns a channel of events for runID and a cancel function.
// The channel is closed on cancel.
func (b *Bus) Subscribe(runID uuid.UUID) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	b.subs[runID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[runID][id]; ok {
			delete(b.subs[runID], id)
			if len(b.subs[runID]) == 0 {
				delete(b.subs, runID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of its run. Never blocks.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop rather than stall the run.
		}
	}
}
