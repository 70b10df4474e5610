package eventBus

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/node"
)

type EventType string

const (
	EventNodeAdded     EventType = "NODE_ADDED"
	EventNodeEnabled   EventType = "NODE_ENABLED"
	EventNodeDisabled  EventType = "NODE_DISABLED"
	EventFloodStarted  EventType = "FLOOD_STARTED"
	EventStep          EventType = "STEP"
	EventConverged     EventType = "CONVERGED"
	EventCountersReset EventType = "COUNTERS_RESET"
	EventTrialFinished EventType = "TRIAL_FINISHED"
)

// Event holds details that the front end might need.
type Event struct {
	Type      EventType       `json:"type" msgpack:"type"`
	RunID     uuid.UUID       `json:"run_id" msgpack:"run_id"`
	NodeID    mesh.NodeID     `json:"node_id" msgpack:"node_id"`
	Step      int             `json:"step" msgpack:"step"`
	Elapsed   time.Duration   `json:"elapsed" msgpack:"elapsed"`
	Count     int             `json:"count" msgpack:"count"`
	Outcome   string          `json:"outcome,omitempty" msgpack:"outcome,omitempty"`
	Nodes     []node.Snapshot `json:"nodes,omitempty" msgpack:"nodes,omitempty"`
	Payload   string          `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Frame     []byte          `json:"frame,omitempty" msgpack:"frame,omitempty"` // msgpack-encoded message on air
	Timestamp time.Time       `json:"timestamp" msgpack:"timestamp"`
}

// EventBus manages a set of subscribers and publishes events to them.
type EventBus struct {
	subscribers []chan Event
	mu          sync.RWMutex
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan Event, 0),
	}
}

// Publish sends an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(e Event) {
	if eb == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, sub := range eb.subscribers {
		// Use a non-blocking send in case a subscriber is busy.
		select {
		case sub <- e:
		default:
			log.Println("Dropping event: subscriber channel is full")
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	return eb.SubscribeN(100)
}

// SubscribeN subscribes with a channel of the given buffer size.
func (eb *EventBus) SubscribeN(size int) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, size)
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

// Unsubscribe removes ch and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel.
func (eb *EventBus) Close() {
	if eb == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, sub := range eb.subscribers {
		close(sub)
	}
	eb.subscribers = nil
}
