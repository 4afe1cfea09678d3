// Package eventbus provides in-process broadcast of migration lifecycle
// events. Any number of subscribers can be connected concurrently and each
// receives events published after it subscribed; there is no replay buffer.
//
// Delivery is real-time and lossy under backpressure: a subscriber that
// cannot keep up has events dropped from its own bounded buffer, never
// stalling the publisher or other subscribers.
package eventbus

import (
	"sync"
	"time"
)

// EventType identifies the kind of event carried on the Bus.
type EventType string

const (
	// EventProgress carries one line of output from the migration process.
	EventProgress EventType = "progress"

	// EventHeartbeat is a synthetic keepalive emitted to a subscriber that
	// has seen no events for a full heartbeat interval.
	EventHeartbeat EventType = "heartbeat"

	// EventError reports a failure of the migration process or its launch.
	EventError EventType = "error"
)

const (
	// DefaultHeartbeatInterval is how long a subscriber sits idle before it
	// receives a synthetic heartbeat.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultBufferSize is the per-subscriber capacity for pending events.
	// A subscriber this far behind starts losing events.
	DefaultBufferSize = 64
)

// Event is a single message delivered to subscribers. Events are ephemeral:
// they are relayed to currently-connected subscribers and never persisted.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProgress returns a progress event carrying one line of process output.
func NewProgress(message string) Event {
	return Event{Type: EventProgress, Message: message, Timestamp: time.Now()}
}

// NewError returns an error event with a failure description.
func NewError(message string) Event {
	return Event{Type: EventError, Message: message, Timestamp: time.Now()}
}

func newHeartbeat() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}

// Bus fans events out to subscribers. The zero value is not usable; create
// one with NewBus or NewBusWithDefaults.
type Bus struct {
	heartbeatInterval time.Duration
	bufferSize        int

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewBus creates a Bus with the given idle-heartbeat interval and
// per-subscriber buffer capacity.
func NewBus(heartbeatInterval time.Duration, bufferSize int) *Bus {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Bus{
		heartbeatInterval: heartbeatInterval,
		bufferSize:        bufferSize,
		subs:              make(map[*Subscription]struct{}),
	}
}

// NewBusWithDefaults creates a Bus with the default heartbeat interval and
// buffer capacity.
func NewBusWithDefaults() *Bus {
	return NewBus(DefaultHeartbeatInterval, DefaultBufferSize)
}

// Publish delivers event to every current subscriber in publish order.
// Publish never blocks: a subscriber whose buffer is full loses the event.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.in <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber and returns its Subscription. The
// subscriber only sees events published after this call. The caller must
// Close the Subscription when done with it.
func (b *Bus) Subscribe() *Subscription {
	sub := newSubscription(b)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.forward(b.heartbeatInterval)

	return sub
}

// Subscribers returns the number of currently registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// unsubscribe removes sub from the broadcast set and closes its inbound
// channel. It reports whether sub was still registered, so a Subscription
// can only ever be torn down once.
func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[sub]; !exists {
		return false
	}

	delete(b.subs, sub)

	// Safe to close here: Publish sends under the same lock, so no send can
	// race this close.
	close(sub.in)

	return true
}
