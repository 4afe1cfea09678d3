package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Subscription is one subscriber's connection to the Bus. Events are
// received from Events. A Subscription that is no longer needed must be
// closed to release its buffer and its forwarding goroutine.
type Subscription struct {
	id  string
	bus *Bus

	// in is the bounded buffer the Bus publishes into; out is the delivery
	// channel the consumer reads. A forwarding goroutine sits between the
	// two and owns the idle-heartbeat timer.
	in  chan Event
	out chan Event

	quit      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSubscription(b *Bus) *Subscription {
	return &Subscription{
		id:   uuid.NewString(),
		bus:  b,
		in:   make(chan Event, b.bufferSize),
		out:  make(chan Event),
		quit: make(chan struct{}),
	}
}

// ID returns the unique identifier of the Subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the channel events are delivered on. The channel is closed
// once the Subscription has been closed and any queued events delivered or
// discarded.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Dropped returns the number of events lost because the subscriber fell
// behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close cancels the Subscription and releases its buffer. Safe to call more
// than once and safe to call concurrently with Publish.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.quit)
	})
}

// forward shuttles events from the buffer to the consumer. It owns the
// heartbeat timer: the timer is reset on every delivery, so an idle window
// produces exactly one heartbeat, and a heartbeat can never overtake a real
// event already queued.
func (s *Subscription) forward(heartbeatInterval time.Duration) {
	defer close(s.out)

	timer := time.NewTimer(heartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case event, ok := <-s.in:
			if !ok {
				return
			}

			select {
			case s.out <- event:
			case <-s.quit:
				return
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

		case <-timer.C:
			// The timer can fire in the same instant an event lands in the
			// buffer; a queued event always wins over the heartbeat.
			select {
			case event, ok := <-s.in:
				if !ok {
					return
				}

				select {
				case s.out <- event:
				case <-s.quit:
					return
				}
			default:
				select {
				case s.out <- newHeartbeat():
				case <-s.quit:
					return
				}
			}

		case <-s.quit:
			return
		}

		timer.Reset(heartbeatInterval)
	}
}
