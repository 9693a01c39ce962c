// Package eventbus fans batch events out to live WebSocket subscribers.
package eventbus

import (
	"sync"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

// subscriberBufferSize bounds each subscriber's ring buffer; a
// subscriber that falls behind this far observes a lag event instead of
// blocking the publisher.
const subscriberBufferSize = 64

// LagEvent is delivered to a subscriber in place of the events it missed.
type LagEvent struct {
	Dropped int
}

// Subscription is a single subscriber's view of a batch's event stream.
type Subscription struct {
	Events <-chan batch.WsEvent
	Lag    <-chan LagEvent
	cancel func()
}

// Close stops delivery to this subscription and releases its buffer.
func (s *Subscription) Close() {
	s.cancel()
}

type subscriber struct {
	events chan batch.WsEvent
	lag    chan LagEvent
}

// Bus is a per-batch fan-out point. One Bus instance is created per
// batch and discarded with it; there is no cross-batch multiplexing.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// New creates an empty Bus for one batch's lifetime.
func New() *Bus {
	return &Bus{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a new subscriber and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	sub := &subscriber{
		events: make(chan batch.WsEvent, subscriberBufferSize),
		lag:    make(chan LagEvent, 1),
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	return &Subscription{
		Events: sub.events,
		Lag:    sub.lag,
		cancel: func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			b.mu.Unlock()
			close(sub.events)
		},
	}
}

// Publish delivers event to every current subscriber without blocking;
// a full subscriber buffer drops the event and is notified via its lag
// channel instead, so one slow reader cannot stall the others.
func (b *Bus) Publish(event batch.WsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for sub := range b.subscribers {
		select {
		case sub.events <- event:
		default:
			select {
			case sub.lag <- LagEvent{Dropped: 1}:
			default:
			}
		}
	}
}

// Close marks the bus closed; subsequent Publish calls are no-ops.
// Existing subscriptions remain open until individually closed so a
// client mid-read of batch_complete is not cut off.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
