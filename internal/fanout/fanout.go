// Package fanout implements the packet fan-out stage of spec.md §4.5: one
// inbound queue per encoder, broadcasting reference-shared packet copies to
// each subscribed sink's independently-sized bounded queue. Grounded on the
// teacher's pipeline.go buffered-channel-with-select-default-drop pattern,
// generalized from one consumer to N independently-failing subscribers.
package fanout

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// SubscriptionID identifies one sink's subscription to a Fanout.
type SubscriptionID string

// subscriber holds one sink's bounded inbound queue and its local drop
// counter (spec.md §4.5: "the packet is dropped for that sink only").
type subscriber struct {
	id      SubscriptionID
	queue   chan *pipeline.Packet
	dropped uint64
}

// Fanout distributes packets from one encoder's output to N subscribed
// sinks. subscribe/unsubscribe are safe to call while packets are flowing.
type Fanout struct {
	mu          sync.RWMutex
	subscribers map[SubscriptionID]*subscriber
	defaultCap  int
}

// New constructs a Fanout whose subscribers default to capacity defaultCap
// unless overridden per-subscription via SubscribeWithCapacity.
func New(defaultCap int) *Fanout {
	return &Fanout{subscribers: make(map[SubscriptionID]*subscriber), defaultCap: defaultCap}
}

// Subscribe registers a new sink queue at the Fanout's default capacity and
// returns its subscription id and receive channel.
func (f *Fanout) Subscribe() (SubscriptionID, <-chan *pipeline.Packet) {
	return f.SubscribeWithCapacity(f.defaultCap)
}

// SubscribeWithCapacity registers a new sink queue with an explicit capacity,
// per spec.md §4.5 ("per-sink queue capacities are independent").
func (f *Fanout) SubscribeWithCapacity(capacity int) (SubscriptionID, <-chan *pipeline.Packet) {
	if capacity <= 0 {
		capacity = 1
	}
	id := SubscriptionID(uuid.NewString())
	sub := &subscriber{id: id, queue: make(chan *pipeline.Packet, capacity)}

	f.mu.Lock()
	f.subscribers[id] = sub
	f.mu.Unlock()

	return id, sub.queue
}

// Unsubscribe removes a subscription; any packets still queued for it are
// abandoned (the sink stopped consuming, typically because it's shutting
// down or failed).
func (f *Fanout) Unsubscribe(id SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subscribers[id]; ok {
		close(sub.queue)
		delete(f.subscribers, id)
	}
}

// Publish clones a reference-counted handle per subscriber and pushes it
// into that subscriber's queue, dropping (and counting) for any subscriber
// whose queue is full without affecting any other subscriber (spec.md §4.5).
func (f *Fanout) Publish(pkt *pipeline.Packet) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		shared := pkt.Retain()
		select {
		case sub.queue <- shared:
		default:
			shared.Release()
			sub.dropped++
		}
	}
	// The Fanout's own reference (from when the caller handed us pkt) is
	// released once every subscriber has its own retained copy or has
	// declined one; callers must not touch pkt after Publish returns.
	pkt.Release()
}

// DroppedCount returns id's drop counter for the status snapshot.
func (f *Fanout) DroppedCount(id SubscriptionID) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if sub, ok := f.subscribers[id]; ok {
		return sub.dropped
	}
	return 0
}

// Subscribers returns the current subscription count.
func (f *Fanout) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Close unsubscribes every remaining subscriber.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subscribers {
		close(sub.queue)
		delete(f.subscribers, id)
	}
}
