package events

import (
	"sync"
)

// GlobalUnitID is the special unit ID for subscribing to all unit events.
// Subscribers to this ID receive events for ALL units.
const GlobalUnitID = "*"

// Publisher is the producer side of the event stream. Components that
// emit events need nothing more; subscribing is a concern of the
// concrete MemoryPublisher.
type Publisher interface {
	// Publish delivers an event to every matching subscription.
	Publish(event Event)
}

// NopPublisher discards all events. Useful as a default when no consumer
// is attached.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// Subscription is a live feed of events for one unit, or for every unit
// via GlobalUnitID. Receive from C; the channel closes when the
// subscription is cancelled or the publisher shuts down.
type Subscription struct {
	C <-chan Event

	id     uint64
	unitID string
	ch     chan Event
}

// MemoryPublisher fans events out to in-process subscriptions. Delivery
// is non-blocking: a subscription whose buffer is full misses the event
// rather than stalling the run.
type MemoryPublisher struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets how many undelivered events a subscription holds.
func WithBufferSize(n int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.buffer = n
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subs:   make(map[uint64]*Subscription),
		buffer: 100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers the event to subscriptions for its unit and to
// global subscriptions. Full buffers are skipped, never waited on.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for _, s := range p.subs {
		if s.unitID != GlobalUnitID && s.unitID != event.UnitID {
			continue
		}
		select {
		case s.ch <- event:
		default:
		}
	}
}

// Subscribe opens a feed for the given unit ID. Subscribing to a closed
// publisher returns a subscription whose channel is already closed.
func (p *MemoryPublisher) Subscribe(unitID string) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, p.buffer)
	s := &Subscription{C: ch, ch: ch, unitID: unitID}
	if p.closed {
		close(ch)
		return s
	}

	p.nextID++
	s.id = p.nextID
	p.subs[s.id] = s
	return s
}

// Cancel drops the subscription from delivery and closes its channel.
// Cancelling twice is a no-op.
func (p *MemoryPublisher) Cancel(s *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[s.id]; !ok {
		return
	}
	delete(p.subs, s.id)
	close(s.ch)
}

// Close drops every subscription and stops delivery for good.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, s := range p.subs {
		close(s.ch)
		delete(p.subs, id)
	}
}
