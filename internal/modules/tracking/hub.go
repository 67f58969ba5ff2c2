// README: In-process fan-out hub; one topic per order id.
package tracking

import (
	"sync"

	"lifeline/internal/metrics"
	"lifeline/internal/types"
)

const defaultSubscriberBuffer = 8

// Subscription is one viewer's binding to an order topic. Its lifetime is
// the viewer's connection; Close detaches it and releases the channel.
type Subscription struct {
	orderID types.ID
	ch      chan Event
	hub     *Hub
	once    sync.Once
}

// Events delivers the topic's fan-out. The channel closes when the
// subscription is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) OrderID() types.ID { return s.orderID }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans events out to every current subscriber of a topic. Delivery is
// best-effort: a subscriber that cannot keep up loses interim events, which
// is fine because viewers render only the most recent sample.
type Hub struct {
	mu     sync.Mutex
	topics map[types.ID]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{topics: make(map[types.ID]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe attaches a new viewer to the order's topic and reports whether it
// is the topic's first subscriber.
func (h *Hub) Subscribe(orderID types.ID) (*Subscription, bool) {
	sub := &Subscription{orderID: orderID, ch: make(chan Event, h.buffer), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[orderID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[orderID] = subs
	}
	subs[sub] = struct{}{}
	metrics.TrackingSubscribers.Inc()
	return sub, len(subs) == 1
}

// unsubscribe detaches and reports whether the topic is now empty.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sub.orderID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	metrics.TrackingSubscribers.Dec()
	if len(subs) == 0 {
		delete(h.topics, sub.orderID)
	}
}

// Publish delivers the event to every current subscriber of the topic
// without blocking. Returns how many subscribers received it.
func (h *Hub) Publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for sub := range h.topics[ev.OrderID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			// Slow subscriber: drop; last-message-wins semantics.
		}
	}
	return delivered
}

// Subscribers reports the current viewer count for a topic.
func (h *Hub) Subscribers(orderID types.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[orderID])
}
