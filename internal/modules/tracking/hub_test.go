package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOutToAllSubscribers(t *testing.T) {
	hub := NewHub(4)

	a, first := hub.Subscribe("order-1")
	require.True(t, first)
	b, first := hub.Subscribe("order-1")
	require.False(t, first)
	defer a.Close()
	defer b.Close()

	ev := Event{Type: EventLocationUpdate, OrderID: "order-1", Latitude: 19.07, Longitude: 72.87}
	delivered := hub.Publish(ev)
	assert.Equal(t, 2, delivered)

	for _, sub := range []*Subscription{a, b} {
		select {
		case got := <-sub.Events():
			assert.Equal(t, ev, got)
		default:
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestHubTopicsAreIsolated(t *testing.T) {
	hub := NewHub(4)

	a, _ := hub.Subscribe("order-1")
	other, _ := hub.Subscribe("order-2")
	defer a.Close()
	defer other.Close()

	hub.Publish(Event{Type: EventLocationUpdate, OrderID: "order-1", Latitude: 1, Longitude: 2})

	select {
	case ev := <-other.Events():
		t.Fatalf("order-2 subscriber received foreign event %+v", ev)
	default:
	}
}

func TestHubClosedSubscriptionStopsReceiving(t *testing.T) {
	hub := NewHub(4)

	sub, _ := hub.Subscribe("order-1")
	sub.Close()
	// Close is idempotent; a second call must not panic.
	sub.Close()

	delivered := hub.Publish(Event{Type: EventLocationUpdate, OrderID: "order-1"})
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, hub.Subscribers("order-1"))

	_, ok := <-sub.Events()
	assert.False(t, ok, "events channel should be closed")
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	hub := NewHub(1)

	sub, _ := hub.Subscribe("order-1")
	defer sub.Close()

	first := Event{Type: EventLocationUpdate, OrderID: "order-1", Latitude: 1}
	second := Event{Type: EventLocationUpdate, OrderID: "order-1", Latitude: 2}
	assert.Equal(t, 1, hub.Publish(first))
	// Buffer full: the second publish must not block, only drop.
	assert.Equal(t, 0, hub.Publish(second))

	got := <-sub.Events()
	assert.Equal(t, first, got)
}
