// README: Tracking service: join/publish orchestration and relay lifecycle.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifeline/internal/metrics"
	"lifeline/internal/types"
)

var (
	// ErrCompleted rejects samples against a finished delivery.
	ErrCompleted = errors.New("delivery completed; sample dropped")
	// ErrNotLive rejects samples for orders that are not approved.
	ErrNotLive = errors.New("order is not approved for tracking")
)

// Orders is the slice of the request service the tracker needs. BeginTracking
// reports whether this call flipped trackingStarted false→true; it must fail
// with ErrCompleted once the order is completed and ErrNotLive when it is not
// approved (the http layer adapts the request module's sentinels).
type Orders interface {
	BeginTracking(ctx context.Context, id types.ID) (bool, error)
}

// relay is the per-topic bridge from the redis channel into the local hub.
type relay struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Service struct {
	hub    *Hub
	store  *Store
	orders Orders
	log    *zap.Logger

	mu     sync.Mutex
	relays map[types.ID]*relay
}

// NewService wires the fan-out. store may be nil (single instance / tests);
// events then go straight to the local hub.
func NewService(hub *Hub, store *Store, orders Orders, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		hub:    hub,
		store:  store,
		orders: orders,
		log:    log,
		relays: make(map[types.ID]*relay),
	}
}

// Join subscribes a viewer to an order topic. The first local subscriber
// starts the redis relay for the topic; it stops with the last one. The
// subscription must be closed when the viewer's connection ends.
func (s *Service) Join(ctx context.Context, orderID types.ID) *Subscription {
	sub, first := s.hub.Subscribe(orderID)
	if first && s.store != nil {
		s.startRelay(orderID)
	}
	return sub
}

// Leave closes the subscription and tears down the relay if the topic has no
// local viewers left.
func (s *Service) Leave(sub *Subscription) {
	orderID := sub.OrderID()
	sub.Close()
	if s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub.Subscribers(orderID) == 0 {
		if r, ok := s.relays[orderID]; ok {
			r.cancel()
			delete(s.relays, orderID)
		}
	}
}

// PublishSample ingests one courier position report. The first accepted
// sample flips trackingStarted and broadcasts tracking_started; samples
// against a completed order are dropped so late reports never resurrect a
// finished delivery.
func (s *Service) PublishSample(ctx context.Context, sample LocationSample) error {
	flipped, err := s.orders.BeginTracking(ctx, sample.OrderID)
	if err != nil {
		return err
	}
	if flipped {
		s.emit(ctx, Event{Type: EventTrackingStarted, OrderID: sample.OrderID})
	}
	s.emit(ctx, Event{
		Type:      EventLocationUpdate,
		OrderID:   sample.OrderID,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
	})
	metrics.LocationsRelayedTotal.Inc()
	return nil
}

// BroadcastCompleted tells every subscriber the handoff happened. Called by
// the request service on OTP success.
func (s *Service) BroadcastCompleted(orderID types.ID, completedAt time.Time) {
	s.emit(context.Background(), Event{
		Type:        EventDeliveryCompleted,
		OrderID:     orderID,
		CompletedAt: &completedAt,
	})
}

func (s *Service) emit(ctx context.Context, ev Event) {
	if s.store == nil {
		s.hub.Publish(ev)
		return
	}
	if err := s.store.Publish(ctx, ev); err != nil {
		s.log.Warn("tracking publish", zap.String("order_id", string(ev.OrderID)), zap.Error(err))
		// Keep local viewers alive even when redis is down.
		s.hub.Publish(ev)
	}
}

func (s *Service) startRelay(orderID types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relays[orderID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &relay{cancel: cancel, done: make(chan struct{})}
	s.relays[orderID] = r

	go func() {
		defer close(r.done)
		ps := s.store.Subscribe(ctx, orderID)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.log.Warn("tracking relay payload", zap.Error(err))
					continue
				}
				s.hub.Publish(ev)
			}
		}
	}()
}
