// README: Courier tracking session: gate ticker + location producer feeding one update channel.
package courier

import (
	"context"
	"errors"
	"sync"
	"time"

	"lifeline/internal/modules/tracking"
	"lifeline/internal/types"
)

// Publisher sends a position report upstream. The tracking service satisfies
// it directly; a remote client would satisfy it over HTTP.
type Publisher interface {
	PublishSample(ctx context.Context, sample tracking.LocationSample) error
}

// Statuses shown on the courier screen.
const (
	StatusConnecting  = "connecting"
	StatusWaitingGPS  = "waiting for gps"
	StatusLive        = "live tracking active"
	StatusDelivered   = "delivered"
	StatusGPSUnusable = "gps not supported"
)

type UpdateKind string

const (
	UpdateGate     UpdateKind = "gate"
	UpdateStatus   UpdateKind = "status"
	UpdatePosition UpdateKind = "position"
)

// Update is one render-loop input. Both producers publish into the same
// channel so the consumer never has to select across sources.
type Update struct {
	Kind     UpdateKind
	Gate     tracking.GateSnapshot
	Status   string
	Position types.Point
}

// Session owns the courier-side producers for one order: a 1 Hz gate ticker
// and the geolocation consumer. Both stop when the session context is
// cancelled or the delivery completes. Updates are delivered best-effort on
// a non-blocking channel; the consumer renders the latest state only.
type Session struct {
	orderID   types.ID
	gate      tracking.Gate
	tick      time.Duration
	provider  Provider
	publisher Publisher
	now       func() time.Time

	cancel  context.CancelFunc
	updates chan Update
	wg      sync.WaitGroup

	mu        sync.Mutex
	delivered bool
}

type SessionConfig struct {
	OrderID          types.ID
	EstimatedArrival time.Time
	UnlockLead       time.Duration
	GateTick         time.Duration
	// Now is injectable for tests and server-synchronized clocks.
	Now func() time.Time
}

func NewSession(cfg SessionConfig, provider Provider, publisher Publisher) *Session {
	tick := cfg.GateTick
	if tick <= 0 {
		tick = time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		orderID:   cfg.OrderID,
		gate:      tracking.NewGate(cfg.EstimatedArrival, cfg.UnlockLead),
		tick:      tick,
		provider:  provider,
		publisher: publisher,
		now:       now,
		updates:   make(chan Update, 16),
	}
}

// Updates is the single render feed, fed by both producers.
func (s *Session) Updates() <-chan Update { return s.updates }

// Start launches both producers. The session stops when ctx is cancelled,
// Close is called, or the delivery completes.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	fixes, err := s.provider.Watch(ctx)
	if err != nil {
		s.cancel()
		s.push(Update{Kind: UpdateStatus, Status: StatusGPSUnusable})
		return err
	}

	s.push(Update{Kind: UpdateStatus, Status: StatusConnecting})

	s.wg.Add(2)
	go s.runGateTicker(ctx)
	go s.runProducer(ctx, fixes)
	return nil
}

// Close cancels both producers and waits for them to drain.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// MarkDelivered stops the producer loop permanently; no sample may be
// emitted after handoff.
func (s *Session) MarkDelivered() {
	s.mu.Lock()
	s.delivered = true
	s.mu.Unlock()
	s.push(Update{Kind: UpdateStatus, Status: StatusDelivered})
}

func (s *Session) isDelivered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func (s *Session) runGateTicker(ctx context.Context) {
	defer s.wg.Done()
	for snap := range s.gate.Watch(ctx, s.tick, s.now) {
		s.push(Update{Kind: UpdateGate, Gate: snap})
	}
}

func (s *Session) runProducer(ctx context.Context, fixes <-chan Fix) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			if s.isDelivered() {
				// Stray late callbacks after handoff are discarded.
				continue
			}
			if fix.Err != nil {
				// No backoff: stay subscribed and wait for the next callback.
				s.push(Update{Kind: UpdateStatus, Status: StatusWaitingGPS})
				continue
			}
			sample := tracking.LocationSample{
				OrderID:   s.orderID,
				Latitude:  fix.Position.Lat,
				Longitude: fix.Position.Lng,
			}
			if err := s.publisher.PublishSample(ctx, sample); err != nil {
				if errors.Is(err, tracking.ErrCompleted) {
					s.MarkDelivered()
					continue
				}
				// Transient transport failure; next fix retries.
				continue
			}
			s.push(Update{Kind: UpdateStatus, Status: StatusLive})
			s.push(Update{Kind: UpdatePosition, Position: fix.Position})
		}
	}
}

// push never blocks; the consumer only needs the most recent state.
func (s *Session) push(u Update) {
	select {
	case s.updates <- u:
	default:
	}
}
