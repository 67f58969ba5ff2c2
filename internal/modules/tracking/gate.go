// README: Time gate: lock state is a pure function of now and the arrival time.
package tracking

import (
	"context"
	"fmt"
	"time"
)

type GateState string

const (
	Locked   GateState = "locked"
	Unlocked GateState = "unlocked"
)

// DefaultUnlockLead is the window before estimated arrival during which
// tracking stays hidden.
const DefaultUnlockLead = 60 * time.Minute

// Gate derives lock state from the clock. It is never persisted; every
// viewer recomputes it independently.
type Gate struct {
	Arrival time.Time
	Lead    time.Duration
}

func NewGate(arrival time.Time, lead time.Duration) Gate {
	if lead <= 0 {
		lead = DefaultUnlockLead
	}
	return Gate{Arrival: arrival, Lead: lead}
}

func (g Gate) unlockAt() time.Time {
	return g.Arrival.Add(-g.Lead)
}

// StateAt reports Locked iff now is before arrival minus the lead window.
func (g Gate) StateAt(now time.Time) GateState {
	if now.Before(g.unlockAt()) {
		return Locked
	}
	return Unlocked
}

// RemainingAt returns the time left until unlock, zero once unlocked.
func (g Gate) RemainingAt(now time.Time) time.Duration {
	d := g.unlockAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Countdown renders a remaining duration the way the dispatch view shows it.
func Countdown(d time.Duration) string {
	if d <= 0 {
		return "LIVE"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

// GateSnapshot is one tick of a viewer's gate evaluation.
type GateSnapshot struct {
	State     GateState
	Remaining time.Duration
}

// Watch re-evaluates the gate at the given tick rate, emitting a snapshot per
// tick. The channel closes after the first Unlocked snapshot or when ctx is
// done. now is injectable so tests and server-offset clocks can drive it.
func (g Gate) Watch(ctx context.Context, tick time.Duration, now func() time.Time) <-chan GateSnapshot {
	if now == nil {
		now = time.Now
	}
	out := make(chan GateSnapshot, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			n := now()
			snap := GateSnapshot{State: g.StateAt(n), Remaining: g.RemainingAt(n)}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if snap.State == Unlocked {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
