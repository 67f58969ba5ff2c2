// README: Geolocation provider contract for the courier session.
package courier

import (
	"context"

	"lifeline/internal/types"
)

// Fix is one geolocation callback. Err is set when the provider has no
// position (no fix yet, permission denied); the session surfaces it as a
// status string and keeps waiting for the next callback.
type Fix struct {
	Position types.Point
	Err      error
}

// Provider is a continuous high-accuracy location subscription, the Go shape
// of a device watch: one long-lived channel of callbacks, not a poll loop.
// The channel closes when the watch ends; Watch must honor ctx cancellation.
type Provider interface {
	Watch(ctx context.Context) (<-chan Fix, error)
}
