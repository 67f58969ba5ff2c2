// README: Tracking topic events and location samples.
package tracking

import (
	"time"

	"lifeline/internal/types"
)

type EventType string

const (
	EventLocationUpdate    EventType = "update_location"
	EventTrackingStarted   EventType = "tracking_started"
	EventDeliveryCompleted EventType = "delivery_completed"
)

// LocationSample is a courier position report. No timestamp travels on the
// wire; viewers rely on arrival order and display the last sample received.
type LocationSample struct {
	OrderID   types.ID `json:"orderId"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
}

// Event is the fan-out payload for one order topic.
type Event struct {
	Type        EventType  `json:"type"`
	OrderID     types.ID   `json:"orderId"`
	Latitude    float64    `json:"latitude,omitempty"`
	Longitude   float64    `json:"longitude,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
