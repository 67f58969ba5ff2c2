package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"lifeline/internal/types"
)

// Estimate is a driving-time suggestion from the courier's last known
// position to the receiving hospital. It is advisory only; the arrival
// commitment stored at approval never changes.
type Estimate struct {
	Duration time.Duration
	Distance string
}

// ETAService handles interactions with the Google Maps Directions API.
type ETAService struct {
	client *maps.Client
}

// NewETAService creates a new ETAService with the given API Key.
func NewETAService(apiKey string) (*ETAService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &ETAService{client: client}, nil
}

// Remaining returns the driving estimate from the courier's position to the
// destination address.
func (s *ETAService) Remaining(ctx context.Context, from types.Point, destination string) (Estimate, error) {
	if destination == "" {
		return Estimate{}, fmt.Errorf("destination required")
	}

	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Lat, from.Lng),
		Destination: destination,
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return Estimate{Duration: leg.Duration, Distance: leg.Distance.HumanReadable}, nil
}
