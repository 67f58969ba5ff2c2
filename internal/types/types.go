// README: Shared value objects used across modules.
package types

// ID identifies an entity (request, organization, user).
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

type Money struct {
	Amount   int64
	Currency string
}
