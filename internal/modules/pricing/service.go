// README: Pricing service computes unit price estimates.
package pricing

import (
	"context"
	"errors"
	"math"

	"lifeline/internal/types"
)

var ErrBadQuantity = errors.New("quantity must be positive")

type Service struct {
	store *Store
}

// NewService accepts a nil store; compiled-in defaults are used then.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Estimate prices a request: base rate × rarity multiplier × component
// adjustment × quantity, rounded to the rupee.
func (s *Service) Estimate(ctx context.Context, bloodGroup, component string, quantity int) (types.Money, error) {
	if quantity <= 0 {
		return types.Money{}, ErrBadQuantity
	}

	multiplier := 1.0
	if m, ok := defaultMultipliers[bloodGroup]; ok {
		multiplier = m
	}
	if s.store != nil {
		if rate, err := s.store.GetRate(ctx, bloodGroup); err == nil {
			multiplier = rate.Multiplier
		}
	}
	if adj, ok := componentAdjustments[component]; ok {
		multiplier *= adj
	}

	amount := int64(math.Round(basePricePerUnit * multiplier * float64(quantity)))
	return types.Money{Amount: amount, Currency: "INR"}, nil
}
