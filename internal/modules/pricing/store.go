// README: Pricing store backed by PostgreSQL rate overrides.
package pricing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoRate = errors.New("no rate configured")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetRate returns the configured multiplier override for a blood group.
// ErrNoRate means the compiled-in default applies.
func (s *Store) GetRate(ctx context.Context, bloodGroup string) (Rate, error) {
	row := s.db.QueryRow(ctx, `
        SELECT blood_group, multiplier
        FROM pricing_rates
        WHERE blood_group = $1`, bloodGroup,
	)
	var r Rate
	err := row.Scan(&r.BloodGroup, &r.Multiplier)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return Rate{}, ErrNoRate
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}
