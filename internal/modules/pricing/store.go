// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"haul/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, vehicle types.VehicleType) (Rate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT vehicle_type, base_fare, per_km, capacity_kg, per_ton_overload, currency
		FROM pricing_rates
		WHERE vehicle_type = $1`, string(vehicle),
	)
	var r Rate
	var v string
	err := row.Scan(&v, &r.BaseFare, &r.PerKm, &r.CapacityKg, &r.PerTonOverload, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	if err != nil {
		return Rate{}, errors.Wrap(err, "query pricing rate")
	}
	r.Vehicle = types.VehicleType(v)
	return r, nil
}
