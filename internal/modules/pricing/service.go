// README: Pricing service computes freight fare estimates.
package pricing

import (
	"context"
	"log/slog"
	"math"

	"github.com/pkg/errors"

	"haul/internal/types"
)

var (
	ErrUnknownVehicle = errors.New("unknown vehicle type")
	ErrBadDistance    = errors.New("distance must not be negative")
	ErrRateNotFound   = errors.New("rate not found")
)

type RateStore interface {
	GetRate(ctx context.Context, vehicle types.VehicleType) (Rate, error)
}

type Service struct {
	store  RateStore
	logger *slog.Logger
}

// NewService accepts a nil store, in which case DefaultRates apply.
func NewService(store RateStore) *Service {
	return &Service{store: store, logger: slog.Default()}
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Estimate prices a load: base fare, every started km, and every started
// ton above the vehicle capacity.
func (s *Service) Estimate(ctx context.Context, req PricingRequest) (PricingResult, error) {
	if !req.Vehicle.Valid() {
		return PricingResult{}, ErrUnknownVehicle
	}
	if req.DistanceKm < 0 || math.IsNaN(req.DistanceKm) {
		return PricingResult{}, ErrBadDistance
	}
	rate, err := s.rate(ctx, req.Vehicle)
	if err != nil {
		return PricingResult{}, err
	}

	distance := int64(math.Ceil(req.DistanceKm)) * rate.PerKm
	var overload int64
	if over := req.WeightKg - rate.CapacityKg; over > 0 {
		overload = int64(math.Ceil(over/1000)) * rate.PerTonOverload
	}

	return PricingResult{
		Total: types.Money{Amount: rate.BaseFare + distance + overload, Currency: rate.Currency},
		Breakdown: map[string]int64{
			"base":     rate.BaseFare,
			"distance": distance,
			"overload": overload,
		},
	}, nil
}

func (s *Service) rate(ctx context.Context, vehicle types.VehicleType) (Rate, error) {
	if s.store != nil {
		r, err := s.store.GetRate(ctx, vehicle)
		if err == nil {
			if r.Currency == "" {
				r.Currency = types.DefaultCurrency
			}
			return r, nil
		}
		if !errors.Is(err, ErrRateNotFound) {
			s.logger.Warn("rate lookup failed, using defaults", "vehicle", vehicle, "error", err)
		}
	}
	return DefaultRates[vehicle], nil
}
