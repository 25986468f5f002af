// README: Location service maintains driver availability and proximity lookups.
package location

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"haul/internal/observability"
	"haul/internal/types"
)

const defaultLimit = 20

var ErrValidation = errors.New("invalid driver data")

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, logger: slog.Default(), now: time.Now}
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// SetAvailability puts an online driver in the pool at its position, or
// takes an offline driver out of it.
func (s *Service) SetAvailability(ctx context.Context, u AvailabilityUpdate) error {
	if u.DriverID == "" {
		return errors.Wrap(ErrValidation, "driver id is required")
	}
	if !u.Online {
		removed, err := s.store.Remove(ctx, u.DriverID)
		if err != nil {
			return err
		}
		if removed {
			observability.DriversOnline.Dec()
			s.logger.Info("driver offline", "driver_id", u.DriverID)
		}
		return nil
	}

	if !u.Position.Valid() {
		return errors.Wrap(ErrValidation, "position out of range")
	}
	if u.Rating < 0 || u.Rating > 5 || math.IsNaN(u.Rating) {
		return errors.Wrap(ErrValidation, "rating must be within [0,5]")
	}
	vehicle, ok := types.ParseVehicleType(string(u.VehicleType))
	if !ok {
		return errors.Wrapf(ErrValidation, "unknown vehicle type %q", u.VehicleType)
	}
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = string(u.DriverID)
	}

	added, err := s.store.Upsert(ctx, Driver{
		ID:          u.DriverID,
		Name:        name,
		Rating:      u.Rating,
		VehicleType: vehicle,
		Position:    u.Position,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return err
	}
	if added {
		observability.DriversOnline.Inc()
		s.logger.Info("driver online", "driver_id", u.DriverID, "vehicle", vehicle)
	}
	return nil
}

// Nearby returns online drivers within radiusKm of p, closest first.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Driver, error) {
	if !p.Valid() {
		return nil, errors.Wrap(ErrValidation, "origin out of range")
	}
	if radiusKm <= 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.store.Radius(ctx, p, radiusKm, limit)
}
