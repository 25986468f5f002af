// README: Offer strategies: the demo catalog and nearby online drivers.
package matching

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"haul/internal/modules/location"
	"haul/internal/modules/order"
	"haul/internal/modules/pricing"
	"haul/internal/types"
)

// Catalog offers every demo carrier able to move the requested vehicle class.
type Catalog struct {
	Entries []order.DriverOffer
}

func NewCatalog() Catalog {
	return Catalog{Entries: DemoCatalog}
}

func (c Catalog) Candidates(_ context.Context, o order.Order) ([]order.DriverOffer, error) {
	out := make([]order.DriverOffer, 0, len(c.Entries))
	for _, e := range c.Entries {
		if !e.VehicleType.CanCarry(o.Cargo.VehicleType) {
			continue
		}
		e.ID = string(types.NewID())
		out = append(out, e)
	}
	return out, nil
}

type DriverFinder interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]location.Driver, error)
}

type Pricer interface {
	Estimate(ctx context.Context, req pricing.PricingRequest) (pricing.PricingResult, error)
}

// Nearby asks a random sample of the closest suitable online drivers to bid.
// Each bid is the driver's own fare for the trip, never below the client's
// asking price.
type Nearby struct {
	drivers  DriverFinder
	pricer   Pricer
	radiusKm float64
}

func NewNearby(drivers DriverFinder, pricer Pricer, radiusKm float64) *Nearby {
	if radiusKm <= 0 {
		radiusKm = defaultRadiusKm
	}
	return &Nearby{drivers: drivers, pricer: pricer, radiusKm: radiusKm}
}

func (n *Nearby) Candidates(ctx context.Context, o order.Order) ([]order.DriverOffer, error) {
	pool, err := n.drivers.Nearby(ctx, o.Pickup.Point(), n.radiusKm, selectPoolSize)
	if err != nil {
		return nil, errors.Wrap(err, "nearby drivers")
	}
	byID := make(map[types.ID]location.Driver, len(pool))
	var ids []types.ID
	for _, d := range pool {
		if !d.VehicleType.CanCarry(o.Cargo.VehicleType) {
			continue
		}
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	var out []order.DriverOffer
	for _, id := range PickRandomDrivers(ids, notifyInitialCount) {
		d := byID[id]
		res, err := n.pricer.Estimate(ctx, pricing.PricingRequest{
			DistanceKm: o.DistanceKm,
			WeightKg:   o.Cargo.WeightKg(),
			Vehicle:    d.VehicleType,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "price for driver %s", d.ID)
		}
		price := res.Total
		if price.Amount < o.SuggestedPrice.Amount {
			price = o.SuggestedPrice
		}
		origin := d.Position
		out = append(out, order.DriverOffer{
			ID:           string(types.NewID()),
			DriverID:     d.ID,
			DriverName:   d.Name,
			DriverRating: d.Rating,
			VehicleType:  d.VehicleType,
			Price:        price,
			ETAMinutes:   approachETA(d.DistanceKm),
			Origin:       &origin,
		})
	}
	return out, nil
}

// PickRandomDrivers returns up to n distinct drivers from pool in random
// order. The pool is not modified.
func PickRandomDrivers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	shuffled := make([]types.ID, len(pool))
	copy(shuffled, pool)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

func approachETA(distanceKm float64) int {
	return max(1, int(math.Ceil(distanceKm/approachSpeedKmh*60)))
}
