// README: Pricing rate definition for each vehicle class.
package pricing

import "haul/internal/types"

type Rate struct {
	Vehicle        types.VehicleType
	BaseFare       int64
	PerKm          int64
	CapacityKg     float64
	PerTonOverload int64
	Currency       string
}

type PricingRequest struct {
	DistanceKm float64
	WeightKg   float64
	Vehicle    types.VehicleType
}

type PricingResult struct {
	Total     types.Money
	Breakdown map[string]int64
}

// DefaultRates are the fares used when no rate table is configured.
var DefaultRates = map[types.VehicleType]Rate{
	types.VehicleVan:   {Vehicle: types.VehicleVan, BaseFare: 120, PerKm: 6, CapacityKg: 1500, PerTonOverload: 40, Currency: types.DefaultCurrency},
	types.VehicleTruck: {Vehicle: types.VehicleTruck, BaseFare: 200, PerKm: 9, CapacityKg: 8000, PerTonOverload: 30, Currency: types.DefaultCurrency},
	types.VehicleHeavy: {Vehicle: types.VehicleHeavy, BaseFare: 400, PerKm: 14, CapacityKg: 25000, PerTonOverload: 25, Currency: types.DefaultCurrency},
}
