// README: Offer generation settings and the demo driver catalog.
package matching

import (
	"time"

	"haul/internal/modules/order"
	"haul/internal/types"
)

const (
	defaultWindow     = 20 * time.Second
	maxWindow         = 30 * time.Second
	defaultFirstDelay = 3 * time.Second
	defaultInterval   = 1500 * time.Millisecond
	defaultMaxOffers  = 5
	defaultRadiusKm   = 10.0

	// selectPoolSize is how many nearby drivers to sample before picking notifyInitialCount.
	selectPoolSize = 10
	// notifyInitialCount is the number of drivers asked to bid on an order.
	notifyInitialCount = 5
	// approachSpeedKmh converts a driver's distance to pickup into an ETA.
	approachSpeedKmh = 30.0
	// keyTTL bounds dispatch registry keys; orders resolve well within a day.
	keyTTL = 24 * time.Hour
)

// DemoCatalog is the fixed set of carriers bidding on every order in demo mode.
var DemoCatalog = []order.DriverOffer{
	{DriverName: "Ahmed Transport", DriverRating: 4.9, VehicleType: types.VehicleTruck, Price: types.DH(250), ETAMinutes: 8},
	{DriverName: "Yassine Express", DriverRating: 4.7, VehicleType: types.VehicleVan, Price: types.DH(180), ETAMinutes: 5},
	{DriverName: "CargoPro", DriverRating: 5.0, VehicleType: types.VehicleHeavy, Price: types.DH(450), ETAMinutes: 15},
}
