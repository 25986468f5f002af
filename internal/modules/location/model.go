// README: Driver availability snapshot kept in the driver pool.
package location

import (
	"time"

	"haul/internal/types"
)

type Driver struct {
	ID          types.ID          `json:"id"`
	Name        string            `json:"name"`
	Rating      float64           `json:"rating"`
	VehicleType types.VehicleType `json:"vehicle_type"`
	Position    types.Point       `json:"position"`
	// DistanceKm is filled by Nearby queries.
	DistanceKm float64   `json:"distance_km,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AvailabilityUpdate struct {
	DriverID    types.ID
	Name        string
	Rating      float64
	VehicleType types.VehicleType
	Position    types.Point
	Online      bool
}
