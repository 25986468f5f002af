// README: Shared identifiers, coordinates and vehicle classes.
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Location is an immutable place snapshot. Address is advisory only.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (l Location) Point() Point {
	return Point{Lat: l.Lat, Lng: l.Lng}
}

// SamePlace compares coordinates and ignores the address.
func (l Location) SamePlace(other Location) bool {
	return l.Lat == other.Lat && l.Lng == other.Lng
}

type VehicleType string

const (
	VehicleVan   VehicleType = "VAN"
	VehicleTruck VehicleType = "TRUCK"
	VehicleHeavy VehicleType = "HEAVY"
)

var vehicleRank = map[VehicleType]int{
	VehicleVan:   1,
	VehicleTruck: 2,
	VehicleHeavy: 3,
}

func ParseVehicleType(s string) (VehicleType, bool) {
	v := VehicleType(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := vehicleRank[v]
	return v, ok
}

func (v VehicleType) Valid() bool {
	_, ok := vehicleRank[v]
	return ok
}

// CanCarry reports whether v is at least as large as requested.
func (v VehicleType) CanCarry(requested VehicleType) bool {
	return v.Valid() && requested.Valid() && vehicleRank[v] >= vehicleRank[requested]
}
