package location

import (
	"testing"

	"haul/internal/types"
)

func TestWithinRadius(t *testing.T) {
	origin := types.Point{Lat: 33.5731, Lng: -7.5898}
	drivers := []Driver{
		{ID: "near", Position: types.Point{Lat: 33.58, Lng: -7.59}},
		{ID: "rabat", Position: types.Point{Lat: 34.0209, Lng: -6.8416}},
		{ID: "same", Position: origin},
	}

	got := withinRadius(drivers, origin, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 drivers within 10km, got %d", len(got))
	}
	for _, d := range got {
		if d.ID == "rabat" {
			t.Fatalf("rabat should be out of range")
		}
		if d.DistanceKm > 10 {
			t.Errorf("%s distance = %f", d.ID, d.DistanceKm)
		}
	}
}

func TestSortByDistance_Drivers(t *testing.T) {
	drivers := []Driver{
		{ID: types.ID("c"), DistanceKm: 5.0},
		{ID: types.ID("a"), DistanceKm: 1.0},
		{ID: types.ID("b"), DistanceKm: 3.0},
	}

	sortByDistance(drivers, func(d Driver) float64 { return d.DistanceKm })

	if drivers[0].ID != "a" || drivers[1].ID != "b" || drivers[2].ID != "c" {
		t.Errorf("unexpected sort order: %v", drivers)
	}
}

func TestSortByDistance_Stable(t *testing.T) {
	drivers := []Driver{
		{ID: types.ID("first"), DistanceKm: 2.0},
		{ID: types.ID("close"), DistanceKm: 1.0},
		{ID: types.ID("second"), DistanceKm: 2.0},
	}
	sortByDistance(drivers, func(d Driver) float64 { return d.DistanceKm })
	if drivers[1].ID != "first" || drivers[2].ID != "second" {
		t.Errorf("equal distances reordered: %v", drivers)
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var drivers []Driver
	sortByDistance(drivers, func(d Driver) float64 { return d.DistanceKm })
}
