// Package location keeps the pool of online drivers and answers proximity
// queries for offer generation.
package location

import (
	"haul/internal/maps"
	"haul/internal/types"
)

// withinRadius returns the drivers at most radiusKm from origin, each with
// DistanceKm set.
func withinRadius(drivers []Driver, origin types.Point, radiusKm float64) []Driver {
	var out []Driver
	for _, d := range drivers {
		dist := maps.HaversineKm(origin, d.Position)
		if dist <= radiusKm {
			d.DistanceKm = dist
			out = append(out, d)
		}
	}
	return out
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
