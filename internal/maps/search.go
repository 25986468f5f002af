package maps

import (
	"context"
	"strings"

	"googlemaps.github.io/maps"

	"haul/internal/types"
)

const maxSearchResults = 5

// Search resolves a free-text address into candidate locations. Failures and
// offline geocoders yield no candidates.
func (g *Geocoder) Search(ctx context.Context, query string) []types.Location {
	query = strings.TrimSpace(query)
	if g.client == nil || query == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Language: g.language,
	})
	if err != nil {
		g.logger.Warn("address search failed", "query", query, "error", err)
		return nil
	}
	out := make([]types.Location, 0, min(len(results), maxSearchResults))
	for _, r := range results {
		if len(out) == maxSearchResults {
			break
		}
		out = append(out, types.Location{
			Lat:     r.Geometry.Location.Lat,
			Lng:     r.Geometry.Location.Lng,
			Address: shortAddress(r.FormattedAddress),
		})
	}
	return out
}
