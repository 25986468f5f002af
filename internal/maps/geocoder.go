// README: Geocoding/distance adapter over Google Maps; never surfaces errors to callers.
package maps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"haul/internal/types"
)

const lookupTimeout = 5 * time.Second

type mapsClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// Geocoder resolves addresses and road distances. A Geocoder without a
// client answers from coordinates alone.
type Geocoder struct {
	client   mapsClient
	language string
	logger   *slog.Logger
}

// NewGeocoder creates a Google Maps backed geocoder. An empty key gives an
// offline geocoder.
func NewGeocoder(apiKey string, logger *slog.Logger) (*Geocoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == "" {
		return &Geocoder{logger: logger}, nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client, language: "fr", logger: logger}, nil
}

func Offline() *Geocoder {
	return &Geocoder{logger: slog.Default()}
}

// WithLanguage sets the language of returned addresses.
func (g *Geocoder) WithLanguage(lang string) *Geocoder {
	if lang != "" {
		g.language = lang
	}
	return g
}

// ReverseGeocode returns a short address for the coordinates, or a
// coordinate string when the lookup fails.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	fallback := FallbackAddress(lat, lng)
	if g.client == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: g.language,
	})
	if err != nil {
		g.logger.Warn("reverse geocode failed", "lat", lat, "lng", lng, "error", err)
		return fallback
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return fallback
	}
	return shortAddress(results[0].FormattedAddress)
}

// EstimateDistance returns the driving distance in km, or the great-circle
// distance when the lookup fails.
func (g *Geocoder) EstimateDistance(ctx context.Context, a, b types.Point) float64 {
	direct := HaversineKm(a, b)
	if g.client == nil {
		return direct
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	resp, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{latLng(a)},
		Destinations: []string{latLng(b)},
		Mode:         maps.TravelModeDriving,
	})
	if err != nil {
		g.logger.Warn("distance matrix failed", "error", err)
		return direct
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return direct
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" || el.Distance.Meters <= 0 {
		return direct
	}
	return float64(el.Distance.Meters) / 1000
}

func FallbackAddress(lat, lng float64) string {
	return fmt.Sprintf("Location at %.4f, %.4f", lat, lng)
}

// shortAddress keeps the first three comma separated parts.
func shortAddress(full string) string {
	parts := strings.Split(full, ",")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
