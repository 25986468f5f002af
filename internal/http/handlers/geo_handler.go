// README: Geocoding handlers for address lookup while configuring an order.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"haul/internal/types"
)

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) string
	Search(ctx context.Context, query string) []types.Location
}

type GeoHandler struct {
	geo Geocoder
}

func NewGeoHandler(geo Geocoder) *GeoHandler {
	return &GeoHandler{geo: geo}
}

// Reverse handles GET /api/geocode/reverse?lat=&lng=. It always answers with
// an address, falling back to the coordinates.
func (h *GeoHandler) Reverse(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	p := types.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, "lat and lng must be valid coordinates")
		return
	}
	writeJSON(c, http.StatusOK, types.Location{Lat: lat, Lng: lng, Address: h.geo.ReverseGeocode(c.Request.Context(), lat, lng)})
}

// Search handles GET /api/geocode/search?q=.
func (h *GeoHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeError(c, http.StatusBadRequest, "missing q")
		return
	}
	results := h.geo.Search(c.Request.Context(), q)
	if results == nil {
		results = []types.Location{}
	}
	writeJSON(c, http.StatusOK, gin.H{"results": results})
}
