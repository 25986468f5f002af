// README: Driver availability handler feeding the driver pool.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"haul/internal/modules/location"
	"haul/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type availabilityReq struct {
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	VehicleType string  `json:"vehicle_type"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Online      bool    `json:"online"`
}

// Update handles PUT /api/drivers/:id/availability.
func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	vehicle, _ := types.ParseVehicleType(req.VehicleType)
	err := h.location.SetAvailability(c.Request.Context(), location.AvailabilityUpdate{
		DriverID:    id,
		Name:        req.Name,
		Rating:      req.Rating,
		VehicleType: vehicle,
		Position:    types.Point{Lat: req.Lat, Lng: req.Lng},
		Online:      req.Online,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "online": req.Online})
}
