// README: Driver handlers for the job board, bids and asking-price acceptance.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"haul/internal/modules/order"
	"haul/internal/types"
)

type DriverHandler struct {
	order *order.Service
}

func NewDriverHandler(orderSvc *order.Service) *DriverHandler {
	return &DriverHandler{order: orderSvc}
}

type bidReq struct {
	OfferID      string       `json:"offer_id"`
	DriverID     string       `json:"driver_id"`
	DriverName   string       `json:"driver_name"`
	DriverRating float64      `json:"driver_rating"`
	VehicleType  string       `json:"vehicle_type"`
	Price        int64        `json:"price"`
	ETAMinutes   int          `json:"eta_minutes"`
	Origin       *types.Point `json:"origin"`
}

// ListAvailable handles GET /api/jobs: orders still collecting offers.
func (h *DriverHandler) ListAvailable(c *gin.Context) {
	jobs, err := h.order.ListOpen(c.Request.Context())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": jobs})
}

// Bid handles POST /api/jobs/:id/offers, a driver's own price for the job.
func (h *DriverHandler) Bid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req bidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	offer, err := h.order.ReceiveOffer(c.Request.Context(), id, order.DriverOffer{
		ID:           req.OfferID,
		DriverID:     types.ID(req.DriverID),
		DriverName:   req.DriverName,
		DriverRating: req.DriverRating,
		VehicleType:  types.VehicleType(req.VehicleType),
		Price:        types.DH(req.Price),
		ETAMinutes:   req.ETAMinutes,
		Origin:       req.Origin,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, offer)
}

// Accept handles POST /api/jobs/:id/accept: the driver takes the asking price.
func (h *DriverHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req bidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	vehicle, _ := types.ParseVehicleType(req.VehicleType)
	offer, err := h.order.AcceptAskingPrice(c.Request.Context(), order.AcceptAskingCommand{
		OrderID: id,
		Driver: order.DriverBid{
			DriverID:     types.ID(req.DriverID),
			DriverName:   req.DriverName,
			DriverRating: req.DriverRating,
			VehicleType:  vehicle,
			ETAMinutes:   req.ETAMinutes,
			Origin:       req.Origin,
		},
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, offer)
}
