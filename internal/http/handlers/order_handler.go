// README: Client-side order handlers: drafts, configuration, broadcast, acceptance and delivery.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"haul/internal/modules/order"
	"haul/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type openOrderReq struct {
	ClientID string `json:"client_id"`
}

type cargoReq struct {
	ItemType    string  `json:"item_type"`
	Category    string  `json:"category"`
	Weight      float64 `json:"weight"`
	WeightUnit  string  `json:"weight_unit"`
	VehicleType string  `json:"vehicle_type"`
}

type createOrderReq struct {
	OrderID        string       `json:"order_id"`
	ClientID       string       `json:"client_id"`
	Cargo          cargoReq     `json:"cargo"`
	Pickup         *locationReq `json:"pickup"`
	SuggestedPrice int64        `json:"suggested_price"`
}

type broadcastReq struct {
	Destination *locationReq `json:"destination"`
}

type acceptReq struct {
	OfferID string `json:"offer_id"`
}

type counterReq struct {
	Price int64 `json:"price"`
}

type cancelReq struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

// Open handles POST /api/orders/drafts.
func (h *OrderHandler) Open(c *gin.Context) {
	var req openOrderReq
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.order.Open(c.Request.Context(), order.OpenCommand{ClientID: callerID(c, req.ClientID)})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

// Create handles POST /api/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pickup, ok := req.Pickup.location()
	if !ok {
		writeError(c, http.StatusBadRequest, "pickup coordinates are required")
		return
	}
	o, err := h.order.CreateRequest(c.Request.Context(), order.CreateCommand{
		OrderID:  types.ID(req.OrderID),
		ClientID: callerID(c, req.ClientID),
		Cargo: order.Cargo{
			ItemType:    req.Cargo.ItemType,
			Category:    order.Category(req.Cargo.Category),
			Weight:      req.Cargo.Weight,
			WeightUnit:  order.WeightUnit(req.Cargo.WeightUnit),
			VehicleType: types.VehicleType(req.Cargo.VehicleType),
		},
		Pickup:         pickup,
		SuggestedPrice: req.SuggestedPrice,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// Offers returns the order's offers cheapest first.
func (h *OrderHandler) Offers(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	offers, err := h.order.RankedOffers(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offers": offers})
}

func (h *OrderHandler) Transitions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ts, err := h.order.Transitions(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"transitions": ts})
}

func (h *OrderHandler) Broadcast(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req broadcastReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.BroadcastCommand{OrderID: id}
	if dest, ok := req.Destination.location(); ok {
		cmd.Destination = &dest
	}
	if err := h.order.Broadcast(c.Request.Context(), cmd); err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *OrderHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req acceptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.order.AcceptOffer(c.Request.Context(), order.AcceptCommand{OrderID: id, OfferID: req.OfferID}); err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *OrderHandler) Counter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req counterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.order.CounterOffer(c.Request.Context(), order.CounterCommand{OrderID: id, Price: req.Price}); err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if !bindJSON(c, &req) {
		return
	}
	actorType, ok := callerActor(req.ActorType)
	if !ok {
		writeError(c, http.StatusBadRequest, "actor_type must be client or driver")
		return
	}
	cmd := order.CancelCommand{OrderID: id, ActorType: actorType, Reason: req.Reason}
	if req.ActorID != "" {
		actor := types.ID(req.ActorID)
		cmd.ActorID = &actor
	}
	if err := h.order.Cancel(c.Request.Context(), cmd); err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

// callerActor accepts the actor types an API caller may claim. System
// transitions come only from inside the engine.
func callerActor(raw string) (string, bool) {
	switch actor := strings.ToLower(strings.TrimSpace(raw)); actor {
	case "":
		return order.ActorClient, true
	case order.ActorClient, order.ActorDriver:
		return actor, true
	default:
		return "", false
	}
}

// Advance moves an accepted order to PICKED_UP, then to DELIVERED.
func (h *OrderHandler) Advance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	status, err := h.order.AdvanceDelivery(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": status})
}

func (h *OrderHandler) Archive(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.order.Archive(c.Request.Context(), id); err != nil {
		writeOrderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *OrderHandler) respondWithOrder(c *gin.Context, id types.ID) {
	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
