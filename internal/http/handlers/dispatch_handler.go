// README: Dispatch handler exposing an order's offer generation record.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"haul/internal/modules/matching"
	"haul/internal/modules/order"
	"haul/internal/types"
)

type DispatchRecorder interface {
	Record(ctx context.Context, orderID types.ID) (matching.Record, error)
}

type DispatchHandler struct {
	order    *order.Service
	dispatch DispatchRecorder
}

func NewDispatchHandler(orderSvc *order.Service, dispatch DispatchRecorder) *DispatchHandler {
	return &DispatchHandler{order: orderSvc, dispatch: dispatch}
}

// Get handles GET /api/jobs/:id/dispatch: when offers started and which
// drivers were asked to bid.
func (h *DispatchHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.order.Get(ctx, id); err != nil {
		writeOrderError(c, err)
		return
	}
	rec, err := h.dispatch.Record(ctx, id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}
