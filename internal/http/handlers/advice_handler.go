// README: Cargo advice handler.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"haul/internal/modules/advice"
)

const adviceTimeout = 10 * time.Second

type AdviceHandler struct {
	advice *advice.Service
}

func NewAdviceHandler(svc *advice.Service) *AdviceHandler {
	return &AdviceHandler{advice: svc}
}

// Tips handles GET /api/advice?item=.
func (h *AdviceHandler) Tips(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adviceTimeout)
	defer cancel()

	tips, err := h.advice.Tips(ctx, callerID(c, c.Query("client_id")), c.Query("item"))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"tips": tips})
}
