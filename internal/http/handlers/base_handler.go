// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"haul/internal/modules/advice"
	"haul/internal/modules/location"
	"haul/internal/modules/order"
	"haul/internal/types"
)

// clientHeader carries the caller's client id where the body has none.
const clientHeader = "X-Client-ID"

type errorResponse struct {
	Error string `json:"error"`
}

type locationReq struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address"`
}

func (l *locationReq) location() (types.Location, bool) {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return types.Location{}, false
	}
	return types.Location{Lat: *l.Lat, Lng: *l.Lng, Address: l.Address}, true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrValidation), errors.Is(err, location.ErrValidation), errors.Is(err, advice.ErrEmptyItem):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrActiveOrder), errors.Is(err, order.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func pathID(c *gin.Context) (types.ID, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing id")
		return "", false
	}
	return types.ID(id), true
}

// bindJSON decodes an optional body; an empty body leaves v untouched.
func bindJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func callerID(c *gin.Context, fromBody string) types.ID {
	if id := strings.TrimSpace(fromBody); id != "" {
		return types.ID(id)
	}
	return types.ID(strings.TrimSpace(c.GetHeader(clientHeader)))
}
