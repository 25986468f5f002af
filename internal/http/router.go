// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"haul/internal/http/handlers"
	"haul/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(middleware.Logging(logger), middleware.Recovery(logger), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	orderHandler := handlers.NewOrderHandler(deps.Order)
	api.POST("/orders/drafts", orderHandler.Open)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/offers", orderHandler.Offers)
	api.GET("/orders/:id/transitions", orderHandler.Transitions)
	api.POST("/orders/:id/broadcast", orderHandler.Broadcast)
	api.POST("/orders/:id/accept", orderHandler.Accept)
	api.POST("/orders/:id/counter", orderHandler.Counter)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/advance", orderHandler.Advance)
	api.POST("/orders/:id/archive", orderHandler.Archive)

	driverHandler := handlers.NewDriverHandler(deps.Order)
	api.GET("/jobs", driverHandler.ListAvailable)
	api.POST("/jobs/:id/offers", driverHandler.Bid)
	api.POST("/jobs/:id/accept", driverHandler.Accept)

	if deps.Dispatch != nil {
		dispatchHandler := handlers.NewDispatchHandler(deps.Order, deps.Dispatch)
		api.GET("/jobs/:id/dispatch", dispatchHandler.Get)
	}
	if deps.Location != nil {
		locationHandler := handlers.NewLocationHandler(deps.Location)
		api.PUT("/drivers/:id/availability", locationHandler.Update)
	}
	if deps.Advice != nil {
		adviceHandler := handlers.NewAdviceHandler(deps.Advice)
		api.GET("/advice", adviceHandler.Tips)
	}
	if deps.Geo != nil {
		geoHandler := handlers.NewGeoHandler(deps.Geo)
		api.GET("/geocode/reverse", geoHandler.Reverse)
		api.GET("/geocode/search", geoHandler.Search)
	}
	if deps.Events != nil {
		streamHandler := handlers.NewStreamHandler(deps.Order, deps.Events)
		r.GET("/ws/orders/:id", streamHandler.Order)
	}
	return r
}
