package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "haul"

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orders_created_total", Help: "Orders moved to CONFIGURING"})
	Transitions   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "order_transitions_total", Help: "Order status transitions"},
		[]string{"from", "to"},
	)
	OffersReceived = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "offers_received_total", Help: "Offers appended to orders"})
	OffersDropped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "offers_dropped_total", Help: "Late offers dropped by the dispatcher"})
	AcceptRaceLost = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "accept_race_lost_total", Help: "Accept attempts on an already accepted order"})
	CASRetries     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "order_cas_retries_total", Help: "Optimistic write retries"})
	ActiveTracks   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "tracking_active", Help: "Running tracking simulations"})
	TrackingTicks  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tracking_ticks_total", Help: "Position updates accepted"})
	DriversOnline  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_online", Help: "Drivers marked online by this instance"})
	AdviceFallback = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "advice_fallback_total", Help: "Advice requests answered with fallback tips"})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Lifecycle events published"},
		[]string{"type"},
	)
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total", Help: "Events dropped for slow subscribers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
