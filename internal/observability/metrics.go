package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	rosterEventsTotal     *prometheus.CounterVec
	streamClientsActive   prometheus.Gauge
	exportsTotal          *prometheus.CounterVec
	statisticsCacheLookup *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the classroom API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_requests_total",
			Help: "Total number of classroom API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classroom_latency_seconds",
			Help:    "Latency distribution for classroom API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_errors_total",
			Help: "Total number of error responses returned by classroom endpoints.",
		}, []string{"method", "route", "status"})

		rosterEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_roster_events_total",
			Help: "Roster change events delivered to local subscribers.",
		}, []string{"table", "action"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classroom_stream_clients_active",
			Help: "Number of websocket clients subscribed to roster changes.",
		})

		exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_exports_total",
			Help: "Roster exports generated per format.",
		}, []string{"format"})

		statisticsCacheLookup = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_statistics_cache_lookups_total",
			Help: "Statistics cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			rosterEventsTotal,
			streamClientsActive,
			exportsTotal,
			statisticsCacheLookup,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RosterEvents exposes the counter of roster change events.
func RosterEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return rosterEventsTotal
}

// StreamClientsActive exposes the gauge of connected websocket clients.
func StreamClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}

// Exports exposes the counter of generated exports.
func Exports() *prometheus.CounterVec {
	RegisterMetrics()
	return exportsTotal
}

// StatisticsCacheLookups exposes the statistics cache hit/miss counter.
func StatisticsCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return statisticsCacheLookup
}

// MetricsHandler exposes the Prometheus scrape endpoint through fiber, with
// OpenMetrics negotiation enabled.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
