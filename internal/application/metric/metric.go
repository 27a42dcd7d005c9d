package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of active signaling WebSocket connections",
		},
	)

	roomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_active",
			Help: "Number of rooms with at least one participant",
		},
	)

	signalMessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_messages_relayed_total",
			Help: "Signaling messages relayed between room members, by kind",
		},
		[]string{"kind"},
	)

	signalMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_messages_dropped_total",
			Help: "Signaling messages dropped, by reason",
		},
		[]string{"reason"},
	)
)

// RecordHTTPMetrics records one handled HTTP request.
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetActiveRooms(count int) {
	roomsActive.Set(float64(count))
}

func IncrementRelayed(kind string) {
	signalMessagesRelayed.WithLabelValues(kind).Inc()
}

func IncrementDropped(reason string) {
	signalMessagesDropped.WithLabelValues(reason).Inc()
}
