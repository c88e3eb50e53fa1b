// Package metrics holds the Prometheus collectors of the fleet.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "botfleet"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	botsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bots_running",
			Help:      "Number of bot instances currently running.",
		},
	)

	botStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_starts_total",
			Help:      "Bot start attempts by result.",
		},
		[]string{"result"},
	)

	botStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_stops_total",
			Help:      "Bot stops by result.",
		},
		[]string{"result"},
	)

	updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound updates received from the messaging platform.",
		},
		[]string{"kind"},
	)

	paymentRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_requests_total",
			Help:      "Payment gateway calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	broadcastMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Broadcast deliveries by result.",
		},
		[]string{"result"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		botsRunning,
		botStarts,
		botStops,
		updates,
		paymentRequests,
		broadcastMessages,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// BotRunning moves the running gauge by delta (+1 or -1).
func BotRunning(delta float64) {
	botsRunning.Add(delta)
}

func ObserveBotStart(err error) {
	botStarts.WithLabelValues(result(err)).Inc()
}

func ObserveBotStop(err error) {
	botStops.WithLabelValues(result(err)).Inc()
}

// UpdateReceived counts one inbound update of kind "message" or "callback".
func UpdateReceived(kind string) {
	updates.WithLabelValues(kind).Inc()
}

func ObservePayment(op string, err error) {
	paymentRequests.WithLabelValues(op, result(err)).Inc()
}

func ObserveBroadcast(err error) {
	broadcastMessages.WithLabelValues(result(err)).Inc()
}

// Gin records request count, latency and in-flight requests. The path
// label is the route template, so ids do not explode cardinality.
func Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
