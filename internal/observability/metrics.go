// This file exposes Prometheus instrumentation for HTTP traffic and for the
// streaming connections served by internal/ssedriver. Labels are kept
// low-cardinality:
//
//   - method/path/status: standard HTTP request labels (path is the
//     registered Gin route, falling back to the raw URL when unmatched)
//   - bot: the bot path a streaming connection belongs to
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// streamsOpen gauges the number of currently open query streams, by bot.
	streamsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poe_bot_streams_open",
			Help: "Current number of open streaming query connections.",
		},
		[]string{"bot"},
	)

	// streamEvents counts SSE events written to clients, by bot and event type.
	streamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poe_bot_stream_events_total",
			Help: "Total number of SSE events written to clients.",
		},
		[]string{"bot", "event"},
	)

	// streamDuration records how long each streaming connection stayed open.
	streamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poe_bot_stream_duration_seconds",
			Help:    "Duration streaming connections stayed open.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bot"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, streamsOpen, streamEvents, streamDuration)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus,
// labeling by method, registered route path, and status code.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
	}
}

// StreamOpened increments the open-stream gauge for bot and returns a
// function that decrements it and records the total duration when called.
func StreamOpened(bot string) func() {
	streamsOpen.WithLabelValues(bot).Inc()
	start := time.Now()
	return func() {
		streamsOpen.WithLabelValues(bot).Dec()
		streamDuration.WithLabelValues(bot).Observe(time.Since(start).Seconds())
	}
}

// ObserveStreamEvent records one SSE event written to a client.
func ObserveStreamEvent(bot, event string) {
	streamEvents.WithLabelValues(bot, event).Inc()
}
