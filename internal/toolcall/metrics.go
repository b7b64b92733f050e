package toolcall

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// dispatchTotal counts tool dispatches by tool name and outcome
	// ("ok"/"error"/"skipped").
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolcall_dispatch_total",
			Help: "Total number of tool-call dispatches by tool name and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	// dispatchLatency records per-tool dispatch duration in seconds.
	dispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolcall_dispatch_duration_seconds",
			Help:    "Duration of a single tool-call dispatch in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, dispatchLatency)
}

// observeDispatch records one dispatch outcome and its latency.
func observeDispatch(tool, outcome string, start time.Time) {
	dispatchTotal.WithLabelValues(tool, outcome).Inc()
	dispatchLatency.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
