// Package metrics provides Prometheus instrumentation for the
// dispatcher and its HTTP admin surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, recorded for the admin/metrics listener itself.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_http_requests_total",
		Help: "Total number of HTTP requests served by the dispatcher's admin listener.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zeus_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Queue depth gauges. They are registered and exported, but no
// component of this module sets them: they read zero unless the
// embedding program updates them.
var (
	EnvelopesNew = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zeus_envelopes_new",
		Help: "Number of envelopes currently in the new/ queue.",
	})

	EnvelopesInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zeus_envelopes_inflight",
		Help: "Number of envelopes currently claimed into inflight/.",
	})

	InboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zeus_inbox_depth",
		Help: "Number of pending inbox items per agent and state.",
	}, []string{"agent_id", "state"})
)

// Dispatch outcome counters, recorded once per DispatchOnce call.
var (
	DispatchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_dispatch_outcomes_total",
		Help: "Total DispatchOnce outcomes by decision.",
	}, []string{"outcome"})

	RecipientBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_recipient_blocked_total",
		Help: "Total recipient resolutions blocked by reason.",
	}, []string{"reason"})
)

// Pump outcome counters, recorded once per per-file processing step in
// the extension-side inbox pump.
var (
	PumpOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_pump_outcomes_total",
		Help: "Total inbox pump per-file outcomes.",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zeus_sweep_duration_seconds",
		Help:    "Duration of a single drain-loop sweep pass.",
		Buckets: prometheus.DefBuckets,
	})
)
