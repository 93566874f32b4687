package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_feed_events_received_total",
			Help: "Total number of stream events received",
		},
		[]string{"source"},
	)

	MalformedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_feed_malformed_events_total",
			Help: "Total number of inbound payloads dropped as malformed",
		},
		[]string{"source"},
	)

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_feed_reconnects_total",
			Help: "Total number of feed reconnect attempts",
		},
		[]string{"source"},
	)

	// Pattern engine metrics
	PatternsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_patterns_detected_total",
			Help: "Total number of pattern detections",
		},
		[]string{"pattern"},
	)

	// Scanner metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_scans_total",
			Help: "Total number of contract scans",
		},
		[]string{"status"}, // complete, failed, cached, coalesced
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "treasurex_scan_duration_seconds",
			Help:    "Duration of full contract risk scans",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Alert metrics
	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_alerts_triggered_total",
			Help: "Total number of alerts created",
		},
		[]string{"kind"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treasurex_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by dedup",
		},
	)

	AlertsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurex_alerts_delivered_total",
			Help: "Total number of per-subscriber alert deliveries",
		},
		[]string{"status"}, // success, error, deferred, dropped
	)
)
