// Package metrics exposes the Prometheus counters and gauges spec.md
// §7 requires: samples dropped, invariant violations, ingest channel
// overflow, and fan-out disconnects, plus a handful of gauges useful
// for operating the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuetrack_samples_dropped_total",
		Help: "Track samples dropped by a source's ingest buffer.",
	}, []string{"venue", "source"})

	InvariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuetrack_invariant_violations_total",
		Help: "Internal invariant violations recovered from (e.g. negative occupancy).",
	}, []string{"venue", "kind"})

	IngestChannelOverflow = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuetrack_ingest_channel_overflow_total",
		Help: "Times a venue's aggregator ingest channel was full.",
	}, []string{"venue"})

	FanoutDisconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuetrack_fanout_disconnects_total",
		Help: "Websocket clients disconnected for falling behind.",
	}, []string{"venue"})

	LiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "venuetrack_live_tracks",
		Help: "Tracks currently held by a venue's aggregator.",
	}, []string{"venue"})

	ActiveVisits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "venuetrack_active_visits",
		Help: "Tracks currently inside each ROI (the live occupancy count).",
	}, []string{"venue", "roi"})

	FrameTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "venuetrack_frame_tick_duration_seconds",
		Help:    "Time spent processing one aggregator tick.",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue"})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuetrack_alerts_fired_total",
		Help: "AlertRule firings, by severity.",
	}, []string{"venue", "severity"})
)

// Handler returns the Prometheus exposition HTTP handler for mounting
// at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
