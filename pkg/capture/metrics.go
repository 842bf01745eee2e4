package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "camera_acquisitions_total",
		Help:      "Camera stream acquisitions by outcome.",
	}, []string{"outcome"})
	metricCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "captures_total",
		Help:      "Successful captures by quality tier.",
	}, []string{"tier"})
	metricCaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "capture_failures_total",
		Help:      "Failed capture attempts by pipeline stage.",
	}, []string{"stage"})
	metricEncodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "encode_attempts_total",
		Help:      "Encoder invocations by quality tier.",
	}, []string{"tier"})
	metricEncodedBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wastesnap",
		Name:      "encoded_bytes",
		Help:      "Size of encoded photos in bytes.",
		Buckets:   prometheus.ExponentialBuckets(32*1024, 2, 6),
	}, []string{"tier"})
	metricOverCeiling = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "low_tier_over_ceiling_total",
		Help:      "LOW tier results accepted above the size ceiling.",
	})
	metricStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "stale_captures_total",
		Help:      "Captures that completed after their session moved on.",
	})
)

func recordCapture(r *Result) {
	metricCaptures.WithLabelValues(r.Tier().String()).Inc()
}

func recordFailure(stage string) {
	metricCaptureFailures.WithLabelValues(stage).Inc()
}
