package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastesnap",
		Name:      "submissions_total",
		Help:      "Submission handoffs by outcome.",
	}, []string{"outcome"})
	metricPhotoBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wastesnap",
		Name:      "submitted_photo_bytes",
		Help:      "Size of uploaded photos in bytes.",
		Buckets:   prometheus.ExponentialBuckets(32*1024, 2, 6),
	})
)

func recordSubmission(outcome string) {
	metricSubmissions.WithLabelValues(outcome).Inc()
}
