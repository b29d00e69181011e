package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(providerRequests, providerLatency, pagesExtracted) }

var (
	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_provider_requests_total",
			Help: "Extraction/OCR provider attempts by outcome.",
		},
		[]string{"provider", "result"}, // ok | error | skipped
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docintel_provider_latency_seconds",
			Help:    "Extraction/OCR provider call latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		},
		[]string{"provider"},
	)

	pagesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_pages_extracted_total",
			Help: "Pages persisted by the page engine, by kind and method.",
		},
		[]string{"kind", "method"},
	)
)

func ObserveProvider(provider, result string, d time.Duration) {
	providerRequests.WithLabelValues(norm(provider), norm(result)).Inc()
	if d > 0 {
		providerLatency.WithLabelValues(norm(provider)).Observe(d.Seconds())
	}
}

func IncPage(kind, method string) {
	pagesExtracted.WithLabelValues(norm(kind), norm(method)).Inc()
}
