// Package metrics provides Prometheus metrics for the Materna service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

// millisecondBuckets spans sub-millisecond cache hits through
// multi-second cold loads. DefBuckets is scaled for seconds and would
// collapse millisecond observations into its top bucket.
var millisecondBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

var (
	predictionsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "materna",
		Name:      "predictions_total",
		Help:      "Completed predictions by overall risk level.",
	}, []string{"overall_risk"})

	predictionErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "materna",
		Name:      "prediction_errors_total",
		Help:      "Predictions that failed with a load or inference error.",
	})

	predictionLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "materna",
		Name:      "prediction_latency_milliseconds",
		Help:      "Latency of a full three-model prediction in milliseconds.",
		Buckets:   millisecondBuckets,
	})

	batchSize = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "materna",
		Name:      "batch_size_patients",
		Help:      "Number of patients per processed batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100},
	})

	alertsFired = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "materna",
		Name:      "alerts_fired_total",
		Help:      "Clinical alerts fired by severity.",
	}, []string{"severity"})

	modelLoads = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "materna",
		Name:      "model_loads_total",
		Help:      "Model artifact loads by risk type.",
	}, []string{"risk_type"})

	modelEvictions = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "materna",
		Name:      "model_evictions_total",
		Help:      "Model bundles evicted from the cache.",
	})

	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "materna",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "materna",
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds by route.",
		Buckets:   millisecondBuckets,
	}, []string{"route"})
)

// RecordPrediction counts one completed prediction.
func RecordPrediction(overallRisk string, elapsed time.Duration) {
	predictionsTotal.WithLabelValues(overallRisk).Inc()
	predictionLatency.Observe(float64(elapsed) / float64(time.Millisecond))
}

// RecordPredictionError counts one failed prediction.
func RecordPredictionError() {
	predictionErrors.Inc()
}

// RecordBatch observes one processed batch size.
func RecordBatch(patients int) {
	batchSize.Observe(float64(patients))
}

// RecordAlert counts one fired clinical alert.
func RecordAlert(severity string) {
	alertsFired.WithLabelValues(severity).Inc()
}

// RecordModelLoad counts one model artifact load.
func RecordModelLoad(riskType string) {
	modelLoads.WithLabelValues(riskType).Inc()
}

// RecordModelEviction counts one model cache eviction.
func RecordModelEviction() {
	modelEvictions.Inc()
}

// RecordHTTPRequest counts one handled HTTP request.
func RecordHTTPRequest(route, method, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, method, status).Inc()
	httpDuration.WithLabelValues(route).Observe(float64(elapsed) / float64(time.Millisecond))
}

// Handler serves the metrics registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
