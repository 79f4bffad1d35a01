// Package metrics provides Prometheus metrics collection for the signal service.
// It defines and manages all inference, explanation, and system metrics that are
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
//
// The package includes metrics for prediction throughput and latency, confidence
// distribution, explainer availability, input anomaly detection, and the
// prediction stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the signal service.
// It provides counters, gauges, and histograms for comprehensive monitoring
// of the inference path and its side channels.
type Metrics struct {
	// Inference metrics
	PredictionsTotal     *prometheus.CounterVec // Predictions served, labeled by signal
	PredictionErrors     prometheus.Counter     // Failed prediction requests
	PredictionLatency    prometheus.Histogram   // End-to-end predict latency in seconds
	PredictionConfidence prometheus.Histogram   // Distribution of served confidence scores

	// Explanation and input-quality metrics
	ExplainerMisses prometheus.Counter // Predictions served without an explanation
	AnomalousInputs prometheus.Counter // Inference vectors flagged by the anomaly monitor

	// Model lifecycle metrics
	BundleLoads prometheus.Counter // Model bundles loaded from disk
	ModelAge    prometheus.Gauge   // Age of the serving model in seconds

	// Stream metrics
	StreamClients prometheus.Gauge // Connected websocket stream clients

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served, labeled by signal",
		}, []string{"signal"}),
		PredictionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed prediction requests",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		PredictionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of served confidence scores (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		ExplainerMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "explainer_misses_total",
			Help: "Total number of predictions served without an explanation",
		}),
		AnomalousInputs: factory.NewCounter(prometheus.CounterOpts{
			Name: "anomalous_inputs_total",
			Help: "Total number of inference vectors flagged as anomalous",
		}),
		BundleLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "bundle_loads_total",
			Help: "Total number of model bundles loaded from disk",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the serving model in seconds",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected prediction stream clients",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
