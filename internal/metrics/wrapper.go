package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is the narrow gauge surface consumed outside this package,
// avoiding a Prometheus import there.
type Gauge interface {
	Set(float64)
}

// MetricsWrapper adapts the Prometheus instruments to the narrow method set
// consumed by the inference packages, which must not import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(signal string) {
	w.m.PredictionsTotal.WithLabelValues(signal).Inc()
}

func (w *MetricsWrapper) PredictionErrorsInc() {
	w.m.PredictionErrors.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(v float64) {
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) PredictionConfidenceObserve(v float64) {
	w.m.PredictionConfidence.Observe(v)
}

func (w *MetricsWrapper) ExplainerMissesInc() {
	w.m.ExplainerMisses.Inc()
}

func (w *MetricsWrapper) AnomalousInputsInc() {
	w.m.AnomalousInputs.Inc()
}

func (w *MetricsWrapper) BundleLoadsInc() {
	w.m.BundleLoads.Inc()
}

func (w *MetricsWrapper) ModelAgeSet(v float64) {
	w.m.ModelAge.Set(v)
}

// StreamClients exposes the stream client gauge to the websocket hub.
func (w *MetricsWrapper) StreamClients() Gauge {
	return &GaugeWrapper{w.m.StreamClients}
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}
