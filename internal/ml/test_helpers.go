package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu              sync.Mutex
	predictions     map[string]int
	errors          int
	latencies       []float64
	confidences     []float64
	explainerMisses int
	anomalies       int
	bundleLoads     int
	modelAge        float64
}

func (m *MockMetrics) PredictionsInc(signal string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[string]int)
	}
	m.predictions[signal]++
}

func (m *MockMetrics) PredictionErrorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, v)
}

func (m *MockMetrics) PredictionConfidenceObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, v)
}

func (m *MockMetrics) ExplainerMissesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explainerMisses++
}

func (m *MockMetrics) AnomalousInputsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies++
}

func (m *MockMetrics) BundleLoadsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundleLoads++
}

func (m *MockMetrics) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

// Predictions returns the recorded count for a signal.
func (m *MockMetrics) Predictions(signal string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[signal]
}

// Errors returns the recorded prediction error count.
func (m *MockMetrics) Errors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

// BundleLoads returns the recorded bundle load count.
func (m *MockMetrics) BundleLoads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundleLoads
}
