package ml

import (
	"fmt"

	"github.com/narumiruna/go-iforest/pkg/iforest"
)

// AnomalyMonitor scores standardized inference vectors against the
// training distribution using an isolation forest fit on the bundle's
// background sample. Purely observational: it never changes or rejects
// a prediction.
type AnomalyMonitor struct {
	forest    *iforest.IsolationForest
	threshold float64
	dim       int
}

// NewAnomalyMonitor fits the forest over the background sample. A
// bundle without a background sample has no monitor.
func NewAnomalyMonitor(background [][]float64, threshold float64) (*AnomalyMonitor, error) {
	if len(background) == 0 {
		return nil, fmt.Errorf("no background sample in bundle")
	}
	forest := iforest.New()
	forest.Fit(background)
	return &AnomalyMonitor{
		forest:    forest,
		threshold: threshold,
		dim:       len(background[0]),
	}, nil
}

// Score returns the anomaly score for a standardized vector, higher
// meaning further from the training distribution.
func (a *AnomalyMonitor) Score(scaled []float64) float64 {
	if a == nil || a.forest == nil || len(scaled) != a.dim {
		return 0
	}
	scores := a.forest.Score([][]float64{scaled})
	if len(scores) == 0 {
		return 0
	}
	return scores[0]
}

// Anomalous reports whether a score crosses the configured threshold.
func (a *AnomalyMonitor) Anomalous(score float64) bool {
	return a != nil && score >= a.threshold
}
