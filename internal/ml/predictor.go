package ml

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Canonical three-way signal taxonomy. A bundle's trained class set may
// be smaller than this trio or contain labels outside it.
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// MetricsInterface defines metrics methods needed by the inference path
type MetricsInterface interface {
	PredictionsInc(signal string)
	PredictionErrorsInc()
	PredictionLatencyObserve(float64)
	PredictionConfidenceObserve(float64)
	ExplainerMissesInc()
	AnomalousInputsInc()
	BundleLoadsInc()
	ModelAgeSet(float64)
}

// Prediction is the outcome of one inference call.
type Prediction struct {
	Signal      string
	Probability float64
	Confidence  int
	ClassIndex  int
	// Probabilities holds exactly the canonical BUY/SELL/HOLD keys; a
	// key maps to nil when that label is not among the trained classes.
	Probabilities map[string]*float64
	// Scaled is the standardized vector the classifier consumed, kept
	// for the explainer and the anomaly monitor.
	Scaled []float64
}

// Predictor runs the scaled ensemble prediction step. It is stateless
// per call; a nil metrics sink disables instrumentation.
type Predictor struct {
	metrics MetricsInterface
}

func NewPredictor(metrics MetricsInterface) *Predictor {
	return &Predictor{metrics: metrics}
}

// Predict standardizes the aligned vector through the bundle's scaler,
// obtains per-class probabilities from the calibrated ensemble, selects
// the class by stable argmax (ties keep the first index) and decodes it
// through the codec. Confidence is the selected probability floored to
// an integer percentage.
func (p *Predictor) Predict(b *Bundle, vector []float64) (*Prediction, error) {
	start := time.Now()

	if b == nil {
		return nil, ErrNotReady
	}
	if len(vector) == 0 {
		return nil, ErrNoFeatures
	}

	scaled, err := b.Scaler.Transform(vector)
	if err != nil {
		p.fail()
		return nil, err
	}

	probs, err := b.Probabilities(scaled)
	if err != nil {
		p.fail()
		log.Error().Err(err).Str("model_version", b.Metadata.ModelVersion).Msg("Classifier failed to produce probabilities")
		return nil, fmt.Errorf("classifier prediction failed: %w", err)
	}

	idx := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[idx] {
			idx = i
		}
	}

	selected := probs[idx]
	pred := &Prediction{
		Signal:        b.Classes[idx],
		Probability:   selected,
		Confidence:    int(math.Floor(selected * 100)),
		ClassIndex:    idx,
		Probabilities: canonicalProbabilities(b, probs),
		Scaled:        scaled,
	}

	if p.metrics != nil {
		p.metrics.PredictionsInc(pred.Signal)
		p.metrics.PredictionConfidenceObserve(float64(pred.Confidence))
		p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		if age := b.Age(); age > 0 {
			p.metrics.ModelAgeSet(age.Seconds())
		}
	}

	return pred, nil
}

// canonicalProbabilities builds the fixed-shape BUY/SELL/HOLD map.
// Untrained labels stay present with a nil value, never an error.
func canonicalProbabilities(b *Bundle, probs []float64) map[string]*float64 {
	out := map[string]*float64{
		SignalBuy:  nil,
		SignalSell: nil,
		SignalHold: nil,
	}
	for key := range out {
		if i := b.ClassIndex(key); i >= 0 {
			v := probs[i]
			out[key] = &v
		}
	}
	return out
}

func (p *Predictor) fail() {
	if p.metrics != nil {
		p.metrics.PredictionErrorsInc()
	}
}
