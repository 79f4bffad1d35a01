package backtest

import (
	"fmt"

	"signalml/internal/ml"

	"github.com/rs/zerolog/log"
)

// Run replays a dataset through the predictor and simulates the
// resulting trades. The bundle is resolved through the registry; an
// unresolvable path is fatal for a validation run. Rows are predicted
// strictly in input order with their vectors built in trained-name
// order, absent columns zero-filled.
func Run(registry *ml.Registry, predictor *ml.Predictor, bundlePath string, ds *Dataset, costs Costs) (*Summary, error) {
	bundle, err := registry.GetBundle(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	if bundle == nil {
		return nil, ml.ErrNotReady
	}

	log.Info().
		Str("model_version", bundle.Metadata.ModelVersion).
		Int("rows", len(ds.Rows)).
		Msg("Starting walk-forward backtest")

	predictions := make([]string, len(ds.Rows))
	for i := range ds.Rows {
		pred, err := predictor.Predict(bundle, ds.Vector(i, bundle.FeatureNames))
		if err != nil {
			return nil, fmt.Errorf("prediction failed at row %d: %w", i, err)
		}
		predictions[i] = pred.Signal
	}

	summary, err := Simulate(ds.Rows, predictions, bundle.Classes, costs)
	if err != nil {
		return nil, err
	}

	summary.ModelVersion = bundle.Metadata.ModelVersion
	summary.Symbol = bundle.Metadata.Symbol
	summary.Timeframe = bundle.Metadata.Timeframe
	summary.Horizon = bundle.Metadata.Horizon
	return summary, nil
}
