package backtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signalml/internal/ml"
	"signalml/internal/storage"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

var driverFeatures = []string{"binance_close", "orderbook_spread"}

func driverCenter(class int) float64 {
	return float64(class*6) - 6
}

// writeDriverBundle trains a tiny boosted model over well-separated
// clusters and writes a full bundle artifact for it.
func writeDriverBundle(t *testing.T, classes []string) string {
	t.Helper()

	var data [][]float64
	var labels []int
	for ci := range classes {
		for s := 0; s < 60; s++ {
			center := driverCenter(ci)
			data = append(data, []float64{center + float64(s%5)*0.05, center - float64(s%3)*0.05})
			labels = append(labels, ci)
		}
	}

	o := boo.DefaultXOptions()
	o.Rounds = 30
	o.LearningRate = 0.1
	o.MaxDepth = 3
	o.Verbose = false
	o.EarlyStop = 0

	model := boo.NewMultiClass(&utils.DataBunch{Data: data, Labels: labels, Keys: driverFeatures}, o)
	if model == nil {
		t.Fatal("failed to train test classifier")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(model, "softmax", &buf); err != nil {
		t.Fatalf("failed to serialize classifier: %v", err)
	}

	artifact := map[string]any{
		"featureNames": driverFeatures,
		"classes":      classes,
		"scaler":       map[string]any{"mean": []float64{0, 0}, "scale": []float64{1, 1}},
		"model":        buf.String(),
		"metadata": map[string]any{
			"modelVersion":  "BTCUSDT_5m_15m_20250801_120000",
			"symbol":        "BTCUSDT",
			"timeframe":     "5m",
			"horizon":       "15m",
			"accuracyRange": "80-85%",
			"trainedAt":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("failed to marshal bundle: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model_bundle.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("failed to write bundle: %v", err)
	}
	return path
}

// driverDataset puts every row at the center of its label's cluster so
// the trained model recovers the labels exactly.
func driverDataset(classes []string, perClass int) *Dataset {
	ds := &Dataset{FeatureNames: driverFeatures}
	ts := int64(1722500000000)
	for ci, label := range classes {
		center := driverCenter(ci)
		for s := 0; s < perClass; s++ {
			ds.Rows = append(ds.Rows, Row{
				Timestamp:       ts,
				Symbol:          "BTCUSDT",
				Label:           label,
				MaxFutureReturn: 0.01,
				MinFutureReturn: -0.01,
				Features: map[string]float64{
					"binance_close":    center,
					"orderbook_spread": center,
				},
			})
			ts += 60000
		}
	}
	return ds
}

func TestRunWalkForward(t *testing.T) {
	classes := []string{"BUY", "SELL", "HOLD"}
	bundlePath := writeDriverBundle(t, classes)

	registry := ml.NewRegistry(0.65, nil)
	predictor := ml.NewPredictor(nil)
	ds := driverDataset(classes, 10)

	summary, err := Run(registry, predictor, bundlePath, ds, Costs{FeeBps: 7.5, SlippageBps: 5, FundingBps: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.ModelVersion != "BTCUSDT_5m_15m_20250801_120000" {
		t.Errorf("summary missing model version, got %q", summary.ModelVersion)
	}
	if summary.Rows != 30 {
		t.Errorf("expected 30 rows, got %d", summary.Rows)
	}
	if len(summary.EquityCurve) != 31 {
		t.Errorf("expected 31 equity points, got %d", len(summary.EquityCurve))
	}
	if summary.Accuracy < 0.95 {
		t.Errorf("expected near-perfect recovery on separated clusters, accuracy %f", summary.Accuracy)
	}
	if err := summary.CheckPrecision(0.9); err != nil {
		t.Errorf("expected precision check to pass: %v", err)
	}
}

func TestRunMissingBundle(t *testing.T) {
	registry := ml.NewRegistry(0.65, nil)
	predictor := ml.NewPredictor(nil)

	_, err := Run(registry, predictor, filepath.Join(t.TempDir(), "absent.json"), driverDataset([]string{"BUY"}, 1), Costs{})
	if !errors.Is(err, ml.ErrNotReady) {
		t.Fatalf("expected ErrNotReady for missing bundle, got %v", err)
	}
}

func TestReporterWritesVersionedArtifact(t *testing.T) {
	resultsPath := t.TempDir()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	summary := &Summary{
		ModelVersion: "BTCUSDT_5m_15m_20250801_120000",
		Symbol:       "BTCUSDT",
		Rows:         3,
		Precision:    0.85,
		GeneratedAt:  time.Date(2025, 8, 2, 9, 30, 0, 0, time.UTC),
		EquityCurve:  []float64{0, 0.01},
		Classes:      []string{"BUY", "SELL", "HOLD"},
	}

	reporter := NewReporter(resultsPath, store)
	path, err := reporter.Write(summary)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	wantPath := filepath.Join(resultsPath, summary.ModelVersion, "backtest_20250802_093000.json")
	if path != wantPath {
		t.Errorf("expected artifact at %q, got %q", wantPath, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if decoded.Precision != 0.85 {
		t.Errorf("expected precision 0.85 in artifact, got %f", decoded.Precision)
	}

	runs, err := store.BacktestHistory(summary.ModelVersion)
	if err != nil {
		t.Fatalf("BacktestHistory failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 history record, got %d", len(runs))
	}
}
