package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

func testFeatureNames() []string {
	return []string{"rsi_14", "taker_imbalance_buy", "orderbook_spread", "funding_rate"}
}

func centerFor(class int) float64 {
	return float64(class*6) - 6
}

// probeVector sits at the center of a class cluster.
func probeVector(class int) []float64 {
	dim := len(testFeatureNames())
	v := make([]float64, dim)
	for d := range v {
		v[d] = centerFor(class)
	}
	return v
}

// trainTestClassifier fits a small boosted model over well-separated
// clusters, one per class.
func trainTestClassifier(t *testing.T, classes []string) string {
	t.Helper()

	dim := len(testFeatureNames())
	var data [][]float64
	var labels []int
	for ci := range classes {
		center := centerFor(ci)
		for s := 0; s < 60; s++ {
			row := make([]float64, dim)
			for d := 0; d < dim; d++ {
				row[d] = center + float64((s+d)%7)*0.04
			}
			data = append(data, row)
			labels = append(labels, ci)
		}
	}

	o := boo.DefaultXOptions()
	o.Rounds = 30
	o.LearningRate = 0.1
	o.MaxDepth = 3
	o.Verbose = false
	o.EarlyStop = 0

	model := boo.NewMultiClass(&utils.DataBunch{Data: data, Labels: labels, Keys: testFeatureNames()}, o)
	if model == nil {
		t.Fatal("failed to train test classifier")
	}

	var buf bytes.Buffer
	if err := boo.JSONMultiClass(model, "softmax", &buf); err != nil {
		t.Fatalf("failed to serialize test classifier: %v", err)
	}
	return buf.String()
}

func onesVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// testBundleJSON builds a complete serialized bundle artifact with an
// identity scaler, so probe vectors hit the classifier unchanged.
func testBundleJSON(t *testing.T, classes []string, trees *TreeEnsemble, background [][]float64) []byte {
	t.Helper()

	names := testFeatureNames()
	f := bundleFile{
		FeatureNames: names,
		Classes:      classes,
		Scaler:       Scaler{Mean: make([]float64, len(names)), Scale: onesVector(len(names))},
		ModelText:    trainTestClassifier(t, classes),
		Metadata: Metadata{
			ModelVersion:  "BTCUSDT_5m_15m_20250801_120000",
			Symbol:        "BTCUSDT",
			Timeframe:     "5m",
			Horizon:       "15m",
			AccuracyRange: "80-85%",
			TrainedAt:     time.Now().Add(-2 * time.Hour),
			Metrics:       map[string]float64{"accuracy": 0.83, "precision": 0.81},
		},
		Trees:      trees,
		Background: background,
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("failed to marshal test bundle: %v", err)
	}
	return data
}

func writeTestBundle(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_bundle.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write test bundle: %v", err)
	}
	return path
}

func TestLoadBundle(t *testing.T) {
	classes := []string{"BUY", "SELL", "HOLD"}
	path := writeTestBundle(t, testBundleJSON(t, classes, nil, nil))

	b, err := LoadBundle(path)
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}

	if b.Path != path {
		t.Errorf("expected path %q, got %q", path, b.Path)
	}
	if len(b.FeatureNames) != 4 {
		t.Errorf("expected 4 feature names, got %d", len(b.FeatureNames))
	}
	if len(b.Classes) != 3 {
		t.Errorf("expected 3 classes, got %d", len(b.Classes))
	}
	if b.Metadata.ModelVersion != "BTCUSDT_5m_15m_20250801_120000" {
		t.Errorf("unexpected model version %q", b.Metadata.ModelVersion)
	}
	if b.Metadata.AccuracyRange != "80-85%" {
		t.Errorf("unexpected accuracy range %q", b.Metadata.AccuracyRange)
	}
	if b.Age() <= 0 {
		t.Errorf("expected positive model age, got %v", b.Age())
	}
}

func TestBundleProbabilities(t *testing.T) {
	classes := []string{"BUY", "SELL", "HOLD"}
	b, err := LoadBundle(writeTestBundle(t, testBundleJSON(t, classes, nil, nil)))
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}

	for want := range classes {
		probs, err := b.Probabilities(probeVector(want))
		if err != nil {
			t.Fatalf("Probabilities failed for class %d: %v", want, err)
		}
		if len(probs) != len(classes) {
			t.Fatalf("expected %d probabilities, got %d", len(classes), len(probs))
		}
		argmax := 0
		for i, p := range probs {
			if p < 0 || p > 1 {
				t.Errorf("probability %d outside [0,1]: %f", i, p)
			}
			if p > probs[argmax] {
				argmax = i
			}
		}
		if argmax != want {
			t.Errorf("probe for class %d selected class %d (probs %v)", want, argmax, probs)
		}
	}
}

func TestBundleProbabilitiesDimensionMismatch(t *testing.T) {
	b, err := LoadBundle(writeTestBundle(t, testBundleJSON(t, []string{"BUY", "SELL"}, nil, nil)))
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}

	if _, err := b.Probabilities([]float64{1, 2}); !errors.Is(err, ErrFeatureCountMismatch) {
		t.Errorf("expected ErrFeatureCountMismatch, got %v", err)
	}
}

func TestLoadBundleMissingCapabilities(t *testing.T) {
	base := testBundleJSON(t, []string{"BUY", "SELL"}, nil, nil)

	tests := []struct {
		name    string
		mutate  func(map[string]json.RawMessage)
		wantMsg string
	}{
		{"no feature names", func(m map[string]json.RawMessage) { delete(m, "featureNames") }, "missing feature names"},
		{"no classifier", func(m map[string]json.RawMessage) { delete(m, "model") }, "missing classifier model"},
		{"no classes", func(m map[string]json.RawMessage) { delete(m, "classes") }, "missing class list"},
		{"no scaler", func(m map[string]json.RawMessage) { delete(m, "scaler") }, "missing scaler statistics"},
		{
			"scaler dimension mismatch",
			func(m map[string]json.RawMessage) {
				m["scaler"] = json.RawMessage(`{"mean":[0,0],"scale":[1,1]}`)
			},
			"do not match",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var m map[string]json.RawMessage
			if err := json.Unmarshal(base, &m); err != nil {
				t.Fatalf("failed to unmarshal base bundle: %v", err)
			}
			tc.mutate(m)
			mutated, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("failed to marshal mutated bundle: %v", err)
			}

			_, err = LoadBundle(writeTestBundle(t, mutated))
			if err == nil {
				t.Fatal("expected load to fail")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestLoadBundleCorruptFile(t *testing.T) {
	path := writeTestBundle(t, []byte("not json at all"))
	if _, err := LoadBundle(path); err == nil {
		t.Fatal("expected load of corrupt artifact to fail")
	}
}

func TestScalerTransform(t *testing.T) {
	s := Scaler{Mean: []float64{10, 0, -5}, Scale: []float64{2, 1, 5}}

	got, err := s.Transform([]float64{14, 3, -5})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	want := []float64{2, 3, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dimension %d: expected %f, got %f", i, want[i], got[i])
		}
	}

	if _, err := s.Transform([]float64{1, 2}); !errors.Is(err, ErrFeatureCountMismatch) {
		t.Errorf("expected ErrFeatureCountMismatch, got %v", err)
	}
}

func TestScalerZeroScaleNormalized(t *testing.T) {
	raw := testBundleJSON(t, []string{"BUY", "SELL"}, nil, nil)

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("failed to unmarshal bundle: %v", err)
	}
	m["scaler"] = json.RawMessage(`{"mean":[0,0,0,0],"scale":[1,0,1,0]}`)
	mutated, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal bundle: %v", err)
	}

	b, err := LoadBundle(writeTestBundle(t, mutated))
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	for i, sc := range b.Scaler.Scale {
		if sc == 0 {
			t.Errorf("scale entry %d still zero after load", i)
		}
	}
}

func TestBundleClassIndex(t *testing.T) {
	b, err := LoadBundle(writeTestBundle(t, testBundleJSON(t, []string{"BUY", "SELL"}, nil, nil)))
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}

	if i := b.ClassIndex("SELL"); i != 1 {
		t.Errorf("expected SELL at index 1, got %d", i)
	}
	if i := b.ClassIndex("HOLD"); i != -1 {
		t.Errorf("expected -1 for untrained label, got %d", i)
	}
}
