package ml

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rmera/boo"
)

// Metadata describes the trained model carried by a bundle.
type Metadata struct {
	ModelVersion  string             `json:"modelVersion"`
	Symbol        string             `json:"symbol"`
	Timeframe     string             `json:"timeframe"`
	Horizon       string             `json:"horizon"`
	AccuracyRange string             `json:"accuracyRange"`
	TrainedAt     time.Time          `json:"trainedAt"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// Scaler holds the standardization statistics fit at training time.
// Transform never refits; a degenerate zero scale entry is replaced by 1
// at load time.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes a raw vector using the stored statistics.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if len(v) != len(s.Mean) {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrFeatureCountMismatch, len(s.Mean), len(v))
	}
	out := make([]float64, len(v))
	for i := range v {
		out[i] = (v[i] - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// bundleFile is the on-disk JSON layout of a model bundle artifact.
type bundleFile struct {
	FeatureNames []string      `json:"featureNames"`
	Classes      []string      `json:"classes"`
	Scaler       Scaler        `json:"scaler"`
	ModelText    string        `json:"model"`
	Metadata     Metadata      `json:"metadata"`
	Trees        *TreeEnsemble `json:"trees,omitempty"`
	Background   [][]float64   `json:"background,omitempty"`
}

// Bundle is a loaded, immutable model artifact: scaler, calibrated
// ensemble classifier, label codec, trained feature names, metadata and
// the optional explainer/anomaly inputs.
type Bundle struct {
	Path         string
	FeatureNames []string
	Classes      []string
	Scaler       Scaler
	Metadata     Metadata
	Trees        *TreeEnsemble
	Background   [][]float64

	model *boo.MultiClass
	// slots maps the classifier's output positions onto indices into
	// Classes (the codec ordering).
	slots []int
}

// LoadBundle reads and validates a bundle artifact from disk. Missing
// required capabilities fail here, not mid-prediction.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}
	return parseBundle(data, path)
}

func parseBundle(data []byte, path string) (*Bundle, error) {
	var f bundleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse bundle %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle %s: %w", path, err)
	}

	model, err := boo.UnJSONMultiClass(bufio.NewReader(bytes.NewReader([]byte(f.ModelText))))
	if err != nil {
		return nil, fmt.Errorf("failed to decode classifier in bundle %s: %w", path, err)
	}

	slots := model.ClassLabels()
	for _, s := range slots {
		if s < 0 || s >= len(f.Classes) {
			return nil, fmt.Errorf("invalid bundle %s: classifier label %d outside class list of %d", path, s, len(f.Classes))
		}
	}

	for i, sc := range f.Scaler.Scale {
		if sc == 0 {
			f.Scaler.Scale[i] = 1
		}
	}

	return &Bundle{
		Path:         path,
		FeatureNames: f.FeatureNames,
		Classes:      f.Classes,
		Scaler:       f.Scaler,
		Metadata:     f.Metadata,
		Trees:        f.Trees,
		Background:   f.Background,
		model:        model,
		slots:        append([]int(nil), slots...),
	}, nil
}

func (f *bundleFile) validate() error {
	if len(f.FeatureNames) == 0 {
		return fmt.Errorf("missing feature names")
	}
	if f.ModelText == "" {
		return fmt.Errorf("missing classifier model")
	}
	if len(f.Classes) == 0 {
		return fmt.Errorf("missing class list")
	}
	if len(f.Scaler.Mean) == 0 || len(f.Scaler.Scale) == 0 {
		return fmt.Errorf("missing scaler statistics")
	}
	if len(f.Scaler.Mean) != len(f.FeatureNames) || len(f.Scaler.Scale) != len(f.FeatureNames) {
		return fmt.Errorf("scaler dimensions %d/%d do not match %d feature names",
			len(f.Scaler.Mean), len(f.Scaler.Scale), len(f.FeatureNames))
	}
	for _, row := range f.Background {
		if len(row) != len(f.FeatureNames) {
			return fmt.Errorf("background row width %d does not match %d feature names", len(row), len(f.FeatureNames))
		}
	}
	return nil
}

// Probabilities returns the per-class probability distribution for a
// standardized vector, ordered by the bundle's class list.
func (b *Bundle) Probabilities(scaled []float64) ([]float64, error) {
	if len(scaled) != len(b.FeatureNames) {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrFeatureCountMismatch, len(b.FeatureNames), len(scaled))
	}
	raw := b.model.PredictSingle(scaled)
	if len(raw) != len(b.slots) {
		return nil, fmt.Errorf("classifier returned %d probabilities for %d classes", len(raw), len(b.slots))
	}
	out := make([]float64, len(b.Classes))
	for i, p := range raw {
		out[b.slots[i]] = clamp01(p)
	}
	return out, nil
}

// ClassIndex returns the codec index for a signal name, -1 when the
// label was not trained.
func (b *Bundle) ClassIndex(label string) int {
	for i, c := range b.Classes {
		if c == label {
			return i
		}
	}
	return -1
}

// Age reports how long ago the bundle's model was trained.
func (b *Bundle) Age() time.Duration {
	if b.Metadata.TrainedAt.IsZero() {
		return 0
	}
	return time.Since(b.Metadata.TrainedAt)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
