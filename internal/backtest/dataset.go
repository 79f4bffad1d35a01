package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Row is one labeled historical observation: the feature columns by
// name, the ground-truth label, and the recorded future-return fields
// consumed by the trade simulation.
type Row struct {
	Timestamp       int64 // milliseconds
	Symbol          string
	Timeframe       string
	HorizonMinutes  float64
	Label           string
	MaxFutureReturn float64
	MinFutureReturn float64
	Features        map[string]float64
}

// Dataset is an ordered set of labeled rows plus the feature column
// names discovered in the source, in column order.
type Dataset struct {
	Rows         []Row
	FeatureNames []string
}

// excludedColumns are the canonical non-feature columns of a training
// export. Everything else in the header is treated as a feature.
var excludedColumns = map[string]bool{
	"label":             true,
	"hit_tp_flag":       true,
	"hit_sl_flag":       true,
	"max_future_return": true,
	"min_future_return": true,
	"timestamp":         true,
	"horizon_minutes":   true,
	"symbol":            true,
	"timeframe":         true,
}

// DatasetPath returns the conventional location of a training export.
func DatasetPath(dataPath, symbol, timeframe, horizon string) string {
	return filepath.Join(dataPath, symbol, fmt.Sprintf("%s_%s_%s.csv", symbol, timeframe, horizon))
}

// LoadCSV loads a labeled dataset from a training export. Rows are
// sorted by timestamp so the walk-forward replay advances through time.
// Rows with an unparsable timestamp or no label are skipped.
func LoadCSV(filePath string) (*Dataset, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	// Map header indices
	indices := make(map[string]int, len(header))
	var featureNames []string
	for i, col := range header {
		indices[col] = i
		if !excludedColumns[col] {
			featureNames = append(featureNames, col)
		}
	}
	if _, ok := indices["label"]; !ok {
		return nil, fmt.Errorf("dataset %s has no label column", filePath)
	}

	ds := &Dataset{FeatureNames: featureNames}
	for {
		record, err := reader.Read()
		if err != nil {
			break // EOF or malformed tail
		}

		row := Row{Features: make(map[string]float64, len(featureNames))}

		if idx, ok := indices["timestamp"]; ok {
			ts, err := strconv.ParseInt(record[idx], 10, 64)
			if err != nil {
				continue
			}
			row.Timestamp = ts
		}
		row.Label = column(record, indices, "label")
		if row.Label == "" {
			continue
		}
		row.Symbol = column(record, indices, "symbol")
		row.Timeframe = column(record, indices, "timeframe")
		row.HorizonMinutes = floatColumn(record, indices, "horizon_minutes")
		row.MaxFutureReturn = floatColumn(record, indices, "max_future_return")
		row.MinFutureReturn = floatColumn(record, indices, "min_future_return")

		for _, name := range featureNames {
			row.Features[name] = floatColumn(record, indices, name)
		}

		ds.Rows = append(ds.Rows, row)
	}

	sort.SliceStable(ds.Rows, func(i, j int) bool {
		return ds.Rows[i].Timestamp < ds.Rows[j].Timestamp
	})

	log.Info().
		Str("file", filePath).
		Int("rows", len(ds.Rows)).
		Int("features", len(ds.FeatureNames)).
		Msg("Dataset loaded")

	return ds, nil
}

// TrailingDays keeps only rows within the final N days of the dataset,
// measured back from the latest timestamp. Zero or negative days keep
// everything.
func (d *Dataset) TrailingDays(days int) *Dataset {
	if days <= 0 || len(d.Rows) == 0 {
		return d
	}

	latest := d.Rows[len(d.Rows)-1].Timestamp
	cutoff := latest - int64(days)*86400000

	trimmed := &Dataset{FeatureNames: d.FeatureNames}
	for _, row := range d.Rows {
		if row.Timestamp >= cutoff {
			trimmed.Rows = append(trimmed.Rows, row)
		}
	}
	return trimmed
}

// Vector builds row i's feature vector in trained-name order. Columns
// the dataset does not carry are zero-filled, matching the aligner's
// contract for absent features.
func (d *Dataset) Vector(i int, trainedNames []string) []float64 {
	v := make([]float64, len(trainedNames))
	for j, name := range trainedNames {
		v[j] = d.Rows[i].Features[name]
	}
	return v
}

func column(record []string, indices map[string]int, name string) string {
	if idx, ok := indices[name]; ok && idx < len(record) {
		return record[idx]
	}
	return ""
}

func floatColumn(record []string, indices map[string]int, name string) float64 {
	if idx, ok := indices[name]; ok && idx < len(record) {
		if f, err := strconv.ParseFloat(record[idx], 64); err == nil {
			return f
		}
	}
	return 0
}
