package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"signalml/internal/storage"

	"github.com/rs/zerolog/log"
)

// Reporter persists backtest run summaries as versioned JSON artifacts
// and optionally records them in the history store.
type Reporter struct {
	resultsPath string
	store       *storage.Store
}

// NewReporter creates a reporter writing under resultsPath. The store
// may be nil; history recording is then skipped.
func NewReporter(resultsPath string, store *storage.Store) *Reporter {
	return &Reporter{resultsPath: resultsPath, store: store}
}

// Write persists the summary to
// <results>/<modelVersion>/backtest_<timestamp>.json and appends it to
// the history bucket. Returns the artifact path.
func (r *Reporter) Write(summary *Summary) (string, error) {
	dir := filepath.Join(r.resultsPath, summary.ModelVersion)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("backtest_%s.json", summary.GeneratedAt.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if err := r.store.StoreBacktest(summary.ModelVersion, summary); err != nil {
		log.Warn().Err(err).Msg("Failed to record backtest in history store")
	}

	log.Info().Str("file", path).Msg("Backtest report written")
	return path, nil
}

// PrintSummary prints a run summary to the console.
func (r *Reporter) PrintSummary(s *Summary) {
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Model: %s (%s %s, horizon %s)\n", s.ModelVersion, s.Symbol, s.Timeframe, s.Horizon)
	fmt.Printf("Rows: %d\n", s.Rows)
	fmt.Printf("Accuracy: %.4f\n", s.Accuracy)
	fmt.Printf("Precision: %.4f  Recall: %.4f  F1: %.4f\n", s.Precision, s.Recall, s.F1)
	fmt.Printf("Cumulative PnL: %.5f\n", s.CumulativePnL)
	fmt.Printf("Profit Factor: %.2f\n", s.ProfitFactor)
	fmt.Printf("Max Drawdown: %.5f\n", s.MaxDrawdown)
	fmt.Printf("Confusion matrix (%v):\n", s.Classes)
	for i, row := range s.ConfusionMatrix {
		fmt.Printf("  %-5s %v\n", s.Classes[i], row)
	}
	fmt.Println("========================")
}
