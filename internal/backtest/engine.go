// Package backtest validates a trained model bundle against historical
// data via walk-forward trade simulation. The engine replays labeled rows
// through the predictor in input order, accounts per-row PnL net of a
// flat cost, and aggregates classification and trading metrics into a
// single run summary.
package backtest

import (
	"fmt"
	"time"
)

// profitFactorEpsilon floors the loss denominator so a run with no losing
// rows reports a large finite profit factor instead of dividing by zero.
const profitFactorEpsilon = 1e-9

// Costs is the flat per-row transaction cost model in basis points.
type Costs struct {
	FeeBps      float64 `json:"feeBps"`
	SlippageBps float64 `json:"slippageBps"`
	FundingBps  float64 `json:"fundingBps"`
}

// PerRow returns the cost fraction subtracted from every row's gross PnL.
func (c Costs) PerRow() float64 {
	return (c.FeeBps + c.SlippageBps + c.FundingBps) / 10000
}

// TradeResult is one simulated row: realized PnL net of cost and the
// predicted direction that produced it.
type TradeResult struct {
	PnL       float64 `json:"pnl"`
	Direction string  `json:"direction"`
}

// Summary aggregates one backtest run: classification metrics comparing
// predictions against ground truth, and trading metrics from the per-row
// PnL accounting. Both are reported together; they are orthogonal.
type Summary struct {
	ModelVersion string    `json:"modelVersion"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	Horizon      string    `json:"horizon"`
	Rows         int       `json:"rows"`
	Costs        Costs     `json:"costs"`
	GeneratedAt  time.Time `json:"generatedAt"`

	// Classification metrics (weighted across classes)
	Accuracy        float64  `json:"accuracy"`
	Precision       float64  `json:"precision"`
	Recall          float64  `json:"recall"`
	F1              float64  `json:"f1"`
	Classes         []string `json:"classes"`
	ConfusionMatrix [][]int  `json:"confusionMatrix"`

	// Trading metrics
	CumulativePnL float64       `json:"cumulativePnL"`
	ProfitFactor  float64       `json:"profitFactor"`
	MaxDrawdown   float64       `json:"maxDrawdown"`
	EquityCurve   []float64     `json:"equityCurve"`
	Trades        []TradeResult `json:"trades,omitempty"`
}

// Simulate replays parallel rows and predictions through the trade
// accounting. For each row: a BUY prediction realizes the row's maximum
// future return, a SELL realizes the absolute minimum future return, and
// anything else realizes zero — all before the flat cost, which is
// subtracted from every row uniformly, HOLD rows included. Rows are
// processed strictly in input order; the equity curve and drawdown
// depend on it. Classification metrics are computed row-for-row against
// the ground-truth labels, ordered by the codec's class list.
func Simulate(rows []Row, predictions []string, classes []string, costs Costs) (*Summary, error) {
	if len(rows) != len(predictions) {
		return nil, fmt.Errorf("rows and predictions are not parallel: %d rows, %d predictions", len(rows), len(predictions))
	}

	cost := costs.PerRow()
	trades := make([]TradeResult, len(rows))
	equity := make([]float64, 0, len(rows)+1)
	equity = append(equity, 0)

	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0
	grossGains := 0.0
	grossLosses := 0.0

	for i, row := range rows {
		var gross float64
		switch predictions[i] {
		case "BUY":
			gross = row.MaxFutureReturn
		case "SELL":
			if row.MinFutureReturn < 0 {
				gross = -row.MinFutureReturn
			} else {
				gross = row.MinFutureReturn
			}
		}
		pnl := gross - cost
		trades[i] = TradeResult{PnL: pnl, Direction: predictions[i]}

		if pnl > 0 {
			grossGains += pnl
		} else if pnl < 0 {
			grossLosses += -pnl
		}

		cumulative += pnl
		equity = append(equity, cumulative)
		if cumulative > peak {
			peak = cumulative
		}
		if dd := cumulative - peak; dd < maxDrawdown {
			maxDrawdown = dd
		}
	}

	denominator := grossLosses
	if denominator < profitFactorEpsilon {
		denominator = profitFactorEpsilon
	}

	actual := make([]string, len(rows))
	for i, row := range rows {
		actual[i] = row.Label
	}
	report := classificationReport(actual, predictions, classes)

	return &Summary{
		Rows:            len(rows),
		Costs:           costs,
		GeneratedAt:     time.Now(),
		Accuracy:        report.accuracy,
		Precision:       report.precision,
		Recall:          report.recall,
		F1:              report.f1,
		Classes:         classes,
		ConfusionMatrix: report.confusion,
		CumulativePnL:   cumulative,
		ProfitFactor:    grossGains / denominator,
		MaxDrawdown:     maxDrawdown,
		EquityCurve:     equity,
		Trades:          trades,
	}, nil
}

// PrecisionRegressionError marks a run whose weighted precision fell
// below the caller's acceptance bar. It is terminal for the run: the CLI
// exits non-zero so promotion pipelines halt on it.
type PrecisionRegressionError struct {
	Precision float64
	Threshold float64
}

func (e *PrecisionRegressionError) Error() string {
	return fmt.Sprintf("precision regression: %.4f below required %.4f", e.Precision, e.Threshold)
}

// CheckPrecision validates the run against the acceptance threshold.
func (s *Summary) CheckPrecision(threshold float64) error {
	if s.Precision < threshold {
		return &PrecisionRegressionError{Precision: s.Precision, Threshold: threshold}
	}
	return nil
}
