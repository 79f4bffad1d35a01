package backtest

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSimulateReferenceScenario(t *testing.T) {
	rows := []Row{
		{Label: "BUY", MaxFutureReturn: 0.02},
		{Label: "SELL", MinFutureReturn: -0.03},
		{Label: "HOLD"},
	}
	predictions := []string{"BUY", "SELL", "HOLD"}
	costs := Costs{FeeBps: 7.5, SlippageBps: 5, FundingBps: 1}

	summary, err := Simulate(rows, predictions, []string{"BUY", "SELL", "HOLD"}, costs)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	wantPnL := []float64{0.01865, 0.02865, -0.00135}
	for i, want := range wantPnL {
		if !almostEqual(summary.Trades[i].PnL, want, 1e-5) {
			t.Errorf("row %d: expected pnl %.5f, got %.5f", i, want, summary.Trades[i].PnL)
		}
	}

	wantEquity := []float64{0, 0.01865, 0.0473, 0.04595}
	if len(summary.EquityCurve) != len(wantEquity) {
		t.Fatalf("expected equity curve of %d points, got %d", len(wantEquity), len(summary.EquityCurve))
	}
	for i, want := range wantEquity {
		if !almostEqual(summary.EquityCurve[i], want, 1e-5) {
			t.Errorf("equity point %d: expected %.5f, got %.5f", i, want, summary.EquityCurve[i])
		}
	}

	if !almostEqual(summary.MaxDrawdown, -0.00135, 1e-5) {
		t.Errorf("expected max drawdown -0.00135, got %.5f", summary.MaxDrawdown)
	}
	if !almostEqual(summary.CumulativePnL, 0.04595, 1e-5) {
		t.Errorf("expected cumulative pnl 0.04595, got %.5f", summary.CumulativePnL)
	}

	// All three predictions matched their labels
	if summary.Accuracy != 1 {
		t.Errorf("expected accuracy 1, got %f", summary.Accuracy)
	}
	if summary.Precision != 1 {
		t.Errorf("expected precision 1, got %f", summary.Precision)
	}
}

func TestSimulateHoldRowsStillPayCost(t *testing.T) {
	rows := []Row{{Label: "HOLD"}, {Label: "HOLD"}}
	costs := Costs{FeeBps: 10}

	summary, err := Simulate(rows, []string{"HOLD", "HOLD"}, []string{"BUY", "SELL", "HOLD"}, costs)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	for i, tr := range summary.Trades {
		if !almostEqual(tr.PnL, -0.001, 1e-10) {
			t.Errorf("row %d: expected pnl -0.001, got %f", i, tr.PnL)
		}
	}
}

func TestSimulateEquityCurveShape(t *testing.T) {
	rows := make([]Row, 10)
	predictions := make([]string, 10)
	for i := range rows {
		rows[i] = Row{Label: "BUY", MaxFutureReturn: float64(i%3) * 0.01}
		predictions[i] = "BUY"
	}

	summary, err := Simulate(rows, predictions, []string{"BUY", "SELL", "HOLD"}, Costs{FeeBps: 5})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(summary.EquityCurve) != len(rows)+1 {
		t.Errorf("expected equity curve length %d, got %d", len(rows)+1, len(summary.EquityCurve))
	}
	if summary.EquityCurve[0] != 0 {
		t.Errorf("equity curve must start at 0, got %f", summary.EquityCurve[0])
	}
	if summary.MaxDrawdown > 0 {
		t.Errorf("max drawdown must be non-positive, got %f", summary.MaxDrawdown)
	}
}

func TestSimulateNoLosingRows(t *testing.T) {
	rows := []Row{
		{Label: "BUY", MaxFutureReturn: 0.02},
		{Label: "BUY", MaxFutureReturn: 0.01},
	}

	summary, err := Simulate(rows, []string{"BUY", "BUY"}, []string{"BUY", "SELL", "HOLD"}, Costs{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	// Monotonic equity: drawdown stays at zero, profit factor hits the
	// epsilon-floored denominator
	if summary.MaxDrawdown != 0 {
		t.Errorf("expected zero drawdown for monotonic equity, got %f", summary.MaxDrawdown)
	}
	if summary.ProfitFactor < 1e6 {
		t.Errorf("expected very large profit factor with no losses, got %f", summary.ProfitFactor)
	}
}

func TestSimulateSellUsesAbsoluteMinReturn(t *testing.T) {
	rows := []Row{{Label: "SELL", MinFutureReturn: -0.025}}

	summary, err := Simulate(rows, []string{"SELL"}, []string{"BUY", "SELL", "HOLD"}, Costs{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if !almostEqual(summary.Trades[0].PnL, 0.025, 1e-10) {
		t.Errorf("expected pnl 0.025, got %f", summary.Trades[0].PnL)
	}
}

func TestSimulateParallelLengthMismatch(t *testing.T) {
	_, err := Simulate([]Row{{Label: "BUY"}}, []string{"BUY", "SELL"}, []string{"BUY"}, Costs{})
	if err == nil {
		t.Fatal("expected error for mismatched inputs")
	}
}

func TestCheckPrecision(t *testing.T) {
	s := &Summary{Precision: 0.72}

	if err := s.CheckPrecision(0.7); err != nil {
		t.Errorf("expected precision 0.72 to pass threshold 0.7, got %v", err)
	}

	err := s.CheckPrecision(0.8)
	if err == nil {
		t.Fatal("expected precision regression error")
	}
	var regression *PrecisionRegressionError
	if !errors.As(err, &regression) {
		t.Fatalf("expected PrecisionRegressionError, got %T", err)
	}
	if regression.Precision != 0.72 || regression.Threshold != 0.8 {
		t.Errorf("unexpected regression detail: %+v", regression)
	}
}
