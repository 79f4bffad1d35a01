package ml

import (
	"errors"
	"testing"
)

func TestAlignPassthroughWithoutNames(t *testing.T) {
	values := []float64{1.5, 2.5, 3.5}

	got, err := Align(values, nil, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("index %d: expected %f, got %f", i, values[i], got[i])
		}
	}
}

func TestAlignIdempotentForOrderedInput(t *testing.T) {
	trained := []string{"rsi_14", "orderbook_spread", "funding_rate"}
	values := []float64{42, 1.2, -0.0001}

	got, err := Align(values, trained, trained)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("index %d: expected identical vector, got %f instead of %f", i, got[i], values[i])
		}
	}
}

func TestAlignReorders(t *testing.T) {
	trained := []string{"a", "b", "c"}

	got, err := Align([]float64{3, 1, 2}, []string{"c", "a", "b"}, trained)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestAlignZeroFillsMissingFeatures(t *testing.T) {
	trained := []string{"a", "b", "c", "d"}

	// Caller supplies b and d only, plus an extra name the model never
	// trained on, which is dropped
	got, err := Align([]float64{20, 40, 99}, []string{"b", "d", "extra"}, trained)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	want := []float64{0, 20, 0, 40}
	if len(got) != len(trained) {
		t.Fatalf("expected output length %d, got %d", len(trained), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestAlignNameCountMismatch(t *testing.T) {
	_, err := Align([]float64{1, 2, 3}, []string{"a", "b"}, []string{"a", "b", "c"})
	if !errors.Is(err, ErrFeatureCountMismatch) {
		t.Fatalf("expected ErrFeatureCountMismatch, got %v", err)
	}
}
