package match

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalibrator_NoCandidates(t *testing.T) {
	cal := NewCalibrator()
	if got := cal.Confidence(nil); got != 0.0 {
		t.Errorf("Confidence(nil) = %v, want 0.0", got)
	}
	if got := cal.Confidence([]float64{}); got != 0.0 {
		t.Errorf("Confidence([]) = %v, want 0.0", got)
	}
}

func TestCalibrator_SingleCandidate(t *testing.T) {
	cal := NewCalibrator()
	if got := cal.Confidence([]float64{0.42}); got != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", got)
	}
}

func TestCalibrator_GapSigmoid(t *testing.T) {
	cal := NewCalibrator()

	// gap 0.46 → sigmoid(2.3)
	want := 1 / (1 + math.Exp(-2.3))
	if got := cal.Confidence([]float64{0.90, 0.44}); !almostEqual(got, want) {
		t.Errorf("Confidence = %v, want %v", got, want)
	}

	// Extra candidates beyond the top two are ignored.
	if got := cal.Confidence([]float64{0.90, 0.44, 0.10, 0.01}); !almostEqual(got, want) {
		t.Errorf("Confidence with tail = %v, want %v", got, want)
	}
}

func TestCalibrator_ZeroGap(t *testing.T) {
	cal := NewCalibrator()
	if got := cal.Confidence([]float64{0.5, 0.5}); !almostEqual(got, 0.5) {
		t.Errorf("Confidence = %v, want 0.5 for tied scores", got)
	}
}

func TestCalibrator_ClampMax(t *testing.T) {
	cal := NewCalibrator()
	// gap 1.0 → sigmoid(5) ≈ 0.993, clamped to the ceiling.
	if got := cal.Confidence([]float64{1.0, 0.0}); got != 0.99 {
		t.Errorf("Confidence = %v, want clamped 0.99", got)
	}
}

func TestCalibrator_ClampMin(t *testing.T) {
	cal := Calibrator{Scale: 5, Min: 0.6, Max: 0.99, SingleCandidate: 0.95}
	// Tied scores give sigmoid(0) = 0.5, below the configured floor.
	if got := cal.Confidence([]float64{0.3, 0.3}); got != 0.6 {
		t.Errorf("Confidence = %v, want clamped 0.6", got)
	}
}

func TestCalibrator_MonotoneInGap(t *testing.T) {
	cal := NewCalibrator()
	prev := -1.0
	for gap := 0.0; gap <= 1.0; gap += 0.05 {
		got := cal.Confidence([]float64{0.99, 0.99 - gap})
		if got < prev {
			t.Fatalf("confidence decreased at gap %.2f: %v < %v", gap, got, prev)
		}
		prev = got
	}
}
