package match

import "math"

// Calibrator default tuning. The scale factor and clamp bounds were chosen
// empirically against the roughly 0–1 score range the strategies produce;
// they are configuration, not fixed law.
const (
	defaultCalibrationScale = 5.0
	defaultConfidenceMin    = 0.10
	defaultConfidenceMax    = 0.99
	defaultSingleCandidate  = 0.95
)

// Calibrator converts a sorted candidate score list into a bounded
// confidence value. A larger gap between the top two scores implies a more
// decisive pick; the sigmoid gives smooth, bounded calibration.
type Calibrator struct {
	// Scale multiplies the top-1/top-2 score gap before the sigmoid.
	Scale float64

	// Min and Max clamp the sigmoid output.
	Min float64
	Max float64

	// SingleCandidate is the fixed confidence when exactly one candidate
	// exists: there is no runner-up to compare against, so a high fixed value
	// is a documented simplification.
	SingleCandidate float64
}

// NewCalibrator returns a [Calibrator] with the default tuning.
func NewCalibrator() Calibrator {
	return Calibrator{
		Scale:           defaultCalibrationScale,
		Min:             defaultConfidenceMin,
		Max:             defaultConfidenceMax,
		SingleCandidate: defaultSingleCandidate,
	}
}

// Confidence computes the calibrated confidence for a score list sorted
// descending. Zero candidates yield 0.0.
func (c Calibrator) Confidence(scores []float64) float64 {
	switch len(scores) {
	case 0:
		return 0.0
	case 1:
		return c.SingleCandidate
	}
	conf := sigmoid(c.Scale * (scores[0] - scores[1]))
	if conf < c.Min {
		return c.Min
	}
	if conf > c.Max {
		return c.Max
	}
	return conf
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
