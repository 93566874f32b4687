package pattern

import (
	"time"
)

// Pattern type names produced by the built-in detectors.
const (
	TypeBreakout     = "breakout"
	TypeAccumulation = "accumulation"
	TypeDistribution = "distribution"
	TypeWhale        = "whale"
)

// Signal is one named factor that contributed to a detection.
type Signal struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// Result is one pattern detection with a normalised confidence.
type Result struct {
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	Signals    []Signal  `json:"signals"`
	DetectedAt time.Time `json:"detectedAt"`
}

// Detector evaluates one named trading pattern against a window of recent
// data. Evaluate must be a pure function of the window contents: the same
// window always yields the same result.
type Detector interface {
	Name() string
	Horizon() time.Duration
	Evaluate(w *Window, now time.Time) (Result, bool)
}

// factor is a raw detector observation before weighting. value is expected in
// [0,1] and is clamped individually before the weight applies.
type factor struct {
	name   string
	value  float64
	weight float64
}

// scoreFactors folds weighted factors into a confidence in [0,100].
func scoreFactors(factors []factor) (float64, []Signal) {
	total := 0.0
	signals := make([]Signal, 0, len(factors))
	for _, f := range factors {
		contribution := clamp01(f.value) * f.weight
		total += contribution
		signals = append(signals, Signal{Name: f.name, Value: f.value, Score: contribution})
	}
	return clamp(total, 0, 100), signals
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
