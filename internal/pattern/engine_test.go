package pattern

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubDetector fires on every evaluation once the window holds minEvents.
type stubDetector struct {
	name      string
	minEvents int
}

func (d *stubDetector) Name() string           { return d.name }
func (d *stubDetector) Horizon() time.Duration { return time.Hour }

func (d *stubDetector) Evaluate(w *Window, now time.Time) (Result, bool) {
	if w.Len() < d.minEvents {
		return Result{}, false
	}
	return Result{Type: d.name, Confidence: 80, DetectedAt: now}, true
}

func TestEngineRoutesDetections(t *testing.T) {
	type detection struct {
		contract string
		res      Result
	}
	var got []detection

	engine := NewEngine([]Detector{&stubDetector{name: TypeWhale, minEvents: 2}}, func(contractID string, res Result) {
		got = append(got, detection{contract: contractID, res: res})
	}, zerolog.Nop())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.Handle(tradeEvent("0xabc", "0xw", 1000, 10, base))
	if len(got) != 0 {
		t.Fatalf("detector fired on %d events, want threshold of 2", len(got))
	}

	engine.Handle(tradeEvent("0xabc", "0xw", 1000, 10, base.Add(time.Minute)))
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if got[0].contract != "0xabc" {
		t.Fatalf("contract = %q, want 0xabc", got[0].contract)
	}
	if got[0].res.Type != TypeWhale {
		t.Fatalf("type = %q, want %q", got[0].res.Type, TypeWhale)
	}
}

func TestEngineKeepsPerContractWindows(t *testing.T) {
	engine := NewEngine([]Detector{&stubDetector{name: TypeWhale, minEvents: 2}}, nil, zerolog.Nop())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.Handle(tradeEvent("0xaaa", "0xw", 1000, 10, base))
	engine.Handle(tradeEvent("0xbbb", "0xw", 1000, 10, base))

	contracts := engine.Contracts()
	if len(contracts) != 2 {
		t.Fatalf("contracts = %v, want two entries", contracts)
	}
}

func TestDefaultDetectors(t *testing.T) {
	dets := DefaultDetectors()
	if len(dets) != 4 {
		t.Fatalf("detectors = %d, want 4", len(dets))
	}

	seen := make(map[string]bool)
	for _, d := range dets {
		seen[d.Name()] = true
		if d.Horizon() <= 0 {
			t.Fatalf("detector %s has no horizon", d.Name())
		}
	}
	for _, name := range []string{TypeBreakout, TypeAccumulation, TypeDistribution, TypeWhale} {
		if !seen[name] {
			t.Fatalf("missing detector %s", name)
		}
	}
}
