package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/TreasuredLabs/TreasuredLabs/internal/pattern"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

// Kind names one alert category a subscriber can opt into.
type Kind string

const (
	KindBreakout     Kind = "breakout"
	KindAccumulation Kind = "accumulation"
	KindDistribution Kind = "distribution"
	KindWhale        Kind = "whale"
	KindRisk         Kind = "risk"
)

// Kinds lists every valid alert kind.
func Kinds() []Kind {
	return []Kind{KindBreakout, KindAccumulation, KindDistribution, KindWhale, KindRisk}
}

// ParseKind validates a wire-level kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown alert kind %q", s)
}

// KindForPattern maps a pattern type onto its alert kind.
func KindForPattern(patternType string) (Kind, error) {
	return ParseKind(patternType)
}

// Tier classifies subscribers for delivery ordering; higher tiers are
// dispatched first.
type Tier int

const (
	TierLow Tier = iota
	TierNormal
	TierHigh
)

// ParseTier validates a wire-level tier name.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "low":
		return TierLow, nil
	case "normal":
		return TierNormal, nil
	case "high":
		return TierHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority tier %q", s)
	}
}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierNormal:
		return "normal"
	default:
		return "low"
	}
}

// Alert is one confidence-scored notification. Risk is nil for pure pattern
// alerts; Patterns is empty for pure risk alerts.
type Alert struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	ContractID string            `json:"contractId"`
	Confidence float64           `json:"confidence"`
	Patterns   []pattern.Result  `json:"patterns,omitempty"`
	Risk       *scanner.Analysis `json:"risk,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Priority   Tier              `json:"priority"`
}

// ComputeID derives the deterministic alert id from kind, contract, and the
// dedup time bucket, so repeated detections inside one bucket collapse.
func ComputeID(kind Kind, contractID string, ts time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	bucketStart := ts.UTC().Truncate(bucket).Unix()

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", kind, contractID, bucketStart)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
