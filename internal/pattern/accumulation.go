package pattern

import (
	"math"
	"time"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
)

// AccumulationConfig tunes the accumulation detector: quiet buildup over a
// minimum observation period with stable price and concentrated buying.
type AccumulationConfig struct {
	MinPeriod              time.Duration `mapstructure:"min_period"`
	VolatilityCeilingPct   float64       `mapstructure:"volatility_ceiling_pct"`
	ConcentrationThreshold float64       `mapstructure:"concentration_threshold"`
	Horizon                time.Duration `mapstructure:"horizon"`
}

// DefaultAccumulationConfig returns the deployed defaults.
func DefaultAccumulationConfig() AccumulationConfig {
	return AccumulationConfig{
		MinPeriod:              12 * time.Hour,
		VolatilityCeilingPct:   2.0,
		ConcentrationThreshold: 0.70,
		Horizon:                24 * time.Hour,
	}
}

// Accumulation detects sustained, low-volatility buying with a non-decreasing
// volume profile and concentrated wallets.
type Accumulation struct {
	cfg AccumulationConfig
}

// NewAccumulation builds the detector.
func NewAccumulation(cfg AccumulationConfig) *Accumulation {
	def := DefaultAccumulationConfig()
	if cfg.MinPeriod <= 0 {
		cfg.MinPeriod = def.MinPeriod
	}
	if cfg.VolatilityCeilingPct <= 0 {
		cfg.VolatilityCeilingPct = def.VolatilityCeilingPct
	}
	if cfg.ConcentrationThreshold <= 0 {
		cfg.ConcentrationThreshold = def.ConcentrationThreshold
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	return &Accumulation{cfg: cfg}
}

func (a *Accumulation) Name() string { return TypeAccumulation }

func (a *Accumulation) Horizon() time.Duration { return a.cfg.Horizon }

// Evaluate requires the minimum observation period, price volatility under
// the ceiling, a non-decreasing volume profile, and wallet concentration
// above the threshold.
func (a *Accumulation) Evaluate(w *Window, now time.Time) (Result, bool) {
	if w.Span() < a.cfg.MinPeriod {
		return Result{}, false
	}

	prices := w.Prices()
	if len(prices) < 4 {
		return Result{}, false
	}

	volatilityPct, ok := priceVolatilityPct(prices)
	if !ok || volatilityPct > a.cfg.VolatilityCeilingPct {
		return Result{}, false
	}

	firstHalf, secondHalf := splitVolumes(prices)
	if firstHalf <= 0 || secondHalf < firstHalf {
		return Result{}, false
	}

	concentration := topWalletShare(w)
	if concentration < a.cfg.ConcentrationThreshold {
		return Result{}, false
	}

	confidence, signals := scoreFactors([]factor{
		{name: "time_in_pattern", value: float64(w.Span()) / float64(2*a.cfg.MinPeriod), weight: 25},
		{name: "volume_trend", value: secondHalf/firstHalf - 1, weight: 25},
		{name: "price_stability", value: 1 - volatilityPct/a.cfg.VolatilityCeilingPct, weight: 25},
		{name: "wallet_concentration", value: concentration, weight: 25},
	})

	return Result{
		Type:       TypeAccumulation,
		Confidence: confidence,
		Signals:    signals,
		DetectedAt: now,
	}, true
}

// priceVolatilityPct is the relative standard deviation of prices.
func priceVolatilityPct(points []event.PricePoint) (float64, bool) {
	mean := 0.0
	for _, p := range points {
		mean += p.Price.InexactFloat64()
	}
	mean /= float64(len(points))
	if mean <= 0 {
		return 0, false
	}

	variance := 0.0
	for _, p := range points {
		d := p.Price.InexactFloat64() - mean
		variance += d * d
	}
	variance /= float64(len(points))

	return math.Sqrt(variance) / mean * 100, true
}

// splitVolumes averages volumes in the older and newer half of the window.
func splitVolumes(points []event.PricePoint) (first, second float64) {
	half := len(points) / 2
	for _, p := range points[:half] {
		first += p.Volume.InexactFloat64()
	}
	for _, p := range points[half:] {
		second += p.Volume.InexactFloat64()
	}
	if half > 0 {
		first /= float64(half)
	}
	if rest := len(points) - half; rest > 0 {
		second /= float64(rest)
	}
	return first, second
}

// topWalletShare is the share of traded USD volume attributable to the most
// active wallet in the window.
func topWalletShare(w *Window) float64 {
	byWallet := make(map[string]float64)
	total := 0.0
	for _, t := range w.Trades() {
		amount := t.AmountUSD.InexactFloat64()
		byWallet[t.Wallet] += amount
		total += amount
	}
	if total <= 0 {
		return 0
	}
	top := 0.0
	for _, v := range byWallet {
		if v > top {
			top = v
		}
	}
	return top / total
}
