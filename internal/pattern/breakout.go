package pattern

import (
	"time"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
)

// BreakoutConfig tunes the breakout detector. Defaults mirror the deployed
// thresholds: 5% move confirmed on 3 of 5 timeframes with 2.5x volume.
type BreakoutConfig struct {
	PriceChangePct   float64       `mapstructure:"price_change_pct"`
	Confirmations    int           `mapstructure:"confirmations"`
	Timeframes       []string      `mapstructure:"timeframes"`
	VolumeMultiplier float64       `mapstructure:"volume_multiplier"`
	Horizon          time.Duration `mapstructure:"horizon"`
}

// DefaultBreakoutConfig returns the deployed defaults.
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		PriceChangePct:   5.0,
		Confirmations:    3,
		Timeframes:       []string{"1m", "5m", "15m", "1h", "4h"},
		VolumeMultiplier: 2.5,
		Horizon:          5 * time.Hour,
	}
}

// Breakout detects price moves confirmed across multiple timeframes with
// volume well above the rolling baseline.
type Breakout struct {
	cfg BreakoutConfig
}

// NewBreakout builds the detector.
func NewBreakout(cfg BreakoutConfig) *Breakout {
	def := DefaultBreakoutConfig()
	if cfg.PriceChangePct <= 0 {
		cfg.PriceChangePct = def.PriceChangePct
	}
	if cfg.Confirmations <= 0 {
		cfg.Confirmations = def.Confirmations
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = def.Timeframes
	}
	if cfg.VolumeMultiplier <= 0 {
		cfg.VolumeMultiplier = def.VolumeMultiplier
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	return &Breakout{cfg: cfg}
}

func (b *Breakout) Name() string { return TypeBreakout }

func (b *Breakout) Horizon() time.Duration { return b.cfg.Horizon }

// Evaluate confirms the pattern when enough timeframes show the required move
// and the latest volume clears the multiplier over the rolling baseline.
func (b *Breakout) Evaluate(w *Window, now time.Time) (Result, bool) {
	series := w.PricesByTimeframe()

	confirmed := 0
	maxChangePct := 0.0
	for _, tf := range b.cfg.Timeframes {
		points := series[tf]
		if len(points) < 2 {
			continue
		}
		first := points[0].Price.InexactFloat64()
		last := points[len(points)-1].Price.InexactFloat64()
		if first <= 0 {
			continue
		}
		changePct := (last - first) / first * 100
		if changePct > maxChangePct {
			maxChangePct = changePct
		}
		if changePct >= b.cfg.PriceChangePct {
			confirmed++
		}
	}

	if confirmed < b.cfg.Confirmations {
		return Result{}, false
	}

	volumeRatio, ok := latestVolumeRatio(w.Prices())
	if !ok || volumeRatio < b.cfg.VolumeMultiplier {
		return Result{}, false
	}

	confidence, signals := scoreFactors([]factor{
		{name: "timeframe_confirmations", value: float64(confirmed) / float64(len(b.cfg.Timeframes)), weight: 35},
		{name: "volume_deviation", value: volumeRatio / b.cfg.VolumeMultiplier, weight: 40},
		{name: "price_momentum", value: maxChangePct / (2 * b.cfg.PriceChangePct), weight: 25},
	})

	return Result{
		Type:       TypeBreakout,
		Confidence: confidence,
		Signals:    signals,
		DetectedAt: now,
	}, true
}

// latestVolumeRatio compares the newest observation's volume against the mean
// of everything before it.
func latestVolumeRatio(points []event.PricePoint) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}
	baseline := 0.0
	for _, p := range points[:len(points)-1] {
		baseline += p.Volume.InexactFloat64()
	}
	baseline /= float64(len(points) - 1)
	if baseline <= 0 {
		return 0, false
	}
	return points[len(points)-1].Volume.InexactFloat64() / baseline, true
}
