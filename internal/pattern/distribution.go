package pattern

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
)

// DistributionConfig tunes the distribution detector: exit activity shown by
// volume spikes, large single transfers, and price resistance.
type DistributionConfig struct {
	MaxPeriod            time.Duration   `mapstructure:"max_period"`
	SpikeMultiplier      float64         `mapstructure:"spike_multiplier"`
	LargeTransferUSD     decimal.Decimal `mapstructure:"large_transfer_usd"`
	ResistanceBandPct    float64         `mapstructure:"resistance_band_pct"`
	MinResistanceTouches int             `mapstructure:"min_resistance_touches"`
}

// DefaultDistributionConfig returns the deployed defaults.
func DefaultDistributionConfig() DistributionConfig {
	return DistributionConfig{
		MaxPeriod:            48 * time.Hour,
		SpikeMultiplier:      2.0,
		LargeTransferUSD:     decimal.NewFromInt(50_000),
		ResistanceBandPct:    1.0,
		MinResistanceTouches: 2,
	}
}

// Distribution detects exit activity inside the maximum observation period.
type Distribution struct {
	cfg DistributionConfig
}

// NewDistribution builds the detector.
func NewDistribution(cfg DistributionConfig) *Distribution {
	def := DefaultDistributionConfig()
	if cfg.MaxPeriod <= 0 {
		cfg.MaxPeriod = def.MaxPeriod
	}
	if cfg.SpikeMultiplier <= 0 {
		cfg.SpikeMultiplier = def.SpikeMultiplier
	}
	if cfg.LargeTransferUSD.Sign() <= 0 {
		cfg.LargeTransferUSD = def.LargeTransferUSD
	}
	if cfg.ResistanceBandPct <= 0 {
		cfg.ResistanceBandPct = def.ResistanceBandPct
	}
	if cfg.MinResistanceTouches <= 0 {
		cfg.MinResistanceTouches = def.MinResistanceTouches
	}
	return &Distribution{cfg: cfg}
}

func (d *Distribution) Name() string { return TypeDistribution }

func (d *Distribution) Horizon() time.Duration { return d.cfg.MaxPeriod }

// Evaluate requires volume spikes, at least one large transfer, and repeated
// price rejections near the window high.
func (d *Distribution) Evaluate(w *Window, now time.Time) (Result, bool) {
	prices := w.Prices()
	if len(prices) < 4 {
		return Result{}, false
	}

	spikes := d.volumeSpikes(prices)
	if spikes == 0 {
		return Result{}, false
	}

	large := 0
	for _, t := range w.Transfers() {
		if t.AmountUSD.GreaterThanOrEqual(d.cfg.LargeTransferUSD) {
			large++
		}
	}
	if large == 0 {
		return Result{}, false
	}

	touches := d.resistanceTouches(prices)
	if touches < d.cfg.MinResistanceTouches {
		return Result{}, false
	}

	confidence, signals := scoreFactors([]factor{
		{name: "volume_spikes", value: float64(spikes) / 3, weight: 35},
		{name: "large_transfers", value: float64(large) / 3, weight: 35},
		{name: "price_resistance", value: float64(touches) / 4, weight: 30},
	})

	return Result{
		Type:       TypeDistribution,
		Confidence: confidence,
		Signals:    signals,
		DetectedAt: now,
	}, true
}

// volumeSpikes counts observations whose volume exceeds the multiplier over
// the window mean.
func (d *Distribution) volumeSpikes(points []event.PricePoint) int {
	mean := 0.0
	for _, p := range points {
		mean += p.Volume.InexactFloat64()
	}
	mean /= float64(len(points))
	if mean <= 0 {
		return 0
	}

	spikes := 0
	for _, p := range points {
		if p.Volume.InexactFloat64() >= d.cfg.SpikeMultiplier*mean {
			spikes++
		}
	}
	return spikes
}

// resistanceTouches counts how often price approached the window high without
// breaking through, i.e. closed within the band below the high.
func (d *Distribution) resistanceTouches(points []event.PricePoint) int {
	high := 0.0
	for _, p := range points {
		if v := p.Price.InexactFloat64(); v > high {
			high = v
		}
	}
	if high <= 0 {
		return 0
	}

	band := high * d.cfg.ResistanceBandPct / 100
	touches := 0
	for _, p := range points {
		v := p.Price.InexactFloat64()
		if v < high && high-v <= band {
			touches++
		}
	}
	return touches
}
