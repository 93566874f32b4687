package pattern

import (
	"time"

	"github.com/shopspring/decimal"
)

// WhaleConfig tunes the whale detector: a single transaction at or above the
// USD threshold inside the window, optionally filtered by wallet age.
type WhaleConfig struct {
	MinTransactionUSD decimal.Decimal `mapstructure:"min_transaction_usd"`
	Window            time.Duration   `mapstructure:"window"`
	MinWalletAgeDays  int             `mapstructure:"min_wallet_age_days"`
}

// DefaultWhaleConfig returns the deployed defaults.
func DefaultWhaleConfig() WhaleConfig {
	return WhaleConfig{
		MinTransactionUSD: decimal.NewFromInt(100_000),
		Window:            time.Hour,
		MinWalletAgeDays:  90,
	}
}

// Whale detects single transactions over the configured USD threshold.
type Whale struct {
	cfg WhaleConfig
}

// NewWhale builds the detector.
func NewWhale(cfg WhaleConfig) *Whale {
	def := DefaultWhaleConfig()
	if cfg.MinTransactionUSD.Sign() <= 0 {
		cfg.MinTransactionUSD = def.MinTransactionUSD
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Whale{cfg: cfg}
}

func (w *Whale) Name() string { return TypeWhale }

func (w *Whale) Horizon() time.Duration { return w.cfg.Window }

// Evaluate fires when any qualifying transaction or transfer sits in the
// window. MinWalletAgeDays of zero disables the age filter.
func (w *Whale) Evaluate(win *Window, now time.Time) (Result, bool) {
	count := 0
	largest := decimal.Zero
	oldestWalletDays := 0

	consider := func(amount decimal.Decimal, walletAgeDays int) {
		if amount.LessThan(w.cfg.MinTransactionUSD) {
			return
		}
		if w.cfg.MinWalletAgeDays > 0 && walletAgeDays < w.cfg.MinWalletAgeDays {
			return
		}
		count++
		if amount.GreaterThan(largest) {
			largest = amount
		}
		if walletAgeDays > oldestWalletDays {
			oldestWalletDays = walletAgeDays
		}
	}

	for _, t := range win.Trades() {
		consider(t.AmountUSD, t.WalletAgeDays)
	}
	for _, t := range win.Transfers() {
		consider(t.AmountUSD, t.WalletAgeDays)
	}

	if count == 0 {
		return Result{}, false
	}

	sizeRatio := largest.Div(w.cfg.MinTransactionUSD).InexactFloat64()

	confidence, signals := scoreFactors([]factor{
		{name: "transaction_size", value: sizeRatio / 2, weight: 50},
		{name: "recurrence", value: float64(count) / 3, weight: 30},
		{name: "wallet_age", value: float64(oldestWalletDays) / 365, weight: 20},
	})

	return Result{
		Type:       TypeWhale,
		Confidence: confidence,
		Signals:    signals,
		DetectedAt: now,
	}, true
}
