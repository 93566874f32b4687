package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "treasurex" {
		t.Errorf("app.name = %q, want treasurex", cfg.App.Name)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Patterns.Breakout.PriceChangePct != 5.0 {
		t.Errorf("breakout price change = %v, want 5.0", cfg.Patterns.Breakout.PriceChangePct)
	}
	if cfg.Patterns.Breakout.Confirmations != 3 {
		t.Errorf("breakout confirmations = %d, want 3", cfg.Patterns.Breakout.Confirmations)
	}
	if len(cfg.Patterns.Breakout.Timeframes) != 5 {
		t.Errorf("breakout timeframes = %v, want 5 entries", cfg.Patterns.Breakout.Timeframes)
	}
	if cfg.Patterns.Accumulation.MinPeriod != 12*time.Hour {
		t.Errorf("accumulation min period = %v, want 12h", cfg.Patterns.Accumulation.MinPeriod)
	}
	if !cfg.Patterns.Distribution.LargeTransferUSD.Equal(decimal.NewFromInt(50_000)) {
		t.Errorf("distribution large transfer = %s, want 50000", cfg.Patterns.Distribution.LargeTransferUSD)
	}
	if !cfg.Patterns.Whale.MinTransactionUSD.Equal(decimal.NewFromInt(100_000)) {
		t.Errorf("whale min transaction = %s, want 100000", cfg.Patterns.Whale.MinTransactionUSD)
	}
	if cfg.Scanner.RiskAlertThreshold != 50.0 {
		t.Errorf("risk alert threshold = %v, want 50", cfg.Scanner.RiskAlertThreshold)
	}
	if cfg.Dispatch.DedupWindow != 5*time.Minute {
		t.Errorf("dedup window = %v, want 5m", cfg.Dispatch.DedupWindow)
	}
	if cfg.Dispatch.RateLimitCap != 10 {
		t.Errorf("rate limit cap = %d, want 10", cfg.Dispatch.RateLimitCap)
	}
	if cfg.Rescan.Interval != 10*time.Minute {
		t.Errorf("rescan interval = %v, want 10m", cfg.Rescan.Interval)
	}
	if cfg.Export.MaxDataPoints != 100000 {
		t.Errorf("max data points = %d, want 100000", cfg.Export.MaxDataPoints)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
app:
  name: treasurex-test
patterns:
  breakout:
    price_change_pct: 8.5
  whale:
    min_transaction_usd: "250000"
dispatch:
  rate_limit_window: 30s
telegram:
  enabled: true
  bot_token: test-token
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "treasurex-test" {
		t.Errorf("app.name = %q, want the file override", cfg.App.Name)
	}
	if cfg.Patterns.Breakout.PriceChangePct != 8.5 {
		t.Errorf("breakout price change = %v, want 8.5", cfg.Patterns.Breakout.PriceChangePct)
	}
	if !cfg.Patterns.Whale.MinTransactionUSD.Equal(decimal.NewFromInt(250_000)) {
		t.Errorf("whale min transaction = %s, want 250000", cfg.Patterns.Whale.MinTransactionUSD)
	}
	if cfg.Dispatch.RateLimitWindow != 30*time.Second {
		t.Errorf("rate limit window = %v, want 30s", cfg.Dispatch.RateLimitWindow)
	}
	// Untouched keys keep their defaults.
	if cfg.Patterns.Breakout.Confirmations != 3 {
		t.Errorf("breakout confirmations = %d, want the default of 3", cfg.Patterns.Breakout.Confirmations)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"zero rescan interval", "rescan:\n  interval: 0s\n"},
		{"negative breakout pct", "patterns:\n  breakout:\n    price_change_pct: -1\n"},
		{"concentration above one", "patterns:\n  accumulation:\n    concentration_threshold: 1.5\n"},
		{"risk threshold above range", "scanner:\n  risk_alert_threshold: 150\n"},
		{"zero rate cap", "dispatch:\n  rate_limit_cap: 0\n"},
		{"telegram without token", "telegram:\n  enabled: true\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 5000}}

	if got := cfg.ResolveMaxPoints(0); got != 5000 {
		t.Fatalf("ResolveMaxPoints(0) = %d, want the config value", got)
	}
	if got := cfg.ResolveMaxPoints(250); got != 250 {
		t.Fatalf("ResolveMaxPoints(250) = %d, want the override", got)
	}
}
