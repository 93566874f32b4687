package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/TreasuredLabs/TreasuredLabs/internal/logging"
	"github.com/TreasuredLabs/TreasuredLabs/internal/pattern"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Feeds    FeedsConfig    `mapstructure:"feeds"`
	Patterns PatternsConfig `mapstructure:"patterns"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Rescan   RescanConfig   `mapstructure:"rescan"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// FeedConfig describes one upstream websocket stream.
type FeedConfig struct {
	URL               string        `mapstructure:"url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	ReconnectInitial  time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	Buffer            int           `mapstructure:"buffer"`
}

// FeedsConfig groups the three event streams.
type FeedsConfig struct {
	Prices       FeedConfig `mapstructure:"prices"`
	Transactions FeedConfig `mapstructure:"transactions"`
	Whales       FeedConfig `mapstructure:"whales"`
}

// PatternsConfig carries per-detector tuning.
type PatternsConfig struct {
	Breakout     pattern.BreakoutConfig     `mapstructure:"breakout"`
	Accumulation pattern.AccumulationConfig `mapstructure:"accumulation"`
	Distribution pattern.DistributionConfig `mapstructure:"distribution"`
	Whale        pattern.WhaleConfig        `mapstructure:"whale"`
}

// ScannerConfig governs contract risk analysis.
type ScannerConfig struct {
	SubAnalysisTimeout time.Duration `mapstructure:"sub_analysis_timeout"`
	FreshnessTTL       time.Duration `mapstructure:"freshness_ttl"`
	KnownRugs          []string      `mapstructure:"known_rugs"`
	RiskAlertThreshold float64       `mapstructure:"risk_alert_threshold"`
}

// ChainConfig covers raw Ethereum RPC access.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec int           `mapstructure:"requests_per_sec"`
}

// IndexerConfig captures indexer API connectivity.
type IndexerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DispatchConfig tunes alert dedup, history, and delivery.
type DispatchConfig struct {
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
	HistoryMaxAge   time.Duration `mapstructure:"history_max_age"`
	QueueSize       int           `mapstructure:"queue_size"`
	PendingCapacity int           `mapstructure:"pending_capacity"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitCap    int           `mapstructure:"rate_limit_cap"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RescanConfig governs the periodic risk re-scan cadence.
type RescanConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	HistoryRetain   time.Duration `mapstructure:"history_retain"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TREASUREX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "treasurex")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	for _, feed := range []string{"prices", "transactions", "whales"} {
		v.SetDefault("feeds."+feed+".heartbeat_interval", "30s")
		v.SetDefault("feeds."+feed+".heartbeat_timeout", "10s")
		v.SetDefault("feeds."+feed+".reconnect_initial", "1s")
		v.SetDefault("feeds."+feed+".reconnect_max", "1m")
		v.SetDefault("feeds."+feed+".buffer", 256)
	}

	v.SetDefault("patterns.breakout.price_change_pct", 5.0)
	v.SetDefault("patterns.breakout.confirmations", 3)
	v.SetDefault("patterns.breakout.timeframes", []string{"1m", "5m", "15m", "1h", "4h"})
	v.SetDefault("patterns.breakout.volume_multiplier", 2.5)
	v.SetDefault("patterns.breakout.horizon", "5h")

	v.SetDefault("patterns.accumulation.min_period", "12h")
	v.SetDefault("patterns.accumulation.volatility_ceiling_pct", 2.0)
	v.SetDefault("patterns.accumulation.concentration_threshold", 0.70)
	v.SetDefault("patterns.accumulation.horizon", "24h")

	v.SetDefault("patterns.distribution.max_period", "48h")
	v.SetDefault("patterns.distribution.spike_multiplier", 2.0)
	v.SetDefault("patterns.distribution.large_transfer_usd", "50000")
	v.SetDefault("patterns.distribution.resistance_band_pct", 1.0)
	v.SetDefault("patterns.distribution.min_resistance_touches", 2)

	v.SetDefault("patterns.whale.min_transaction_usd", "100000")
	v.SetDefault("patterns.whale.window", "1h")
	v.SetDefault("patterns.whale.min_wallet_age_days", 90)

	v.SetDefault("scanner.sub_analysis_timeout", "15s")
	v.SetDefault("scanner.freshness_ttl", "10m")
	v.SetDefault("scanner.risk_alert_threshold", 50.0)

	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.requests_per_sec", 5)

	v.SetDefault("indexer.base_url", "https://api.treasurex.io/v1")
	v.SetDefault("indexer.request_timeout", "10s")
	v.SetDefault("indexer.user_agent", "treasurex/1.0")

	v.SetDefault("dispatch.dedup_window", "5m")
	v.SetDefault("dispatch.history_capacity", 1000)
	v.SetDefault("dispatch.history_max_age", "24h")
	v.SetDefault("dispatch.queue_size", 64)
	v.SetDefault("dispatch.pending_capacity", 128)
	v.SetDefault("dispatch.delivery_timeout", "10s")
	v.SetDefault("dispatch.rate_limit_window", "1m")
	v.SetDefault("dispatch.rate_limit_cap", 10)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("rescan.interval", "10m")
	v.SetDefault("rescan.align_to_bucket", true)
	v.SetDefault("rescan.advisory_lock_key", int64(0x74726578))
	v.SetDefault("rescan.startup_delay", "0s")
	v.SetDefault("rescan.history_retain", "720h")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

// stringToDecimalHookFunc decodes string or numeric config values into
// decimal.Decimal fields.
func stringToDecimalHookFunc() mapstructure.DecodeHookFunc {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case float64:
			return decimal.NewFromFloat(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Rescan.Interval <= 0 {
		return fmt.Errorf("rescan.interval must be greater than zero")
	}
	if c.Patterns.Breakout.PriceChangePct <= 0 {
		return fmt.Errorf("patterns.breakout.price_change_pct must be greater than zero")
	}
	if c.Patterns.Breakout.Confirmations <= 0 {
		return fmt.Errorf("patterns.breakout.confirmations must be greater than zero")
	}
	if c.Patterns.Accumulation.ConcentrationThreshold < 0 || c.Patterns.Accumulation.ConcentrationThreshold > 1 {
		return fmt.Errorf("patterns.accumulation.concentration_threshold must be within [0,1]")
	}
	if c.Scanner.RiskAlertThreshold < 0 || c.Scanner.RiskAlertThreshold > 100 {
		return fmt.Errorf("scanner.risk_alert_threshold must be within [0,100]")
	}
	if c.Dispatch.RateLimitCap <= 0 {
		return fmt.Errorf("dispatch.rate_limit_cap must be greater than zero")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
