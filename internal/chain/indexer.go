package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

// IndexerOptions parameterise the market-data indexer API.
type IndexerOptions struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	UserAgent      string
}

// Indexer fetches aggregated holder, liquidity, trading, and security data
// from the indexer API. The raw chain cannot answer these cheaply; the
// indexer pre-aggregates them.
type Indexer struct {
	opts    IndexerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewIndexer builds an indexer API client.
func NewIndexer(opts IndexerOptions, logger zerolog.Logger) *Indexer {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.treasurex.io/v1"
	}

	return &Indexer{
		opts:    opts,
		logger:  logger.With().Str("component", "indexer_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type holdersResponse struct {
	TotalHolders     int     `json:"totalHolders"`
	TopTenShare      float64 `json:"topTenShare"`
	Concentration    float64 `json:"concentration"`
	FreshWalletRatio float64 `json:"freshWalletRatio"`
	WhaleCount       int     `json:"whaleCount"`
	SuspiciousCount  int     `json:"suspiciousCount"`
}

type liquidityResponse struct {
	TotalUSD    decimal.Decimal `json:"totalUsd"`
	Ratio       float64         `json:"ratio"`
	LockedShare float64         `json:"lockedShare"`
	PoolCount   int             `json:"poolCount"`
}

type securityResponse struct {
	MintAuthority         bool `json:"mintAuthority"`
	FreezeAuthority       bool `json:"freezeAuthority"`
	OwnershipNotRenounced bool `json:"ownershipNotRenounced"`
	Blacklist             bool `json:"blacklist"`
	AbnormalTax           bool `json:"abnormalTax"`
}

type tradingResponse struct {
	BuyTaxPct       float64         `json:"buyTaxPct"`
	SellTaxPct      float64         `json:"sellTaxPct"`
	MaxTransaction  decimal.Decimal `json:"maxTransaction"`
	CooldownSeconds int             `json:"cooldownSeconds"`
	Volume24hUSD    decimal.Decimal `json:"volume24hUsd"`
	BuySellRatio    float64         `json:"buySellRatio"`
}

type marketResponse struct {
	MarketCapUSD   decimal.Decimal `json:"marketCapUsd"`
	SourceVerified bool            `json:"sourceVerified"`
}

// Holders fetches the holder distribution summary.
func (i *Indexer) Holders(ctx context.Context, contractID string) (scanner.HolderMetrics, error) {
	var res holdersResponse
	if err := i.get(ctx, "/contracts/"+contractID+"/holders", &res); err != nil {
		return scanner.HolderMetrics{}, err
	}
	return scanner.HolderMetrics(res), nil
}

// Liquidity fetches pooled liquidity data.
func (i *Indexer) Liquidity(ctx context.Context, contractID string) (scanner.LiquidityMetrics, error) {
	var res liquidityResponse
	if err := i.get(ctx, "/contracts/"+contractID+"/liquidity", &res); err != nil {
		return scanner.LiquidityMetrics{}, err
	}
	return scanner.LiquidityMetrics(res), nil
}

// SecurityFlags fetches contract capability flags.
func (i *Indexer) SecurityFlags(ctx context.Context, contractID string) (scanner.SecurityFlags, error) {
	var res securityResponse
	if err := i.get(ctx, "/contracts/"+contractID+"/security", &res); err != nil {
		return scanner.SecurityFlags{}, err
	}
	return scanner.SecurityFlags{
		MintAuthority:         res.MintAuthority,
		FreezeAuthority:       res.FreezeAuthority,
		OwnershipNotRenounced: res.OwnershipNotRenounced,
		Blacklist:             res.Blacklist,
		AbnormalTax:           res.AbnormalTax,
	}, nil
}

// Trading fetches observed trading behaviour.
func (i *Indexer) Trading(ctx context.Context, contractID string) (scanner.TradingMetrics, error) {
	var res tradingResponse
	if err := i.get(ctx, "/contracts/"+contractID+"/trading", &res); err != nil {
		return scanner.TradingMetrics{}, err
	}
	return scanner.TradingMetrics(res), nil
}

// Market fetches market cap and source verification status.
func (i *Indexer) Market(ctx context.Context, contractID string) (decimal.Decimal, bool, error) {
	var res marketResponse
	if err := i.get(ctx, "/contracts/"+contractID+"/market", &res); err != nil {
		return decimal.Decimal{}, false, err
	}
	return res.MarketCapUSD, res.SourceVerified, nil
}

func (i *Indexer) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if i.opts.APIKey != "" {
		req.Header.Set("X-Api-Key", i.opts.APIKey)
	}
	if ua := strings.TrimSpace(i.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "treasurex/1.0")
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	return json.Unmarshal(payload, out)
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("indexer api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("indexer api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("indexer api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("indexer api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("indexer api error (%d)", status)
}
