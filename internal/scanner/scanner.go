package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/TreasuredLabs/TreasuredLabs/internal/metrics"
)

// AnalysisError is surfaced to the scan caller when a contract cannot be
// resolved or any sub-analysis fails or times out. A failed scan caches
// nothing: no partial result is ever presented as complete.
type AnalysisError struct {
	ContractID string
	Stage      string
	Err        error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of %s failed at %s: %v", e.ContractID, e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// SecurityFlags are the contract capabilities that gate the safety score.
type SecurityFlags struct {
	MintAuthority         bool `json:"mintAuthority"`
	FreezeAuthority       bool `json:"freezeAuthority"`
	OwnershipNotRenounced bool `json:"ownershipNotRenounced"`
	Blacklist             bool `json:"blacklist"`
	AbnormalTax           bool `json:"abnormalTax"`
	MaliciousBytecode     bool `json:"maliciousBytecode"`
}

// Any reports whether at least one flag is raised.
func (f SecurityFlags) Any() bool {
	return f.MintAuthority || f.FreezeAuthority || f.OwnershipNotRenounced ||
		f.Blacklist || f.AbnormalTax || f.MaliciousBytecode
}

// count reports the number of raised flags.
func (f SecurityFlags) count() int {
	n := 0
	for _, b := range []bool{f.MintAuthority, f.FreezeAuthority, f.OwnershipNotRenounced, f.Blacklist, f.AbnormalTax, f.MaliciousBytecode} {
		if b {
			n++
		}
	}
	return n
}

// TokenMetrics describe the token itself.
type TokenMetrics struct {
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	Decimals       int             `json:"decimals"`
	TotalSupply    decimal.Decimal `json:"totalSupply"`
	MarketCapUSD   decimal.Decimal `json:"marketCapUsd"`
	SourceVerified bool            `json:"sourceVerified"`
}

// HolderMetrics describe the holder distribution.
type HolderMetrics struct {
	TotalHolders     int     `json:"totalHolders"`
	TopTenShare      float64 `json:"topTenShare"`
	Concentration    float64 `json:"concentration"`
	FreshWalletRatio float64 `json:"freshWalletRatio"`
	WhaleCount       int     `json:"whaleCount"`
	SuspiciousCount  int     `json:"suspiciousCount"`
}

// LiquidityMetrics describe pooled liquidity.
type LiquidityMetrics struct {
	TotalUSD    decimal.Decimal `json:"totalUsd"`
	Ratio       float64         `json:"ratio"`
	LockedShare float64         `json:"lockedShare"`
	PoolCount   int             `json:"poolCount"`
}

// TradingMetrics describe observed trading behaviour.
type TradingMetrics struct {
	BuyTaxPct       float64         `json:"buyTaxPct"`
	SellTaxPct      float64         `json:"sellTaxPct"`
	MaxTransaction  decimal.Decimal `json:"maxTransaction"`
	CooldownSeconds int             `json:"cooldownSeconds"`
	Volume24hUSD    decimal.Decimal `json:"volume24hUsd"`
	BuySellRatio    float64         `json:"buySellRatio"`
}

// BytecodeReport is the outcome of the bytecode risk scan.
type BytecodeReport struct {
	SizeBytes         int      `json:"sizeBytes"`
	MaliciousPatterns []string `json:"maliciousPatterns"`
}

// Analysis is the complete risk picture for one contract. SafetyScore and
// RugPullRisk are both in [0,100]; RugPullRisk is computed independently and
// reported alongside, never folded into the safety score.
type Analysis struct {
	ContractID  string           `json:"contractId"`
	SafetyScore float64          `json:"safetyScore"`
	RugPullRisk float64          `json:"rugPullRisk"`
	KnownRug    bool             `json:"knownRug"`
	Token       TokenMetrics     `json:"tokenMetrics"`
	Holders     HolderMetrics    `json:"holderMetrics"`
	Liquidity   LiquidityMetrics `json:"liquidityMetrics"`
	Flags       SecurityFlags    `json:"securityFlags"`
	Trading     TradingMetrics   `json:"tradingMetrics"`
	Bytecode    BytecodeReport   `json:"bytecodeReport"`
	ComputedAt  time.Time        `json:"computedAt"`
}

// Provider supplies the six independent sub-analyses. Implementations must be
// safe for concurrent use; each call gets its own bounded timeout.
type Provider interface {
	Resolve(ctx context.Context, contractID string) error
	TokenInfo(ctx context.Context, contractID string) (TokenMetrics, error)
	Holders(ctx context.Context, contractID string) (HolderMetrics, error)
	Liquidity(ctx context.Context, contractID string) (LiquidityMetrics, error)
	SecurityFlags(ctx context.Context, contractID string) (SecurityFlags, error)
	Trading(ctx context.Context, contractID string) (TradingMetrics, error)
	Bytecode(ctx context.Context, contractID string) (BytecodeReport, error)
}

// Options tune analyzer behaviour.
type Options struct {
	SubAnalysisTimeout time.Duration
	FreshnessTTL       time.Duration
	KnownRugs          []string
}

type cachedAnalysis struct {
	analysis Analysis
	storedAt time.Time
}

// Analyzer runs contract risk scans. Concurrent requests for the same
// contract coalesce onto one underlying computation, and a computation
// outlives its caller so a cancelled scan still populates the cache.
type Analyzer struct {
	provider Provider
	opts     Options
	logger   zerolog.Logger

	group     singleflight.Group
	mu        sync.Mutex
	cache     map[string]cachedAnalysis
	knownRugs map[string]struct{}
}

// NewAnalyzer builds an analyzer over a provider.
func NewAnalyzer(provider Provider, opts Options, logger zerolog.Logger) *Analyzer {
	if opts.SubAnalysisTimeout <= 0 {
		opts.SubAnalysisTimeout = 15 * time.Second
	}
	if opts.FreshnessTTL <= 0 {
		opts.FreshnessTTL = 10 * time.Minute
	}

	rugs := make(map[string]struct{}, len(opts.KnownRugs))
	for _, r := range opts.KnownRugs {
		rugs[r] = struct{}{}
	}

	return &Analyzer{
		provider:  provider,
		opts:      opts,
		logger:    logger.With().Str("component", "scanner").Logger(),
		cache:     make(map[string]cachedAnalysis),
		knownRugs: rugs,
	}
}

// Analyze returns the risk analysis for a contract, recomputing whenever the
// cached copy is older than the freshness TTL. Stale entries are never served.
func (a *Analyzer) Analyze(ctx context.Context, contractID string) (*Analysis, error) {
	if cached, ok := a.fresh(contractID); ok {
		metrics.ScansTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	// The computation runs detached from the caller's cancellation so the
	// cache fill completes even when the requester goes away.
	computeCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(contractID, func() (interface{}, error) {
		return a.compute(computeCtx, contractID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.ScansTotal.WithLabelValues("coalesced").Inc()
		}
		analysis := res.Val.(Analysis)
		return &analysis, nil
	}
}

// Invalidate drops any cached analysis for the contract.
func (a *Analyzer) Invalidate(contractID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, contractID)
}

func (a *Analyzer) fresh(contractID string) (*Analysis, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.cache[contractID]
	if !ok || time.Since(entry.storedAt) > a.opts.FreshnessTTL {
		return nil, false
	}
	analysis := entry.analysis
	return &analysis, true
}

func (a *Analyzer) compute(ctx context.Context, contractID string) (Analysis, error) {
	started := time.Now()

	if _, listed := a.knownRugs[contractID]; listed {
		analysis := knownRugAnalysis(contractID)
		a.store(analysis)
		metrics.ScansTotal.WithLabelValues("complete").Inc()
		return analysis, nil
	}

	if err := a.provider.Resolve(ctx, contractID); err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		return Analysis{}, &AnalysisError{ContractID: contractID, Stage: "resolve", Err: err}
	}

	analysis := Analysis{ContractID: contractID}

	g, gctx := errgroup.WithContext(ctx)
	run := func(stage string, fn func(context.Context) error) {
		g.Go(func() error {
			stageCtx, cancel := context.WithTimeout(gctx, a.opts.SubAnalysisTimeout)
			defer cancel()
			if err := fn(stageCtx); err != nil {
				return &AnalysisError{ContractID: contractID, Stage: stage, Err: err}
			}
			return nil
		})
	}

	run("token_info", func(ctx context.Context) error {
		var err error
		analysis.Token, err = a.provider.TokenInfo(ctx, contractID)
		return err
	})
	run("holders", func(ctx context.Context) error {
		var err error
		analysis.Holders, err = a.provider.Holders(ctx, contractID)
		return err
	})
	run("liquidity", func(ctx context.Context) error {
		var err error
		analysis.Liquidity, err = a.provider.Liquidity(ctx, contractID)
		return err
	})
	run("security_flags", func(ctx context.Context) error {
		var err error
		analysis.Flags, err = a.provider.SecurityFlags(ctx, contractID)
		return err
	})
	run("trading", func(ctx context.Context) error {
		var err error
		analysis.Trading, err = a.provider.Trading(ctx, contractID)
		return err
	})
	run("bytecode", func(ctx context.Context) error {
		var err error
		analysis.Bytecode, err = a.provider.Bytecode(ctx, contractID)
		return err
	})

	if err := g.Wait(); err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		a.logger.Warn().Err(err).Str("contract", contractID).Msg("scan failed")
		return Analysis{}, err
	}

	if len(analysis.Bytecode.MaliciousPatterns) > 0 {
		analysis.Flags.MaliciousBytecode = true
	}

	analysis.SafetyScore = safetyScore(&analysis)
	analysis.RugPullRisk = rugPullRisk(analysis.Holders)
	analysis.ComputedAt = time.Now().UTC()

	a.store(analysis)
	metrics.ScansTotal.WithLabelValues("complete").Inc()
	metrics.ScanDuration.Observe(time.Since(started).Seconds())

	a.logger.Info().
		Str("contract", contractID).
		Float64("safety_score", analysis.SafetyScore).
		Float64("rug_pull_risk", analysis.RugPullRisk).
		Msg("scan complete")

	return analysis, nil
}

func (a *Analyzer) store(analysis Analysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[analysis.ContractID] = cachedAnalysis{analysis: analysis, storedAt: time.Now()}
}

// knownRugAnalysis short-circuits contracts on the deny list.
func knownRugAnalysis(contractID string) Analysis {
	return Analysis{
		ContractID:  contractID,
		SafetyScore: 0,
		RugPullRisk: 100,
		KnownRug:    true,
		Flags:       SecurityFlags{Blacklist: true},
		ComputedAt:  time.Now().UTC(),
	}
}
