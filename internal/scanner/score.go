package scanner

import (
	"github.com/shopspring/decimal"
)

// HighRiskCeiling caps the safety score of any contract with at least one
// security flag raised. Flags act as a gate, not an additive penalty: healthy
// liquidity or holder metrics cannot lift a flagged contract above it.
const HighRiskCeiling = 50.0

// Sub-score weights. Chosen explicitly since the upstream heuristics never
// published a weight table; the split favours liquidity and holder health.
const (
	weightLiquidity = 0.25
	weightHolders   = 0.25
	weightTrading   = 0.20
	weightToken     = 0.15
	weightBytecode  = 0.15

	// flagPenalty lowers the gated score further for every flag past the first.
	flagPenalty = 10.0
)

var (
	healthyLiquidityUSD = decimal.NewFromInt(250_000)
	abnormalTaxPct      = 10.0
)

// safetyScore folds the six sub-analyses into one safety score in [0,100].
func safetyScore(a *Analysis) float64 {
	score := weightLiquidity*liquidityScore(a.Liquidity) +
		weightHolders*holderScore(a.Holders) +
		weightTrading*tradingScore(a.Trading) +
		weightToken*tokenScore(a.Token) +
		weightBytecode*bytecodeScore(a.Bytecode)

	if a.Flags.Any() {
		gated := HighRiskCeiling - flagPenalty*float64(a.Flags.count()-1)
		if score > gated {
			score = gated
		}
	}

	return clampScore(score)
}

// rugPullRisk is reported alongside the safety score, computed only from
// holder concentration and the fresh-wallet ratio.
func rugPullRisk(h HolderMetrics) float64 {
	return clampScore(h.Concentration*60 + h.FreshWalletRatio*40)
}

func liquidityScore(l LiquidityMetrics) float64 {
	depth := 0.0
	if healthyLiquidityUSD.Sign() > 0 {
		depth = l.TotalUSD.Div(healthyLiquidityUSD).InexactFloat64()
		if depth > 1 {
			depth = 1
		}
	}
	return clampScore(depth*50 + l.LockedShare*30 + clamp01(l.Ratio*10)*20)
}

func holderScore(h HolderMetrics) float64 {
	breadth := clamp01(float64(h.TotalHolders) / 1000)
	dispersion := 1 - clamp01(h.Concentration)
	organic := 1 - clamp01(h.FreshWalletRatio)
	return clampScore(breadth*30 + dispersion*40 + organic*30)
}

func tradingScore(t TradingMetrics) float64 {
	tax := t.BuyTaxPct
	if t.SellTaxPct > tax {
		tax = t.SellTaxPct
	}
	taxHealth := 1 - clamp01(tax/abnormalTaxPct)

	balance := t.BuySellRatio
	if balance > 1 && balance != 0 {
		balance = 1 / balance
	}

	activity := clamp01(t.Volume24hUSD.Div(decimal.NewFromInt(100_000)).InexactFloat64())
	return clampScore(taxHealth*50 + clamp01(balance)*25 + activity*25)
}

func tokenScore(t TokenMetrics) float64 {
	score := 40.0
	if t.SourceVerified {
		score += 40
	}
	if t.Name != "" && t.Symbol != "" {
		score += 10
	}
	if t.TotalSupply.Sign() > 0 {
		score += 10
	}
	return clampScore(score)
}

func bytecodeScore(b BytecodeReport) float64 {
	return clampScore(100 - 25*float64(len(b.MaliciousPatterns)))
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
