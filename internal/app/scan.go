package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

// Scan runs a one-off risk analysis and prints the report.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	if opts.ContractID == "" {
		return errors.New("contract address is required")
	}

	analyzer := a.newAnalyzer()
	analysis, err := analyzer.Analyze(ctx, opts.ContractID)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(writer, "Contract\t%s\n", analysis.ContractID)
	fmt.Fprintf(writer, "Token\t%s (%s)\n", analysis.Token.Name, analysis.Token.Symbol)
	fmt.Fprintf(writer, "Safety score\t%.1f / 100\n", analysis.SafetyScore)
	fmt.Fprintf(writer, "Rug pull risk\t%.1f / 100\n", analysis.RugPullRisk)
	if analysis.KnownRug {
		fmt.Fprintf(writer, "Denylist\tKNOWN RUG\n")
	}

	flags := flagSummary(analysis.Flags)
	if flags == "" {
		flags = "none"
	}
	fmt.Fprintf(writer, "Flags\t%s\n", flags)

	fmt.Fprintf(writer, "Holders\t%d (top10 %.1f%%, fresh %.1f%%)\n",
		analysis.Holders.TotalHolders,
		analysis.Holders.TopTenShare*100,
		analysis.Holders.FreshWalletRatio*100,
	)
	fmt.Fprintf(writer, "Liquidity\t$%s across %d pools (%.1f%% locked)\n",
		analysis.Liquidity.TotalUSD.StringFixed(0),
		analysis.Liquidity.PoolCount,
		analysis.Liquidity.LockedShare*100,
	)
	fmt.Fprintf(writer, "Taxes\tbuy %.1f%% / sell %.1f%%\n",
		analysis.Trading.BuyTaxPct,
		analysis.Trading.SellTaxPct,
	)
	fmt.Fprintf(writer, "24h volume\t$%s\n", analysis.Trading.Volume24hUSD.StringFixed(0))
	if len(analysis.Bytecode.MaliciousPatterns) > 0 {
		fmt.Fprintf(writer, "Bytecode\t%s\n", strings.Join(analysis.Bytecode.MaliciousPatterns, ", "))
	}
	fmt.Fprintf(writer, "Computed\t%s\n", analysis.ComputedAt.UTC().Format(time.RFC3339))

	return writer.Flush()
}

func flagSummary(f scanner.SecurityFlags) string {
	names := make([]string, 0, 6)
	if f.MintAuthority {
		names = append(names, "mint authority")
	}
	if f.FreezeAuthority {
		names = append(names, "freeze authority")
	}
	if f.OwnershipNotRenounced {
		names = append(names, "ownership not renounced")
	}
	if f.Blacklist {
		names = append(names, "blacklist")
	}
	if f.AbnormalTax {
		names = append(names, "abnormal tax")
	}
	if f.MaliciousBytecode {
		names = append(names, "malicious bytecode")
	}
	return strings.Join(names, ", ")
}
