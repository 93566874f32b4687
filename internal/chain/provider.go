package chain

import (
	"context"

	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

// Provider composes the RPC client and the indexer into the full set of
// sub-analyses the scanner runs.
type Provider struct {
	client  *Client
	indexer *Indexer
}

// NewProvider wires both data paths together.
func NewProvider(client *Client, indexer *Indexer) *Provider {
	return &Provider{client: client, indexer: indexer}
}

func (p *Provider) Resolve(ctx context.Context, contractID string) error {
	return p.client.Resolve(ctx, contractID)
}

// TokenInfo merges on-chain metadata with indexer market data.
func (p *Provider) TokenInfo(ctx context.Context, contractID string) (scanner.TokenMetrics, error) {
	token, err := p.client.TokenInfo(ctx, contractID)
	if err != nil {
		return scanner.TokenMetrics{}, err
	}

	marketCap, verified, err := p.indexer.Market(ctx, contractID)
	if err != nil {
		return scanner.TokenMetrics{}, err
	}
	token.MarketCapUSD = marketCap
	token.SourceVerified = verified

	return token, nil
}

func (p *Provider) Holders(ctx context.Context, contractID string) (scanner.HolderMetrics, error) {
	return p.indexer.Holders(ctx, contractID)
}

func (p *Provider) Liquidity(ctx context.Context, contractID string) (scanner.LiquidityMetrics, error) {
	return p.indexer.Liquidity(ctx, contractID)
}

func (p *Provider) SecurityFlags(ctx context.Context, contractID string) (scanner.SecurityFlags, error) {
	return p.indexer.SecurityFlags(ctx, contractID)
}

func (p *Provider) Trading(ctx context.Context, contractID string) (scanner.TradingMetrics, error) {
	return p.indexer.Trading(ctx, contractID)
}

func (p *Provider) Bytecode(ctx context.Context, contractID string) (scanner.BytecodeReport, error) {
	return p.client.Bytecode(ctx, contractID)
}

var _ scanner.Provider = (*Provider)(nil)
