package pattern

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TreasuredLabs/TreasuredLabs/internal/event"
)

func priceEvent(contract, timeframe string, price, volume float64, at time.Time) event.StreamEvent {
	return event.StreamEvent{
		Source:     event.SourcePrice,
		ContractID: contract,
		ReceivedAt: at,
		Price: &event.PricePoint{
			Price:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromFloat(volume),
			Timeframe: timeframe,
		},
	}
}

func tradeEvent(contract, wallet string, amountUSD float64, ageDays int, at time.Time) event.StreamEvent {
	return event.StreamEvent{
		Source:     event.SourceTransaction,
		ContractID: contract,
		ReceivedAt: at,
		Trade: &event.Trade{
			Hash:          "0xhash",
			Wallet:        wallet,
			Side:          "buy",
			AmountUSD:     decimal.NewFromFloat(amountUSD),
			WalletAgeDays: ageDays,
		},
	}
}

func transferEvent(contract string, amountUSD float64, ageDays int, at time.Time) event.StreamEvent {
	return event.StreamEvent{
		Source:     event.SourceWhaleTransfer,
		ContractID: contract,
		ReceivedAt: at,
		Transfer: &event.Transfer{
			Hash:          "0xhash",
			From:          "0xfrom",
			To:            "0xto",
			AmountUSD:     decimal.NewFromFloat(amountUSD),
			WalletAgeDays: ageDays,
		},
	}
}

func TestWindowEvictsOutsideHorizon(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(time.Hour)

	w.Add(priceEvent("0xabc", "1m", 100, 10, base), base)
	w.Add(priceEvent("0xabc", "1m", 101, 10, base.Add(30*time.Minute)), base.Add(30*time.Minute))
	if w.Len() != 2 {
		t.Fatalf("len = %d, want 2", w.Len())
	}

	// The first event falls outside the horizon once time advances past it.
	later := base.Add(90 * time.Minute)
	w.Add(priceEvent("0xabc", "1m", 102, 10, later), later)
	if w.Len() != 2 {
		t.Fatalf("len after eviction = %d, want 2", w.Len())
	}
	prices := w.Prices()
	if prices[0].Price.InexactFloat64() != 101 {
		t.Fatalf("oldest surviving price = %v, want 101", prices[0].Price)
	}
}

func TestWindowSpanAndAccessors(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(24 * time.Hour)

	if w.Span() != 0 {
		t.Fatalf("empty window span = %v, want 0", w.Span())
	}

	w.Add(priceEvent("0xabc", "1m", 100, 10, base), base)
	w.Add(priceEvent("0xabc", "5m", 101, 20, base.Add(time.Hour)), base.Add(time.Hour))
	w.Add(tradeEvent("0xabc", "0xw", 5000, 30, base.Add(2*time.Hour)), base.Add(2*time.Hour))
	w.Add(transferEvent("0xabc", 60000, 100, base.Add(3*time.Hour)), base.Add(3*time.Hour))

	if got := w.Span(); got != 3*time.Hour {
		t.Fatalf("span = %v, want 3h", got)
	}
	if got := len(w.Prices()); got != 2 {
		t.Fatalf("prices = %d, want 2", got)
	}
	if got := len(w.PricesByTimeframe()["5m"]); got != 1 {
		t.Fatalf("5m prices = %d, want 1", got)
	}
	if got := len(w.Trades()); got != 1 {
		t.Fatalf("trades = %d, want 1", got)
	}
	if got := len(w.Transfers()); got != 1 {
		t.Fatalf("transfers = %d, want 1", got)
	}
}
