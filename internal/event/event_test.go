package event

import (
	"errors"
	"testing"
	"time"
)

func TestParsePriceEvent(t *testing.T) {
	raw := []byte(`{
		"type": "price",
		"contractId": "0xabc",
		"data": {"price": "1.25", "volume": "1000", "timeframe": "5m"},
		"serverTimestamp": 1700000000000
	}`)

	received := time.Now()
	ev, err := Parse(raw, received)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if ev.Source != SourcePrice {
		t.Fatalf("source = %q, want %q", ev.Source, SourcePrice)
	}
	if ev.ContractID != "0xabc" {
		t.Fatalf("contract = %q, want 0xabc", ev.ContractID)
	}
	if ev.Price == nil {
		t.Fatal("price payload not set")
	}
	if ev.Trade != nil || ev.Transfer != nil {
		t.Fatal("only the price payload should be set")
	}
	if ev.Price.Timeframe != "5m" {
		t.Fatalf("timeframe = %q, want 5m", ev.Price.Timeframe)
	}
	if got := ev.ServerTime; got != time.UnixMilli(1700000000000).UTC() {
		t.Fatalf("server time = %v", got)
	}
}

func TestParseTradeEvent(t *testing.T) {
	raw := []byte(`{
		"type": "transaction",
		"contractId": "0xabc",
		"data": {"hash": "0x1", "wallet": "0xw", "side": "buy", "amountUsd": "250000", "walletAgeDays": 120},
		"serverTimestamp": 1700000000000
	}`)

	ev, err := Parse(raw, time.Now())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if ev.Trade == nil {
		t.Fatal("trade payload not set")
	}
	if ev.Trade.WalletAgeDays != 120 {
		t.Fatalf("wallet age = %d, want 120", ev.Trade.WalletAgeDays)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{`},
		{"unknown type", `{"type":"candles","contractId":"0xabc","data":{},"serverTimestamp":1}`},
		{"missing contract", `{"type":"price","data":{"price":"1"},"serverTimestamp":1}`},
		{"missing data", `{"type":"price","contractId":"0xabc","serverTimestamp":1}`},
		{"missing timestamp", `{"type":"price","contractId":"0xabc","data":{"price":"1"}}`},
		{"non-positive price", `{"type":"price","contractId":"0xabc","data":{"price":"0"},"serverTimestamp":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw), time.Now())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("error %v should wrap ErrMalformed", err)
			}
		})
	}
}
