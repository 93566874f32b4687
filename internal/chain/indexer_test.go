package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestIndexer(srv *httptest.Server) *Indexer {
	return NewIndexer(IndexerOptions{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		RequestTimeout: time.Second,
		UserAgent:      "treasurex-test/1.0",
	}, zerolog.Nop())
}

func TestIndexerHolders(t *testing.T) {
	var gotPath, gotKey, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"totalHolders": 4200,
			"topTenShare": 0.31,
			"concentration": 0.18,
			"freshWalletRatio": 0.07,
			"whaleCount": 12,
			"suspiciousCount": 3
		}`))
	}))
	defer srv.Close()

	holders, err := newTestIndexer(srv).Holders(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Holders: %v", err)
	}

	if gotPath != "/contracts/0xabc/holders" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("X-Api-Key = %q, want test-key", gotKey)
	}
	if gotUA != "treasurex-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if holders.TotalHolders != 4200 {
		t.Errorf("total holders = %d, want 4200", holders.TotalHolders)
	}
	if holders.Concentration != 0.18 {
		t.Errorf("concentration = %v, want 0.18", holders.Concentration)
	}
}

func TestIndexerLiquidityDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalUsd":"512345.67","ratio":0.2,"lockedShare":0.85,"poolCount":2}`))
	}))
	defer srv.Close()

	liq, err := newTestIndexer(srv).Liquidity(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Liquidity: %v", err)
	}
	if got := liq.TotalUSD.String(); got != "512345.67" {
		t.Errorf("total liquidity = %s, want 512345.67", got)
	}
	if liq.PoolCount != 2 {
		t.Errorf("pool count = %d, want 2", liq.PoolCount)
	}
}

func TestIndexerMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"marketCapUsd":"1000000","sourceVerified":true}`))
	}))
	defer srv.Close()

	marketCap, verified, err := newTestIndexer(srv).Market(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Market: %v", err)
	}
	if marketCap.String() != "1000000" {
		t.Errorf("market cap = %s, want 1000000", marketCap.String())
	}
	if !verified {
		t.Errorf("sourceVerified should carry through")
	}
}

func TestIndexerStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorType":"NOT_FOUND","description":"contract not indexed"}`))
	}))
	defer srv.Close()

	_, err := newTestIndexer(srv).Trading(context.Background(), "0xmissing")
	if err == nil {
		t.Fatalf("expected an error for a 404 response")
	}
	if !strings.Contains(err.Error(), "contract not indexed") {
		t.Errorf("error should carry the API description, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestIndexerPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestIndexer(srv).SecurityFlags(context.Background(), "0xabc")
	if err == nil {
		t.Fatalf("expected an error for a 502 response")
	}
	if !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("error should carry the response body, got %v", err)
	}
}
