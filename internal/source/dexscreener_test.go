package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tokenwatch/internal/market"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func pairJSON(chain, symbol, address, priceUsd string, liquidity, volume float64) map[string]any {
	return map[string]any{
		"chainId":     chain,
		"dexId":       "uniswap",
		"url":         "https://dexscreener.com/" + chain + "/pair",
		"pairAddress": "0xpair",
		"baseToken":   map[string]string{"address": address, "name": symbol, "symbol": symbol},
		"quoteToken":  map[string]string{"symbol": "USDC"},
		"priceUsd":    priceUsd,
		"volume":      map[string]float64{"h24": volume},
		"priceChange": map[string]float64{"h24": 1.5},
		"liquidity":   map[string]float64{"usd": liquidity},
	}
}

func dexServer(t *testing.T, pairs []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"pairs": pairs})
	}))
}

func newDexSource(t *testing.T, srv *httptest.Server, opts DexScreenerOptions) *DexScreener {
	t.Helper()
	opts.BaseURL = srv.URL
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	return NewDexScreener(opts, noopLogger())
}

func TestDexScreenerPicksGroupByVolumeNotLiquidity(t *testing.T) {
	// Two distinct tokens share the PEPE ticker. Group A has enormous
	// (spoofable) liquidity and no trading; group B actually trades.
	pairs := []map[string]any{
		pairJSON("ethereum", "PEPE", "0xaaa1", "1.00", 5_000_000_000, 4),
		pairJSON("ethereum", "PEPE", "0xbbb2", "2.00", 50_000, 50_000),
	}
	srv := dexServer(t, pairs)
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{TopPairs: 20})
	rec, err := d.Lookup(context.Background(), market.NewQuery("PEPE", ""))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec.Address != "0xbbb2" {
		t.Fatalf("selection should pick the high-volume group, got address %s", rec.Address)
	}
	if !rec.Price.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("price should come from the winning group, got %s", rec.Price)
	}
}

func TestDexScreenerAggregatesVolumeAcrossGroup(t *testing.T) {
	// Three pairs trade the same token; the third is below minimum
	// liquidity and must be filtered before aggregation.
	pairs := []map[string]any{
		pairJSON("ethereum", "WIF", "0xwif", "3.00", 200_000, 50_000),
		pairJSON("bsc", "WIF", "0xwif", "3.01", 100_000, 30_000),
		pairJSON("polygon", "WIF", "0xwif", "2.99", 5_000, 0),
	}
	srv := dexServer(t, pairs)
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{MinLiquidity: 10_000, TopPairs: 20})
	rec, err := d.Lookup(context.Background(), market.NewQuery("WIF", ""))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !rec.Volume24h.Equal(decimal.NewFromInt(80_000)) {
		t.Fatalf("aggregated volume should be 80000, got %s", rec.Volume24h)
	}
	// Price and metadata come from the single deepest pair.
	if !rec.Price.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("price should come from the deepest pair, got %s", rec.Price)
	}
	if rec.URL == "" {
		t.Fatal("record should carry a venue deep link")
	}
}

func TestDexScreenerSymbolFallbackWithoutExactMatch(t *testing.T) {
	// No pair matches the queried ticker exactly; the full result set is
	// kept so obscure tickers still resolve.
	pairs := []map[string]any{
		pairJSON("ethereum", "WOBBLY3000", "0xwob", "0.01", 20_000, 5_000),
	}
	srv := dexServer(t, pairs)
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{TopPairs: 20})
	rec, err := d.Lookup(context.Background(), market.NewQuery("WOBBLY", ""))
	if err != nil {
		t.Fatalf("lookup should fall back to the full result set: %v", err)
	}
	if rec.Symbol != "WOBBLY3000" {
		t.Fatalf("unexpected symbol %s", rec.Symbol)
	}
}

func TestDexScreenerChainHintFilters(t *testing.T) {
	pairs := []map[string]any{
		pairJSON("ethereum", "USDQ", "0xeth1", "1.00", 100_000, 90_000),
		pairJSON("bsc", "USDQ", "0xbsc1", "1.01", 100_000, 10_000),
	}
	srv := dexServer(t, pairs)
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{TopPairs: 20})
	rec, err := d.Lookup(context.Background(), market.NewQuery("USDQ", market.ChainBSC))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec.Chain != market.ChainBSC || rec.Address != "0xbsc1" {
		t.Fatalf("chain hint should restrict selection, got %s/%s", rec.Chain, rec.Address)
	}
}

func TestDexScreenerNoCandidatesIsNotFound(t *testing.T) {
	srv := dexServer(t, nil)
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{TopPairs: 20})
	if _, err := d.Lookup(context.Background(), market.NewQuery("NOPE", "")); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("empty result set should be ErrNotFound, got %v", err)
	}
	if !d.Healthy() {
		t.Fatal("a clean empty answer must not trip the health tracker")
	}
}

func TestDexScreenerMinPairAgeFilter(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	young := pairJSON("ethereum", "NEW", "0xnew", "1.00", 100_000, 100_000)
	young["pairCreatedAt"] = now.Add(-time.Hour).UnixMilli()
	old := pairJSON("ethereum", "NEW", "0xold", "1.00", 50_000, 20_000)
	old["pairCreatedAt"] = now.Add(-72 * time.Hour).UnixMilli()

	srv := dexServer(t, []map[string]any{young, old})
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{
		MinPairAge: 24 * time.Hour,
		TopPairs:   20,
		Clock:      func() time.Time { return now },
	})
	rec, err := d.Lookup(context.Background(), market.NewQuery("NEW", ""))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec.Address != "0xold" {
		t.Fatalf("pairs younger than the minimum age should be filtered, got %s", rec.Address)
	}
}

func TestDexScreenerUpstreamErrorTripsHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{TopPairs: 20})
	if _, err := d.Lookup(context.Background(), market.NewQuery("BTC", "")); err == nil {
		t.Fatal("502 should surface as an error")
	}
	if d.Healthy() {
		t.Fatal("upstream failure should open the backoff window")
	}
}

func TestDexScreenerMalformedResponseTripsHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	d := newDexSource(t, srv, DexScreenerOptions{TopPairs: 20})
	if _, err := d.Lookup(context.Background(), market.NewQuery("BTC", "")); err == nil {
		t.Fatal("decode failure should surface as an error")
	}
	if d.Healthy() {
		t.Fatal("decode failure should count like an upstream failure")
	}
}
