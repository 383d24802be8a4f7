package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokenwatch/internal/market"
)

func TestBinanceLookupSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("expected symbol BTCUSDT, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol":             "BTCUSDT",
			"lastPrice":          "65000.50",
			"priceChange":        "500.50",
			"priceChangePercent": "0.78",
			"highPrice":          "66000.00",
			"lowPrice":           "64000.00",
			"quoteVolume":        "1200000000.00",
			"closeTime":          1717243200000,
		})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	rec, err := b.Lookup(context.Background(), market.NewQuery("btc", ""))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !rec.Price.Equal(decimal.RequireFromString("65000.50")) {
		t.Fatalf("unexpected price %s", rec.Price)
	}
	if !rec.Volume24h.Equal(decimal.RequireFromString("1200000000.00")) {
		t.Fatalf("volume should use the quote asset figure, got %s", rec.Volume24h)
	}
	if !rec.MarketCap.IsZero() {
		t.Fatalf("binance has no market cap, got %s", rec.MarketCap)
	}
}

func TestBinanceUnknownSymbolIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1121, "msg": "Invalid symbol."})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := b.Lookup(context.Background(), market.NewQuery("NOCOIN", "")); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("invalid symbol should be ErrNotFound, got %v", err)
	}
	if !b.Healthy() {
		t.Fatal("an unknown symbol must not trip the health tracker")
	}
}

func TestBinanceServerErrorTripsHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := b.Lookup(context.Background(), market.NewQuery("BTC", "")); err == nil {
		t.Fatal("503 should surface as an error")
	}
	if b.Healthy() {
		t.Fatal("upstream failure should open the backoff window")
	}
}
