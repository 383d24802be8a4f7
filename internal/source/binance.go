package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tokenwatch/internal/market"
)

// BinanceOptions parameterise the exchange API source.
type BinanceOptions struct {
	BaseURL string
	Timeout time.Duration
	Clock   Clock
}

// Binance resolves ticker symbols against the Binance spot 24hr ticker,
// quoting everything against USDT. No market cap is available here.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	health  *Health
}

// NewBinance constructs the exchange source.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		health:  NewHealth(opts.Clock),
	}
}

func (b *Binance) Name() string          { return "binance" }
func (b *Binance) Healthy() bool         { return b.health.Healthy() }
func (b *Binance) SupportsAddress() bool { return false }

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

// Lookup resolves <SYMBOL>USDT through /api/v3/ticker/24hr. Binance answers
// an unknown symbol with 400, which maps to ErrNotFound rather than a health
// failure.
func (b *Binance) Lookup(ctx context.Context, q market.Query) (*market.Record, error) {
	if q.IsAddress() {
		return nil, market.ErrNotFound
	}

	pair := strings.ToUpper(q.Ref) + "USDT"
	endpoint := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", b.baseURL, url.QueryEscape(pair))

	var ticker binanceTicker
	if err := getJSON(ctx, b.client, endpoint, nil, &ticker); err != nil {
		if se, ok := err.(*statusError); ok && (se.status == http.StatusBadRequest || se.status == http.StatusNotFound) {
			b.health.OK()
			return nil, market.ErrNotFound
		}
		b.health.Fail(err)
		return nil, fmt.Errorf("binance ticker: %w", err)
	}
	b.health.OK()

	price, err := decimal.NewFromString(ticker.LastPrice)
	if err != nil || !price.IsPositive() {
		return nil, market.ErrNotFound
	}

	rec := &market.Record{
		Symbol:    strings.ToUpper(q.Ref),
		Name:      strings.ToUpper(q.Ref),
		Price:     price,
		UpdatedAt: time.UnixMilli(ticker.CloseTime).UTC(),
		URL:       fmt.Sprintf("https://www.binance.com/en/trade/%s_USDT", strings.ToUpper(q.Ref)),
		Source:    b.Name(),
	}
	if ticker.CloseTime == 0 {
		rec.UpdatedAt = time.Now().UTC()
	}
	if v, err := decimal.NewFromString(ticker.PriceChange); err == nil {
		rec.Change24h = v
	}
	if v, err := decimal.NewFromString(ticker.PriceChangePercent); err == nil {
		rec.ChangePct24h = v
	}
	if v, err := decimal.NewFromString(ticker.HighPrice); err == nil {
		rec.High24h = v
	}
	if v, err := decimal.NewFromString(ticker.LowPrice); err == nil {
		rec.Low24h = v
	}
	if v, err := decimal.NewFromString(ticker.QuoteVolume); err == nil {
		rec.Volume24h = v
	}
	return rec, nil
}

var _ Source = (*Binance)(nil)
