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
	"golang.org/x/time/rate"

	"tokenwatch/internal/market"
)

// CoinGeckoOptions parameterise the aggregator-API source.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit int // requests per minute
	Clock     Clock
}

// CoinGecko resolves ticker symbols through the CoinGecko public API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	health  *Health
}

// NewCoinGecko constructs the aggregator source.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	rpm := opts.RateLimit
	if rpm <= 0 {
		rpm = 30
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		baseURL: baseURL,
		health:  NewHealth(opts.Clock),
	}
}

func (c *CoinGecko) Name() string          { return "coingecko" }
func (c *CoinGecko) Healthy() bool         { return c.health.Healthy() }
func (c *CoinGecko) SupportsAddress() bool { return false }

type geckoSearchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"coins"`
}

type geckoMarket struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	CurrentPrice   float64   `json:"current_price"`
	MarketCap      float64   `json:"market_cap"`
	TotalVolume    float64   `json:"total_volume"`
	High24h        float64   `json:"high_24h"`
	Low24h         float64   `json:"low_24h"`
	PriceChange24h float64   `json:"price_change_24h"`
	ChangePct24h   float64   `json:"price_change_percentage_24h"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Lookup resolves a symbol via /search followed by /coins/markets. The
// search endpoint orders results by market-cap rank, so the first exact
// symbol match is the dominant listing for a contested ticker.
func (c *CoinGecko) Lookup(ctx context.Context, q market.Query) (*market.Record, error) {
	if q.IsAddress() {
		return nil, market.ErrNotFound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var search geckoSearchResponse
	searchURL := fmt.Sprintf("%s/search?query=%s", c.baseURL, url.QueryEscape(q.Ref))
	if err := getJSON(ctx, c.client, searchURL, c.headers(), &search); err != nil {
		c.health.Fail(err)
		return nil, fmt.Errorf("coingecko search: %w", err)
	}

	coinID := ""
	for _, coin := range search.Coins {
		if strings.EqualFold(coin.Symbol, q.Ref) {
			coinID = coin.ID
			break
		}
	}
	if coinID == "" {
		c.health.OK()
		return nil, market.ErrNotFound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var markets []geckoMarket
	marketsURL := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s", c.baseURL, url.QueryEscape(coinID))
	if err := getJSON(ctx, c.client, marketsURL, c.headers(), &markets); err != nil {
		c.health.Fail(err)
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}

	c.health.OK()

	if len(markets) == 0 {
		return nil, market.ErrNotFound
	}

	m := markets[0]
	if m.CurrentPrice <= 0 {
		return nil, market.ErrNotFound
	}

	rec := &market.Record{
		Symbol:       strings.ToUpper(m.Symbol),
		Name:         m.Name,
		Price:        decimal.NewFromFloat(m.CurrentPrice),
		Change24h:    decimal.NewFromFloat(m.PriceChange24h),
		ChangePct24h: decimal.NewFromFloat(m.ChangePct24h),
		MarketCap:    decimal.NewFromFloat(m.MarketCap),
		Volume24h:    decimal.NewFromFloat(m.TotalVolume),
		High24h:      decimal.NewFromFloat(m.High24h),
		Low24h:       decimal.NewFromFloat(m.Low24h),
		UpdatedAt:    m.LastUpdated,
		URL:          "https://www.coingecko.com/en/coins/" + m.ID,
		Source:       c.Name(),
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return rec, nil
}

func (c *CoinGecko) headers() map[string]string {
	if c.opts.APIKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": c.opts.APIKey}
}

var _ Source = (*CoinGecko)(nil)
