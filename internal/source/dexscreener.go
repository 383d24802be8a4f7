package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tokenwatch/internal/market"
)

// DexScreenerOptions parameterise the DEX pair-index source. The filter
// thresholds keep thin, freshly created pairs out of selection.
type DexScreenerOptions struct {
	BaseURL      string
	Timeout      time.Duration
	MinLiquidity float64
	MinVolume    float64
	MinPairAge   time.Duration
	TopPairs     int
	Clock        Clock
}

// DexScreener resolves both contract addresses and ticker symbols through
// the DexScreener pair index, aggregating across the pairs that trade the
// same underlying token.
type DexScreener struct {
	opts    DexScreenerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	health  *Health
	now     Clock
}

// NewDexScreener constructs the DEX source.
func NewDexScreener(opts DexScreenerOptions, logger zerolog.Logger) *DexScreener {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}

	if opts.TopPairs <= 0 {
		opts.TopPairs = 20
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &DexScreener{
		opts:    opts,
		logger:  logger.With().Str("component", "dexscreener_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		health:  NewHealth(opts.Clock),
		now:     now,
	}
}

func (d *DexScreener) Name() string          { return "dexscreener" }
func (d *DexScreener) Healthy() bool         { return d.health.Healthy() }
func (d *DexScreener) SupportsAddress() bool { return true }

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	URL         string   `json:"url"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   dexToken `json:"baseToken"`
	QuoteToken  dexToken `json:"quoteToken"`
	PriceUsd    string   `json:"priceUsd"`
	Volume      struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Fdv           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
}

func (p dexPair) liquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.Usd
}

// identity groups pairs by underlying token: contract address when present,
// uppercased symbol otherwise. Two distinct tokens sharing a ticker land in
// separate groups as long as at least one side carries an address.
func (p dexPair) identity() string {
	if addr := strings.TrimSpace(p.BaseToken.Address); addr != "" {
		return strings.ToLower(addr)
	}
	return strings.ToUpper(p.BaseToken.Symbol)
}

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// Lookup queries the pair index and distils the result set to one record.
func (d *DexScreener) Lookup(ctx context.Context, q market.Query) (*market.Record, error) {
	var endpoint string
	if q.IsAddress() {
		endpoint = fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, url.PathEscape(q.Ref))
	} else {
		endpoint = fmt.Sprintf("%s/latest/dex/search?q=%s", d.baseURL, url.QueryEscape(q.Ref))
	}

	var resp dexPairsResponse
	if err := getJSON(ctx, d.client, endpoint, nil, &resp); err != nil {
		d.health.Fail(err)
		return nil, fmt.Errorf("dexscreener lookup: %w", err)
	}
	d.health.OK()

	return d.selectRecord(resp.Pairs, q)
}

// selectRecord implements pair selection and aggregation:
//
//  1. symbol searches prefer exact base-symbol matches, falling back to the
//     full result set for obscure tickers;
//  2. pairs below the liquidity/volume thresholds or younger than the
//     minimum age are dropped;
//  3. survivors are grouped by base-token identity and the group with the
//     highest summed 24h volume wins; volume, not liquidity, because
//     liquidity is cheap to spoof and sustained volume is not;
//  4. the group's deepest pair supplies price and metadata while volume is
//     summed across its top pairs by liquidity.
func (d *DexScreener) selectRecord(pairs []dexPair, q market.Query) (*market.Record, error) {
	if q.Chain != "" {
		pairs = filterPairs(pairs, func(p dexPair) bool {
			return strings.EqualFold(p.ChainID, string(q.Chain))
		})
	}

	if !q.IsAddress() {
		exact := filterPairs(pairs, func(p dexPair) bool {
			return strings.EqualFold(p.BaseToken.Symbol, q.Ref)
		})
		if len(exact) > 0 {
			pairs = exact
		}
	}

	now := d.now()
	candidates := filterPairs(pairs, func(p dexPair) bool {
		if p.liquidityUSD() < d.opts.MinLiquidity {
			return false
		}
		if p.Volume.H24 < d.opts.MinVolume {
			return false
		}
		if d.opts.MinPairAge > 0 && p.PairCreatedAt > 0 {
			if now.Sub(time.UnixMilli(p.PairCreatedAt)) < d.opts.MinPairAge {
				return false
			}
		}
		return true
	})
	if len(candidates) == 0 {
		return nil, market.ErrNotFound
	}

	groups := make(map[string][]dexPair)
	for _, p := range candidates {
		key := p.identity()
		groups[key] = append(groups[key], p)
	}

	var winner []dexPair
	var winnerKey string
	var winnerVolume float64
	for key, group := range groups {
		volume := 0.0
		for _, p := range group {
			volume += p.Volume.H24
		}
		if winner == nil || volume > winnerVolume || (volume == winnerVolume && key < winnerKey) {
			winner = group
			winnerKey = key
			winnerVolume = volume
		}
	}

	sort.SliceStable(winner, func(i, j int) bool {
		return winner[i].liquidityUSD() > winner[j].liquidityUSD()
	})
	if len(winner) > d.opts.TopPairs {
		winner = winner[:d.opts.TopPairs]
	}

	ref := winner[0]
	volume := decimal.Zero
	for _, p := range winner {
		volume = volume.Add(decimal.NewFromFloat(p.Volume.H24))
	}

	return d.buildRecord(ref, volume)
}

func (d *DexScreener) buildRecord(ref dexPair, volume decimal.Decimal) (*market.Record, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(ref.PriceUsd))
	if err != nil || !price.IsPositive() {
		return nil, market.ErrNotFound
	}

	changePct := decimal.NewFromFloat(ref.PriceChange.H24)
	change := decimal.Zero
	// 24h absolute change is derived from price and percent change since the
	// pair index only reports the percentage.
	if denom := decimal.NewFromInt(100).Add(changePct); !denom.IsZero() {
		previous := price.Mul(decimal.NewFromInt(100)).Div(denom)
		change = price.Sub(previous)
	}

	marketCap := ref.MarketCap
	if marketCap == 0 {
		marketCap = ref.Fdv
	}

	chain, _ := market.ParseChain(ref.ChainID)
	if chain == "" {
		chain = market.Chain(strings.ToLower(ref.ChainID))
	}

	return &market.Record{
		Symbol:       strings.ToUpper(ref.BaseToken.Symbol),
		Name:         ref.BaseToken.Name,
		Price:        price,
		Change24h:    change,
		ChangePct24h: changePct,
		MarketCap:    decimal.NewFromFloat(marketCap),
		Volume24h:    volume,
		UpdatedAt:    d.now().UTC(),
		Chain:        chain,
		Address:      ref.BaseToken.Address,
		URL:          ref.URL,
		Source:       d.Name(),
	}, nil
}

func filterPairs(pairs []dexPair, keep func(dexPair) bool) []dexPair {
	out := make([]dexPair, 0, len(pairs))
	for _, p := range pairs {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

var _ Source = (*DexScreener)(nil)
