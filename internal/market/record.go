package market

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates no source could resolve the requested token.
var ErrNotFound = errors.New("market: token not found")

// Chain identifies one of the supported networks.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBSC      Chain = "bsc"
	ChainPolygon  Chain = "polygon"
	ChainSolana   Chain = "solana"
)

// ChainScanOrder is the ordered list of chains tried when an address lookup
// carries no chain hint.
var ChainScanOrder = []Chain{ChainEthereum, ChainSolana, ChainBSC, ChainPolygon}

var chainAliases = map[string]Chain{
	"ethereum": ChainEthereum,
	"eth":      ChainEthereum,
	"bsc":      ChainBSC,
	"bnb":      ChainBSC,
	"binance":  ChainBSC,
	"polygon":  ChainPolygon,
	"matic":    ChainPolygon,
	"solana":   ChainSolana,
	"sol":      ChainSolana,
}

// ParseChain resolves a user-supplied chain name or alias. The empty string
// parses to the empty chain (meaning "unspecified").
func ParseChain(s string) (Chain, bool) {
	if s == "" {
		return "", true
	}
	chain, ok := chainAliases[normalize(s)]
	return chain, ok
}

// Record is the common market-data shape every source normalizes into.
// Immutable once returned to a caller.
type Record struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Change24h    decimal.Decimal `json:"change_24h"`
	ChangePct24h decimal.Decimal `json:"change_pct_24h"`
	MarketCap    decimal.Decimal `json:"market_cap"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	High24h      decimal.Decimal `json:"high_24h"`
	Low24h       decimal.Decimal `json:"low_24h"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Chain        Chain           `json:"chain,omitempty"`
	Address      string          `json:"address,omitempty"`
	URL          string          `json:"url,omitempty"`
	Source       string          `json:"source,omitempty"`
}
