package market

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RefKind classifies how a reference should be dispatched.
type RefKind int

const (
	// RefSymbol is a ticker symbol such as "BTC".
	RefSymbol RefKind = iota
	// RefEVMAddress is a 0x-prefixed 20-byte hex contract address.
	RefEVMAddress
	// RefBase58Address is a base58 account address (Solana-style).
	RefBase58Address
)

// Solana pubkeys encode to 32-44 base58 characters.
var base58Pattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// Query is the composite cache/dispatch key for one token reference.
// Using a struct key instead of concatenated strings rules out collisions
// between refs that happen to contain the separator.
type Query struct {
	Ref   string
	Chain Chain
}

// NewQuery normalizes a raw reference into a Query. Symbols are uppercased,
// EVM addresses lowercased, base58 addresses kept verbatim (case matters).
func NewQuery(ref string, chain Chain) Query {
	ref = strings.TrimSpace(ref)
	switch classify(ref) {
	case RefEVMAddress:
		ref = strings.ToLower(ref)
	case RefSymbol:
		ref = strings.ToUpper(ref)
	}
	return Query{Ref: ref, Chain: chain}
}

// Kind reports the classification of the query's reference.
func (q Query) Kind() RefKind {
	return classify(q.Ref)
}

// IsAddress reports whether the reference is address-shaped.
func (q Query) IsAddress() bool {
	return q.Kind() != RefSymbol
}

func classify(ref string) RefKind {
	if common.IsHexAddress(ref) {
		return RefEVMAddress
	}
	if base58Pattern.MatchString(ref) {
		return RefBase58Address
	}
	return RefSymbol
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
