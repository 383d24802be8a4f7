package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tokenwatch/internal/cache"
	"tokenwatch/internal/market"
	"tokenwatch/internal/source"
)

type fakeSource struct {
	name         string
	healthy      bool
	supportsAddr bool
	calls        []market.Query
	lookup       func(q market.Query) (*market.Record, error)
}

func (f *fakeSource) Name() string          { return f.name }
func (f *fakeSource) Healthy() bool         { return f.healthy }
func (f *fakeSource) SupportsAddress() bool { return f.supportsAddr }

func (f *fakeSource) Lookup(ctx context.Context, q market.Query) (*market.Record, error) {
	f.calls = append(f.calls, q)
	if f.lookup == nil {
		return nil, market.ErrNotFound
	}
	return f.lookup(q)
}

type fakeDurable struct {
	entries map[market.Query]*market.Record
	sets    int
	getErr  error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: make(map[market.Query]*market.Record)}
}

func (f *fakeDurable) GetCachedPrice(ctx context.Context, q market.Query) (*market.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.entries[q], nil
}

func (f *fakeDurable) SetCachedPrice(ctx context.Context, q market.Query, rec *market.Record, ttl time.Duration) error {
	f.entries[q] = rec
	f.sets++
	return nil
}

func record(symbol string, price int64) *market.Record {
	return &market.Record{Symbol: symbol, Price: decimal.NewFromInt(price)}
}

func always(rec *market.Record) func(market.Query) (*market.Record, error) {
	return func(market.Query) (*market.Record, error) { return rec, nil }
}

func newResolver(durable DurableCache, sources ...*fakeSource) *Resolver {
	chain := make([]source.Source, 0, len(sources))
	for _, s := range sources {
		chain = append(chain, s)
	}
	return New(chain, cache.NewMemory(30*time.Second), durable, Options{PriceTTL: 5 * time.Minute}, zerolog.Nop())
}

func TestResolveAllSourcesDownReturnsNotFound(t *testing.T) {
	a := &fakeSource{name: "a", healthy: false, lookup: always(record("BTC", 1))}
	b := &fakeSource{name: "b", healthy: false, lookup: always(record("BTC", 2))}

	r := newResolver(nil, a, b)
	if _, err := r.Resolve(context.Background(), "BTC", "", false); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(a.calls)+len(b.calls) != 0 {
		t.Fatal("no network call may be issued when every source is down")
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	failing := &fakeSource{name: "primary", healthy: true, lookup: func(market.Query) (*market.Record, error) {
		return nil, errors.New("upstream 502")
	}}
	backup := &fakeSource{name: "backup", healthy: true, lookup: always(record("ETH", 3500))}

	r := newResolver(nil, failing, backup)
	rec, err := r.Resolve(context.Background(), "ETH", "", false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if rec.Symbol != "ETH" || !rec.Price.Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(failing.calls) != 1 || len(backup.calls) != 1 {
		t.Fatalf("both sources should be tried in order, got %d/%d calls", len(failing.calls), len(backup.calls))
	}
}

func TestResolveCacheIdempotence(t *testing.T) {
	src := &fakeSource{name: "src", healthy: true, lookup: always(record("BTC", 65000))}

	r := newResolver(newFakeDurable(), src)
	first, err := r.Resolve(context.Background(), "BTC", "", false)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), "BTC", "", false)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if len(src.calls) != 1 {
		t.Fatalf("two quick resolves should cost one source call, got %d", len(src.calls))
	}
	if first != second {
		t.Fatal("second resolve should serve the identical cached record")
	}
}

func TestResolveSkipCacheBypassesBothTiers(t *testing.T) {
	src := &fakeSource{name: "src", healthy: true, lookup: always(record("BTC", 65000))}
	durable := newFakeDurable()

	r := newResolver(durable, src)
	if _, err := r.Resolve(context.Background(), "BTC", "", false); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "BTC", "", true); err != nil {
		t.Fatalf("fresh resolve failed: %v", err)
	}
	if len(src.calls) != 2 {
		t.Fatalf("skipCache should force a second source call, got %d", len(src.calls))
	}
	if durable.sets != 2 {
		t.Fatalf("every resolution success writes through, got %d writes", durable.sets)
	}
}

func TestResolveDurableHitPromotesToMemory(t *testing.T) {
	src := &fakeSource{name: "src", healthy: true, lookup: always(record("BTC", 65000))}
	durable := newFakeDurable()
	q := market.NewQuery("BTC", "")
	durable.entries[q] = record("BTC", 64000)

	r := newResolver(durable, src)
	rec, err := r.Resolve(context.Background(), "BTC", "", false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !rec.Price.Equal(decimal.NewFromInt(64000)) {
		t.Fatal("durable hit should be served without dispatch")
	}
	if len(src.calls) != 0 {
		t.Fatal("no source call expected on a durable hit")
	}

	// The promoted entry now serves from memory even if the durable tier
	// starts failing.
	durable.getErr = errors.New("db down")
	if _, err := r.Resolve(context.Background(), "BTC", "", false); err != nil {
		t.Fatalf("memory hit should not touch the durable tier: %v", err)
	}
}

func TestResolveAddressPrefersAddressCapableSources(t *testing.T) {
	symbolOnly := &fakeSource{name: "aggregator", healthy: true, lookup: always(record("WRONG", 1))}
	dex := &fakeSource{name: "dex", healthy: true, supportsAddr: true, lookup: func(q market.Query) (*market.Record, error) {
		if q.Chain == market.ChainBSC {
			return record("CAKE", 2), nil
		}
		return nil, market.ErrNotFound
	}}

	r := newResolver(nil, symbolOnly, dex)
	rec, err := r.Resolve(context.Background(), "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82", "", false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if rec.Symbol != "CAKE" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(symbolOnly.calls) != 0 {
		t.Fatal("symbol-only sources must be skipped for address lookups")
	}

	// Auto-detect walked the fixed chain order until the hit.
	want := []market.Chain{market.ChainEthereum, market.ChainSolana, market.ChainBSC}
	if len(dex.calls) != len(want) {
		t.Fatalf("expected %d chain-scan calls, got %d", len(want), len(dex.calls))
	}
	for i, q := range dex.calls {
		if q.Chain != want[i] {
			t.Fatalf("chain scan order broken at %d: got %s want %s", i, q.Chain, want[i])
		}
	}
}

func TestResolveAddressWithChainHintQueriesOnlyThatChain(t *testing.T) {
	dex := &fakeSource{name: "dex", healthy: true, supportsAddr: true, lookup: always(record("CAKE", 2))}

	r := newResolver(nil, dex)
	if _, err := r.Resolve(context.Background(), "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82", market.ChainBSC, false); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(dex.calls) != 1 || dex.calls[0].Chain != market.ChainBSC {
		t.Fatalf("chain hint should pin the lookup, got %+v", dex.calls)
	}
}

func TestResolveEmptyReferenceIsNotFound(t *testing.T) {
	r := newResolver(nil)
	if _, err := r.Resolve(context.Background(), "   ", "", false); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
