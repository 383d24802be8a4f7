package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tokenwatch/internal/cache"
	"tokenwatch/internal/market"
	"tokenwatch/internal/source"
)

// DurableCache is the persistent cache tier behind the in-process map. A
// miss is (nil, nil); implementations delete expired rows on read.
type DurableCache interface {
	GetCachedPrice(ctx context.Context, q market.Query) (*market.Record, error)
	SetCachedPrice(ctx context.Context, q market.Query, rec *market.Record, ttl time.Duration) error
}

// Options tune the resolver.
type Options struct {
	// PriceTTL stamps durable cache writes.
	PriceTTL time.Duration
	// Clock is injected for tests; defaults to time.Now.
	Clock func() time.Time
}

// Resolver walks the fallback chain of sources, fronted by the two cache
// tiers. It is the sole entry point for command handlers and the scheduler.
type Resolver struct {
	sources []source.Source
	memory  *cache.Memory
	durable DurableCache
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs a resolver over an ordered fallback chain. The slice order
// is the symbol dispatch order: primary source first. durable may be nil
// when no database is configured.
func New(sources []source.Source, memory *cache.Memory, durable DurableCache, opts Options, logger zerolog.Logger) *Resolver {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.PriceTTL <= 0 {
		opts.PriceTTL = 5 * time.Minute
	}
	return &Resolver{
		sources: sources,
		memory:  memory,
		durable: durable,
		opts:    opts,
		logger:  logger.With().Str("component", "resolver").Logger(),
		now:     now,
	}
}

// Resolve turns a token reference into a market record. It returns either a
// record or market.ErrNotFound; upstream failures never escape. They feed
// the per-source health trackers and the chain moves on.
func (r *Resolver) Resolve(ctx context.Context, ref string, chain market.Chain, skipCache bool) (*market.Record, error) {
	q := market.NewQuery(ref, chain)
	if q.Ref == "" {
		return nil, market.ErrNotFound
	}

	if !skipCache {
		if rec, ok := r.readCache(ctx, q); ok {
			return rec, nil
		}
	}

	rec, err := r.dispatch(ctx, q)
	if err != nil {
		return nil, err
	}

	r.writeCache(ctx, q, rec)
	return rec, nil
}

// readCache checks the in-process tier, then the durable tier, promoting a
// durable hit into memory.
func (r *Resolver) readCache(ctx context.Context, q market.Query) (*market.Record, bool) {
	now := r.now()
	if rec, ok := r.memory.Get(q, now); ok {
		return rec, true
	}
	if r.durable == nil {
		return nil, false
	}
	rec, err := r.durable.GetCachedPrice(ctx, q)
	if err != nil {
		r.logger.Warn().Err(err).Str("ref", q.Ref).Msg("durable cache read failed")
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	r.memory.Put(q, rec, now)
	return rec, true
}

// writeCache writes through both tiers. A durable write failure is logged
// and swallowed; the caller already has its record.
func (r *Resolver) writeCache(ctx context.Context, q market.Query, rec *market.Record) {
	r.memory.Put(q, rec, r.now())
	if r.durable == nil {
		return
	}
	if err := r.durable.SetCachedPrice(ctx, q, rec, r.opts.PriceTTL); err != nil {
		r.logger.Warn().Err(err).Str("ref", q.Ref).Msg("durable cache write failed")
	}
}

func (r *Resolver) dispatch(ctx context.Context, q market.Query) (*market.Record, error) {
	if q.IsAddress() {
		return r.dispatchAddress(ctx, q)
	}
	return r.dispatchSymbol(ctx, q)
}

// dispatchAddress routes to address-capable sources. Without a chain hint
// the fixed chain order is scanned and the first success wins.
func (r *Resolver) dispatchAddress(ctx context.Context, q market.Query) (*market.Record, error) {
	chains := []market.Chain{q.Chain}
	if q.Chain == "" {
		chains = market.ChainScanOrder
	}

	for _, src := range r.sources {
		if !src.SupportsAddress() {
			continue
		}
		if !src.Healthy() {
			r.logger.Debug().Str("source", src.Name()).Msg("skipping unhealthy source")
			continue
		}
		for _, chain := range chains {
			rec, err := r.lookup(ctx, src, market.Query{Ref: q.Ref, Chain: chain})
			if rec != nil {
				return rec, nil
			}
			if err != nil && !src.Healthy() {
				// The source just went down; don't burn the remaining
				// chains on it this call.
				break
			}
		}
	}
	return nil, market.ErrNotFound
}

// dispatchSymbol walks the fallback chain strictly in order, no speculative
// fan-out, skipping sources whose health tracker says down.
func (r *Resolver) dispatchSymbol(ctx context.Context, q market.Query) (*market.Record, error) {
	for _, src := range r.sources {
		if !src.Healthy() {
			r.logger.Debug().Str("source", src.Name()).Msg("skipping unhealthy source")
			continue
		}
		rec, _ := r.lookup(ctx, src, q)
		if rec != nil {
			return rec, nil
		}
	}
	return nil, market.ErrNotFound
}

func (r *Resolver) lookup(ctx context.Context, src source.Source, q market.Query) (*market.Record, error) {
	rec, err := src.Lookup(ctx, q)
	if err != nil {
		if !errors.Is(err, market.ErrNotFound) {
			r.logger.Warn().Err(err).Str("source", src.Name()).Str("ref", q.Ref).Msg("source lookup failed")
		}
		return nil, err
	}
	return rec, nil
}
