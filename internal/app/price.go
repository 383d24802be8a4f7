package app

import (
	"context"
	"fmt"

	"tokenwatch/internal/market"
)

// PriceOptions configure a one-shot resolution.
type PriceOptions struct {
	Ref   string
	Chain string
	Fresh bool
}

// ResolvePrice performs a single resolution through the same router/cache
// path the scheduler uses. The durable tier participates when a database is
// configured; otherwise only the memory tier fronts the sources.
func (a *App) ResolvePrice(ctx context.Context, opts PriceOptions) (*market.Record, error) {
	chain, ok := market.ParseChain(opts.Chain)
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", opts.Chain)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		defer closeStore()
	}

	res, _ := a.newResolver(store)
	return res.Resolve(ctx, opts.Ref, chain, opts.Fresh)
}
