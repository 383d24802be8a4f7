package app

import (
	"context"
	"errors"
	"fmt"

	"tokenwatch/internal/market"
)

// ListWatchlist returns every distinct watched token query.
func (a *App) ListWatchlist(ctx context.Context) ([]market.Query, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database not configured; cannot list watchlist")
	}
	defer closeStore()

	return store.ListWatchlist(ctx)
}

// AddWatchlistToken registers a token on a group's watchlist so the warm-up
// loop keeps it fresh.
func (a *App) AddWatchlistToken(ctx context.Context, groupID int64, ref, chainName string) error {
	chain, ok := market.ParseChain(chainName)
	if !ok {
		return fmt.Errorf("unknown chain %q", chainName)
	}
	q := market.NewQuery(ref, chain)
	if q.Ref == "" {
		return fmt.Errorf("empty token reference")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot add watchlist token")
	}
	defer closeStore()

	return store.AddWatchlistToken(ctx, groupID, q)
}

// RemoveWatchlistToken drops a token from a group's watchlist.
func (a *App) RemoveWatchlistToken(ctx context.Context, groupID int64, ref, chainName string) error {
	chain, ok := market.ParseChain(chainName)
	if !ok {
		return fmt.Errorf("unknown chain %q", chainName)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot remove watchlist token")
	}
	defer closeStore()

	return store.RemoveWatchlistToken(ctx, groupID, market.NewQuery(ref, chain))
}
