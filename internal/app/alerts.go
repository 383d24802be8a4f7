package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tokenwatch/internal/market"
)

// AlertAddOptions configure alert creation from the CLI.
type AlertAddOptions struct {
	GroupID   int64
	Ref       string
	Chain     string
	Direction string
	Target    string
	Cooldown  time.Duration
}

// ListAlerts returns a group's alerts, or every active alert when groupID
// is zero.
func (a *App) ListAlerts(ctx context.Context, groupID int64) ([]market.Alert, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database not configured; cannot list alerts")
	}
	defer closeStore()

	if groupID == 0 {
		return store.GetAllActiveAlerts(ctx)
	}
	return store.ListAlerts(ctx, groupID)
}

// AddAlert validates and persists a new alert definition.
func (a *App) AddAlert(ctx context.Context, opts AlertAddOptions) (int64, error) {
	chain, ok := market.ParseChain(opts.Chain)
	if !ok {
		return 0, fmt.Errorf("unknown chain %q", opts.Chain)
	}

	direction := market.Direction(opts.Direction)
	if direction != market.DirectionAbove && direction != market.DirectionBelow {
		return 0, fmt.Errorf("direction must be %q or %q", market.DirectionAbove, market.DirectionBelow)
	}

	target, err := decimal.NewFromString(opts.Target)
	if err != nil || !target.IsPositive() {
		return 0, fmt.Errorf("target must be a positive price")
	}

	if opts.Cooldown <= 0 {
		return 0, fmt.Errorf("cooldown must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	if store == nil {
		return 0, errors.New("database not configured; cannot add alert")
	}
	defer closeStore()

	return store.InsertAlert(ctx, market.Alert{
		GroupID:   opts.GroupID,
		Query:     market.NewQuery(opts.Ref, chain),
		Direction: direction,
		Target:    target,
		Cooldown:  opts.Cooldown,
		Active:    true,
	})
}

// RemoveAlert deactivates an alert by id.
func (a *App) RemoveAlert(ctx context.Context, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot remove alert")
	}
	defer closeStore()

	return store.DeactivateAlert(ctx, id)
}

// SweepCache deletes expired durable cache rows once and returns the count.
func (a *App) SweepCache(ctx context.Context) (int64, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	if store == nil {
		return 0, errors.New("database not configured; cannot sweep cache")
	}
	defer closeStore()

	return store.CleanExpiredCache(ctx)
}
